package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/docbridge/internal/compiler"
	"github.com/roach88/docbridge/internal/config"
	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/mongostore"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/store"
)

// StoreOpener connects the document store a command runs against. The
// returned close function releases it.
type StoreOpener func(ctx context.Context, cfg config.MongoConfig) (engine.Store, func(context.Context) error, error)

// openMongo is the default StoreOpener.
func openMongo(ctx context.Context, cfg config.MongoConfig) (engine.Store, func(context.Context) error, error) {
	s, err := mongostore.Connect(ctx, cfg.URI, cfg.Database, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// session is everything a command that touches the store needs.
type session struct {
	cfg      *config.Config
	loaded   *compiler.Loaded
	compiler *querydoc.Compiler
	journal  *store.Journal
	engine   *engine.Engine
	metrics  *engine.Metrics
	closers  []func(context.Context) error
}

// sessionNeeds selects the parts of a session a command uses.
type sessionNeeds struct {
	store   bool
	journal bool
}

// openSession loads the schema and, as needed, connects the store and
// opens the journal. Setup failures are command errors (exit code 2).
func openSession(ctx context.Context, opts *RootOptions, needs sessionNeeds) (*session, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	loaded, errs := LoadSchema(cfg.Schema.Dir)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", errors.Join(errs...))
	}
	for _, w := range loaded.Warnings {
		slog.Warn("schema warning", "path", w.Path, "message", w.Message)
	}

	s := &session{
		cfg:      cfg,
		loaded:   loaded,
		compiler: querydoc.New(loaded.Model),
		metrics:  engine.NewMetrics(),
	}
	if !needs.store {
		return s, nil
	}

	open := opts.openStore
	if open == nil {
		open = openMongo
	}
	st, closeStore, err := open(ctx, cfg.Mongo)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: failed to connect to %s", ErrCodeConnect, cfg.Mongo.URI), err)
	}
	s.closers = append(s.closers, closeStore)

	engineOpts := []engine.EngineOption{
		engine.WithMetrics(s.metrics),
		engine.WithMaxFanOut(cfg.Engine.MaxFanOut),
		engine.WithFanOutConcurrency(cfg.Engine.FanOutConcurrency),
	}

	if needs.journal && cfg.Journal.Path != "" {
		j, err := store.Open(cfg.Journal.Path)
		if err != nil {
			s.Close(ctx)
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: failed to open journal %s", ErrCodeConnect, cfg.Journal.Path), err)
		}
		s.journal = j
		s.closers = append(s.closers, func(context.Context) error { return j.Close() })

		last, err := j.LastSeq(ctx)
		if err != nil {
			s.Close(ctx)
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		engineOpts = append(engineOpts, engine.WithJournal(j), engine.WithClock(engine.NewClockAt(last)))
	}

	s.engine = engine.New(s.compiler, st, engineOpts...)
	return s, nil
}

// Close releases the store and journal and writes the metrics textfile
// when one is configured.
func (s *session) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	s.closers = nil

	if s.cfg.Metrics.File != "" && s.metrics != nil {
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.File); err != nil {
			slog.Warn("metrics textfile not written", "path", s.cfg.Metrics.File, "error", err)
		}
	}
}
