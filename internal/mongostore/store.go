package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 10 * time.Second

// Store is a document store backed by one MongoDB database.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// Connect opens a client for uri and checks the primary is reachable.
//
// The returned store owns the client; Close disconnects it.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, abandon(fmt.Errorf("failed to reach %s: %w", uri, err), client.Disconnect)
	}

	return &Store{client: client, db: client.Database(database), timeout: timeout}, nil
}

// abandon disconnects a client that failed to come up, keeping the
// disconnect error alongside err.
func abandon(err error, disconnect func(context.Context) error) error {
	if derr := disconnect(context.Background()); derr != nil {
		return errors.Join(err, fmt.Errorf("disconnect: %w", derr))
	}
	return err
}

// New wraps an existing database handle. Close does not disconnect it.
func New(db *mongo.Database, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Find returns every document matching filter, in natural order.
func (s *Store) Find(ctx context.Context, collection string, filter bson.D) ([]bson.D, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	cur, err := s.db.Collection(collection).Find(ctx, nonNil(filter))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	docs := []bson.D{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	return docs, nil
}

// FindOne returns the first document matching filter, or nil if none does.
func (s *Store) FindOne(ctx context.Context, collection string, filter bson.D) (bson.D, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	var doc bson.D
	err := s.db.Collection(collection).FindOne(ctx, nonNil(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", collection, err)
	}
	return doc, nil
}

// Aggregate runs a pipeline and returns every output document.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	cur, err := s.db.Collection(collection).Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, fmt.Errorf("aggregate on %s: %w", collection, err)
	}
	docs := []bson.D{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("aggregate on %s: %w", collection, err)
	}
	return docs, nil
}

func nonNil(filter bson.D) bson.D {
	if filter == nil {
		return bson.D{}
	}
	return filter
}
