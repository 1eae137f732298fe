package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docbridge/internal/compiler"
	"github.com/roach88/docbridge/internal/schema"
)

// ColumnInfo describes one column and where it is stored.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Path     string `json:"path"`
	Nullable bool   `json:"nullable"`
}

// TableInfo describes one virtual table.
type TableInfo struct {
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	Collection string       `json:"collection"`
	ArrayPath  string       `json:"array_path,omitempty"`
	Columns    []ColumnInfo `json:"columns"`
}

// SchemaResult is the output of the schema command.
type SchemaResult struct {
	Version  string                  `json:"version"`
	Files    int                     `json:"files"`
	Tables   []TableInfo             `json:"tables"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [schema-dir]",
		Short: "Validate the table schema and show the physical layout",
		Long: `Compile the CUE table definitions, validate the model, and print every
table with its kind, collection, and the document path of each column.

The directory defaults to schema.dir from the configuration.

Exit codes:
  0 - Schema is valid
  2 - Schema is invalid or cannot be read`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSchema(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := opts.Config()
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "failed to load configuration", err))
	}
	if len(args) == 1 {
		cfg.Schema.Dir = args[0]
	}

	loaded, errs := LoadSchema(cfg.Schema.Dir)
	if len(errs) > 0 {
		return outputSchemaErrors(formatter, errs)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, cfg.Schema.Dir)

	result, err := describeSchema(loaded)
	if err != nil {
		return failCommand(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputSchemaText(cmd, result)
}

// describeSchema lists every table with its physical column paths.
func describeSchema(loaded *compiler.Loaded) (*SchemaResult, error) {
	m := loaded.Model
	result := &SchemaResult{
		Version:  loaded.SourceVersion,
		Files:    loaded.FileCount,
		Tables:   make([]TableInfo, 0, len(m.Tables())),
		Warnings: loaded.Warnings,
	}

	for _, t := range m.Tables() {
		info := TableInfo{
			Name:       t.Name,
			Kind:       t.Kind.String(),
			Collection: m.RootOf(t).Collection,
		}
		if t.Kind == schema.Merge {
			info.ArrayPath = m.ArrayPath(t)
		}
		for _, col := range t.Columns {
			fp, err := m.ColumnPath(t, col.Name)
			if err != nil {
				return nil, err
			}
			path := fp.Path
			if fp.Up > 0 {
				path = strings.Repeat("../", fp.Up) + path
			}
			info.Columns = append(info.Columns, ColumnInfo{
				Name:     col.Name,
				Type:     string(col.Type),
				Path:     path,
				Nullable: col.Nullable,
			})
		}
		result.Tables = append(result.Tables, info)
	}
	return result, nil
}

func outputSchemaText(cmd *cobra.Command, result *SchemaResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Loaded %d table(s) from %d file(s) (version %s)\n\n", len(result.Tables), result.Files, result.Version)

	var rows [][]string
	for _, t := range result.Tables {
		where := t.Collection
		if t.ArrayPath != "" {
			where = fmt.Sprintf("%s[%s]", t.Collection, t.ArrayPath)
		}
		for _, c := range t.Columns {
			rows = append(rows, []string{t.Name, t.Kind, where, c.Name, c.Type, c.Path})
		}
	}
	WriteTable(w, []string{"TABLE", "KIND", "STORED IN", "COLUMN", "TYPE", "PATH"}, rows)

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "%s: %s (%s)\n", warn.Level, warn.Message, strings.Join(warn.Path, " -> "))
		}
	}
	return nil
}

// outputSchemaErrors prints every load error and exits with a command error.
func outputSchemaErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // all errors, not just the first
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("schema has %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Schema is invalid")
	fmt.Fprintln(w)
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		code, message := parseLoadError(err)
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("schema has %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}
