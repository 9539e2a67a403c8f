// Package sqlexport provides a tracing.Exporter that writes span and trace
// records through database/sql. Any registered driver works; the caller owns
// the *sql.DB.
package sqlexport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/tracing"
)

// Placeholder selects the bind parameter syntax of the driver.
type Placeholder int

const (
	// Question binds parameters as "?" (MySQL, SQLite).
	Question Placeholder = iota
	// Dollar binds parameters as "$1", "$2" (PostgreSQL).
	Dollar
)

// Options configure the exporter.
type Options struct {
	SpanTable   string
	TraceTable  string
	Placeholder Placeholder
}

// Exporter inserts every batch in one transaction.
type Exporter struct {
	db   *sql.DB
	opts Options

	insertSpan  string
	insertTrace string
}

var _ tracing.Exporter = (*Exporter)(nil)

// New creates an exporter writing to db.
func New(db *sql.DB, optFns ...func(o *Options)) *Exporter {
	opts := Options{
		SpanTable:  "agentrelay_spans",
		TraceTable: "agentrelay_traces",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Exporter{db: db, opts: opts}
	e.insertSpan = e.insert(opts.SpanTable,
		"trace_id", "span_id", "parent_id", "kind", "name", "data", "error", "started_at", "ended_at")
	e.insertTrace = e.insert(opts.TraceTable,
		"trace_id", "name", "group_id", "metadata", "error", "started_at", "ended_at")

	return e
}

// Schema returns portable CREATE TABLE statements for both tables.
func (e *Exporter) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	trace_id VARCHAR(64) NOT NULL,
	span_id VARCHAR(64) NOT NULL PRIMARY KEY,
	parent_id VARCHAR(64),
	kind VARCHAR(32) NOT NULL,
	name VARCHAR(255) NOT NULL,
	data TEXT,
	error TEXT,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL
)`, e.opts.SpanTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	trace_id VARCHAR(64) NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	group_id VARCHAR(255),
	metadata TEXT,
	error TEXT,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL
)`, e.opts.TraceTable),
	}
}

// Migrate creates the tables when they do not exist.
func (e *Exporter) Migrate(ctx context.Context) error {
	for _, stmt := range e.Schema() {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sql export: migrate: %w", err)
		}
	}
	return nil
}

// Export writes the batch. A failing insert rolls the whole batch back.
func (e *Exporter) Export(ctx context.Context, items []tracing.ExportItem) (err error) {
	if len(items) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql export: begin: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		switch {
		case item.Span != nil:
			err = e.writeSpan(ctx, tx, item.Span)
		case item.Trace != nil:
			err = e.writeTrace(ctx, tx, item.Trace)
		}
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sql export: commit: %w", err)
	}

	return nil
}

func (e *Exporter) writeSpan(ctx context.Context, tx *sql.Tx, s *tracing.SpanRecord) error {
	data, err := nullJSON(s.Data)
	if err != nil {
		return fmt.Errorf("sql export: encode span %s: %w", s.SpanID, err)
	}

	_, err = tx.ExecContext(ctx, e.insertSpan,
		s.TraceID, s.SpanID, nullString(s.ParentID), string(s.Kind), s.Name,
		data, errorText(s.Error), s.StartedAt.UTC(), endTime(s.StartedAt, s.EndedAt))
	if err != nil {
		return fmt.Errorf("sql export: insert span %s: %w", s.SpanID, err)
	}

	return nil
}

func (e *Exporter) writeTrace(ctx context.Context, tx *sql.Tx, t *tracing.TraceRecord) error {
	var meta sql.NullString
	if len(t.Metadata) > 0 {
		var err error
		if meta, err = nullJSON(t.Metadata); err != nil {
			return fmt.Errorf("sql export: encode trace %s: %w", t.TraceID, err)
		}
	}

	_, err := tx.ExecContext(ctx, e.insertTrace,
		t.TraceID, t.Name, nullString(t.GroupID), meta,
		errorText(t.Error), t.StartedAt.UTC(), endTime(t.StartedAt, t.EndedAt))
	if err != nil {
		return fmt.Errorf("sql export: insert trace %s: %w", t.TraceID, err)
	}

	return nil
}

func (e *Exporter) insert(table string, cols ...string) string {
	binds := make([]string, len(cols))
	for i := range cols {
		if e.opts.Placeholder == Dollar {
			binds[i] = fmt.Sprintf("$%d", i+1)
		} else {
			binds[i] = "?"
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(binds, ", "))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(b), Valid: true}, nil
}

func errorText(err *tracing.SpanError) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Message, Valid: true}
}

func endTime(start, end time.Time) time.Time {
	if end.IsZero() {
		return start.UTC()
	}
	return end.UTC()
}
