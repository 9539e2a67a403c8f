package sqlexport

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hupe1980/agentrelay/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db, mock
}

func TestExportWritesBatchInTransaction(t *testing.T) {
	db, mock := setupTestDB(t)
	exp := New(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agentrelay_spans (trace_id, span_id, parent_id, kind, name, data, error, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs("t1", "s1", sqlmock.AnyArg(), "function", "add", `{"tool":"add","output":"5"}`, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agentrelay_traces")).
		WithArgs("t1", "run", sqlmock.AnyArg(), sqlmock.AnyArg(), "max turns", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := exp.Export(context.Background(), []tracing.ExportItem{
		{Span: &tracing.SpanRecord{
			TraceID: "t1", SpanID: "s1", Kind: tracing.SpanKindFunction, Name: "add",
			Data:      tracing.FunctionSpanData{Tool: "add", Output: "5"},
			StartedAt: now, EndedAt: now.Add(time.Millisecond),
		}},
		{Trace: &tracing.TraceRecord{
			TraceID: "t1", Name: "run", StartedAt: now,
			Error: &tracing.SpanError{Message: "max turns"},
		}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportRollsBackOnFailure(t *testing.T) {
	db, mock := setupTestDB(t)
	exp := New(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agentrelay_spans").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := exp.Export(context.Background(), []tracing.ExportItem{
		{Span: &tracing.SpanRecord{TraceID: "t1", SpanID: "s1", Kind: tracing.SpanKindCustom}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDollarPlaceholders(t *testing.T) {
	db, _ := setupTestDB(t)
	exp := New(db, func(o *Options) {
		o.Placeholder = Dollar
		o.SpanTable = "spans"
	})

	assert.Contains(t, exp.insertSpan, "INSERT INTO spans")
	assert.Contains(t, exp.insertSpan, "$1, $2, $3, $4, $5, $6, $7, $8, $9")
}

func TestMigrate(t *testing.T) {
	db, mock := setupTestDB(t)
	exp := New(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agentrelay_spans").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agentrelay_traces").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, exp.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyBatchIsNoop(t *testing.T) {
	db, mock := setupTestDB(t)
	require.NoError(t, New(db).Export(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
