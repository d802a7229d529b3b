package logger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

type QueryLogger struct {
	Operation string
	Query     string
	Args      []interface{}
	StartTime time.Time
}

func NewQueryLogger(operation, query string, args ...any) *QueryLogger {
	return &QueryLogger{
		Operation: operation,
		Query:     query,
		Args:      args,
		StartTime: time.Now(),
	}
}

func (l *QueryLogger) Log(err error, rowsAffected int64) {
	duration := time.Since(l.StartTime)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", l.Operation),
			slog.String("query", l.Query),
			slog.Any("args", l.Args),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", l.Operation),
		slog.String("query", l.Query),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", rowsAffected),
	)
}

// QueryHook reports every bun query through QueryLogger.
type QueryHook struct{}

var _ bun.QueryHook = QueryHook{}

func (QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	l := &QueryLogger{
		Operation: event.Operation(),
		Query:     event.Query,
		StartTime: event.StartTime,
	}

	var rows int64
	if event.Result != nil {
		rows, _ = event.Result.RowsAffected()
	}
	// no rows is an answer for the ledger, not a failure
	err := event.Err
	if isNoRows(err) {
		err = nil
	}
	l.Log(err, rows)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
