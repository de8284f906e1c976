package core

import (
	"context"
	"time"
)

// QueryEvent describes one statement sent on a connection. It is passed to
// QueryHook callbacks for logging, metrics or debugging.
type QueryEvent struct {
	// SQL is the statement with native placeholders.
	SQL string
	// RealSQL is the statement as the caller wrote it.
	RealSQL string
	// Args are the bound values after coercion, with sensitive values masked.
	Args         []any
	Duration     time.Duration
	RowsAffected int64
	Error        error
	// Operation is the leading keyword: SELECT, INSERT, BEGIN, SAVEPOINT and so on.
	Operation    string
	ConnectionID uint64
	// Depth is the transaction depth when the statement ran.
	Depth int
}

// QueryHook is invoked after every statement, including transaction control
// and introspection statements.
//
// Example:
//
//	conn, _ := dbadapter.Connect(ctx, desc,
//	    dbadapter.WithQueryHook(func(ctx context.Context, e dbadapter.QueryEvent) {
//	        slog.Info("sql", "op", e.Operation, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (c *Connection) invokeHook(ctx context.Context, event QueryEvent) {
	for _, h := range c.hooks {
		h(ctx, event)
	}
}
