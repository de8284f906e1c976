package core

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/dbadapter/internal/tracer"
)

// Execute runs a statement that returns no rows and reports the affected row
// count. params are positional values for "?" markers, or a single Params for
// ":name" markers. Bind validation happens before any round trip.
func (c *Connection) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	return c.execute(ctx, query, params, nil, nil)
}

// ExecuteTyped is Execute with one declared bind type per positional value.
func (c *Connection) ExecuteTyped(ctx context.Context, query string, params []any, types []BindType) (int64, error) {
	return c.execute(ctx, query, params, types, nil)
}

// Query runs a row-returning statement. The cursor must be closed before the
// next statement on this connection.
func (c *Connection) Query(ctx context.Context, query string, params ...any) (*Cursor, error) {
	return c.query(ctx, query, params, nil)
}

// QueryTyped is Query with one declared bind type per positional value.
func (c *Connection) QueryTyped(ctx context.Context, query string, params []any, types []BindType) (*Cursor, error) {
	return c.query(ctx, query, params, types)
}

func (c *Connection) execute(ctx context.Context, query string, params []any, types []BindType, names []string) (int64, error) {
	if err := c.ensureOpen("execute"); err != nil {
		return 0, err
	}
	b, err := c.bind(query, params, types, names)
	if err != nil {
		return 0, err
	}
	return c.execBound(ctx, "execute", b, c.stmts != nil)
}

func (c *Connection) query(ctx context.Context, query string, params []any, types []BindType) (*Cursor, error) {
	if err := c.ensureOpen("query"); err != nil {
		return nil, err
	}
	b, err := c.bind(query, params, types, nil)
	if err != nil {
		return nil, err
	}
	return c.queryBound(ctx, "query", b)
}

// execNative runs dialect-generated SQL that already uses native placeholders.
// It bypasses bind scanning and the statement cache.
func (c *Connection) execNative(ctx context.Context, op, query string, args ...any) error {
	if err := c.ensureOpen(op); err != nil {
		return err
	}
	_, err := c.execBound(ctx, op, &binding{query: query, raw: query, args: args, types: make([]BindType, len(args))}, false)
	return err
}

// queryNative is the row-returning counterpart of execNative.
func (c *Connection) queryNative(ctx context.Context, op, query string, args ...any) (*Cursor, error) {
	if err := c.ensureOpen(op); err != nil {
		return nil, err
	}
	return c.queryBound(ctx, op, &binding{query: query, raw: query, args: args, types: make([]BindType, len(args))})
}

// record stores the statement about to run for diagnostics.
func (c *Connection) record(b *binding) {
	c.sqlStatement = b.query
	c.realSQLStatement = b.raw
	c.sqlVariables = b.args
	c.sqlBindTypes = b.types
}

func (c *Connection) execBound(ctx context.Context, op string, b *binding, cacheable bool) (int64, error) {
	c.record(b)
	start := time.Now()
	ctx, span := c.tracer.StartSpan(ctx, "db."+op)
	defer span.End()

	var (
		res sql.Result
		err error
	)
	if cacheable {
		var stmt *sql.Stmt
		if stmt, err = c.stmts.GetOrPrepare(ctx, b.query, c.conn.PrepareContext); err == nil {
			res, err = stmt.ExecContext(ctx, b.args...)
			if err != nil {
				c.stmts.Delete(b.query)
			}
		}
	} else {
		res, err = c.conn.ExecContext(ctx, b.query, b.args...)
	}

	var rows int64
	if err == nil {
		// Transaction control and DDL keep the insert id of the last data statement.
		if op == "execute" {
			c.lastResult = res
		}
		// Some drivers cannot report a count for DDL; that is not a failure.
		if n, rerr := res.RowsAffected(); rerr == nil {
			rows = n
		}
		c.affectedRows = rows
	}
	return rows, c.finish(ctx, span, op, b, start, rows, err)
}

func (c *Connection) queryBound(ctx context.Context, op string, b *binding) (*Cursor, error) {
	c.record(b)
	start := time.Now()
	ctx, span := c.tracer.StartSpan(ctx, "db."+op)
	defer span.End()

	var (
		rows *sql.Rows
		err  error
	)
	if c.stmts != nil && op == "query" {
		var stmt *sql.Stmt
		if stmt, err = c.stmts.GetOrPrepare(ctx, b.query, c.conn.PrepareContext); err == nil {
			rows, err = stmt.QueryContext(ctx, b.args...)
			if err != nil {
				c.stmts.Delete(b.query)
			}
		}
	} else {
		rows, err = c.conn.QueryContext(ctx, b.query, b.args...)
	}

	if err = c.finish(ctx, span, op, b, start, 0, err); err != nil {
		return nil, err
	}
	cur, err := newCursor(c, b, rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return cur, nil
}

// finish classifies err and reports the statement to the tracer, the logger
// and the query hook.
func (c *Connection) finish(ctx context.Context, span tracer.Span, op string, b *binding, start time.Time, rows int64, err error) error {
	err = c.classifyStatement(err, op, b.query, len(b.args))
	elapsed := time.Since(start)
	operation := tracer.DetectOperation(b.query)

	tracer.AddStatementAttributes(span, &tracer.StatementMetadata{
		SQL:          b.query,
		BindCount:    len(b.args),
		Duration:     elapsed,
		RowsAffected: rows,
		Error:        err,
		Database:     c.dialect.Name(),
		Operation:    operation,
		ConnectionID: c.id,
		Depth:        c.depth,
	})

	masked := c.sanitizer.Mask(b.query, b.names, b.args)
	args := c.sanitizer.FormatParams(masked)
	if err != nil {
		c.logger.Error("statement failed",
			"connection_id", c.id,
			"depth", c.depth,
			"sql", b.query,
			"args", args,
			"duration", elapsed,
			"error", err)
	} else {
		c.logger.Debug("statement executed",
			"connection_id", c.id,
			"depth", c.depth,
			"sql", b.query,
			"args", args,
			"duration", elapsed,
			"rows_affected", rows)
	}

	c.invokeHook(ctx, QueryEvent{
		SQL:          b.query,
		RealSQL:      b.raw,
		Args:         masked,
		Duration:     elapsed,
		RowsAffected: rows,
		Error:        err,
		Operation:    operation,
		ConnectionID: c.id,
		Depth:        c.depth,
	})
	return err
}

// LastInsertID returns the identity generated by the most recent insert on
// this connection. sequence names the PostgreSQL sequence to read; when empty
// the session's last generated value is used.
func (c *Connection) LastInsertID(ctx context.Context, sequence string) (int64, error) {
	if err := c.ensureOpen("last_insert_id"); err != nil {
		return 0, err
	}
	if query, args := c.dialect.LastInsertIDSQL(sequence); query != "" {
		v, ok, err := c.fetchNativeScalar(ctx, "last_insert_id", query, args...)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNoRows
		}
		return toInt64(v)
	}
	if c.lastResult == nil {
		return 0, errors.New("no statement has been executed on this connection")
	}
	return c.lastResult.LastInsertId()
}
