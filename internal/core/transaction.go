package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// SavepointPrefix starts every generated savepoint name.
const SavepointPrefix = "DBADAPTER_SAVEPOINT_"

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsUnderTransaction reports whether a transaction is open.
func (c *Connection) IsUnderTransaction() bool { return c.depth > 0 }

// TransactionLevel returns the nesting depth; 0 means no transaction.
func (c *Connection) TransactionLevel() int { return c.depth }

// IsNestedTransactionsWithSavepoints reports the nesting policy.
func (c *Connection) IsNestedTransactionsWithSavepoints() bool { return c.useSavepoints }

// SetNestedTransactionsWithSavepoints sets the nesting policy. It fails with
// ErrTransactionActive while a transaction is open, and with an
// UnsupportedDialectFeatureError when enabling it on an engine without savepoints.
func (c *Connection) SetNestedTransactionsWithSavepoints(enabled bool) error {
	if c.depth > 0 {
		return ErrTransactionActive
	}
	if enabled && !c.dialect.SupportsSavepoints() {
		return &UnsupportedDialectFeatureError{Dialect: c.dialect.Name(), Feature: "savepoints"}
	}
	c.useSavepoints = enabled
	return nil
}

// NestedTransactionSavepointName returns the savepoint guarding the current depth.
func (c *Connection) NestedTransactionSavepointName() string {
	return SavepointPrefix + strconv.Itoa(c.depth)
}

func (c *Connection) nested() bool {
	return c.useSavepoints && c.dialect.SupportsSavepoints()
}

// Begin opens a transaction, or a savepoint when one is already open and
// savepoints are enabled. Without savepoints a nested Begin only increments
// the depth: the outer transaction absorbs it. The depth changes only after
// the engine confirms the statement.
func (c *Connection) Begin(ctx context.Context) error {
	if err := c.ensureOpen("begin"); err != nil {
		return err
	}
	switch {
	case c.depth == 0:
		if err := c.execNative(ctx, "begin", c.dialect.BeginSQL()); err != nil {
			return err
		}
	case c.nested():
		name := SavepointPrefix + strconv.Itoa(c.depth+1)
		if err := c.execNative(ctx, "savepoint", c.dialect.CreateSavepointSQL(name)); err != nil {
			return err
		}
	}
	c.depth++
	c.logger.Debug("transaction begun", "connection_id", c.id, "depth", c.depth)
	return nil
}

// Commit commits the transaction at depth 1, or releases the innermost
// savepoint when nested. It fails with ErrNoActiveTransaction at depth 0
// without sending anything. A failed commit leaves the depth unchanged.
func (c *Connection) Commit(ctx context.Context) error {
	if err := c.ensureOpen("commit"); err != nil {
		return err
	}
	switch {
	case c.depth == 0:
		return ErrNoActiveTransaction
	case c.depth == 1:
		if err := c.execNative(ctx, "commit", c.dialect.CommitSQL()); err != nil {
			return err
		}
	case c.nested() && c.dialect.SupportsReleaseSavepoints():
		if err := c.execNative(ctx, "release", c.dialect.ReleaseSavepointSQL(c.NestedTransactionSavepointName())); err != nil {
			return err
		}
	}
	c.depth--
	c.logger.Debug("transaction committed", "connection_id", c.id, "depth", c.depth)
	return nil
}

// Rollback rolls back the transaction at depth 1, or to the innermost
// savepoint when nested. It fails with ErrNoActiveTransaction at depth 0
// without sending anything. A failed rollback leaves the depth unchanged.
func (c *Connection) Rollback(ctx context.Context) error {
	if err := c.ensureOpen("rollback"); err != nil {
		return err
	}
	switch {
	case c.depth == 0:
		return ErrNoActiveTransaction
	case c.depth == 1:
		if err := c.execNative(ctx, "rollback", c.dialect.RollbackSQL()); err != nil {
			return err
		}
	case c.nested():
		if err := c.execNative(ctx, "rollback", c.dialect.RollbackSavepointSQL(c.NestedTransactionSavepointName())); err != nil {
			return err
		}
	}
	c.depth--
	c.logger.Debug("transaction rolled back", "connection_id", c.id, "depth", c.depth)
	return nil
}

// Transactional runs fn inside Begin and Commit. It rolls back when fn
// returns an error or panics; a panic is re-raised after the rollback.
// A failed Commit is returned as is: the depth is unchanged, nothing is
// rolled back, and the caller must call Rollback.
func (c *Connection) Transactional(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err = c.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := c.Rollback(ctx); rbErr != nil {
				c.logger.Error("rollback after panic failed", "connection_id", c.id, "error", rbErr)
			}
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return c.Commit(ctx)
}

func (c *Connection) checkSavepoint(op, name string) error {
	if err := c.ensureOpen(op); err != nil {
		return err
	}
	if !c.dialect.SupportsSavepoints() {
		return &UnsupportedDialectFeatureError{Dialect: c.dialect.Name(), Feature: "savepoints"}
	}
	if !savepointName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSavepointName, name)
	}
	if c.depth == 0 {
		return ErrNoActiveTransaction
	}
	return nil
}

// CreateSavepoint creates a named savepoint inside the open transaction.
// It does not change the depth.
func (c *Connection) CreateSavepoint(ctx context.Context, name string) error {
	if err := c.checkSavepoint("savepoint", name); err != nil {
		return err
	}
	return c.execNative(ctx, "savepoint", c.dialect.CreateSavepointSQL(name))
}

// ReleaseSavepoint releases a named savepoint. Engines that cannot release
// savepoints treat it as a no-op.
func (c *Connection) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := c.checkSavepoint("release", name); err != nil {
		return err
	}
	if !c.dialect.SupportsReleaseSavepoints() {
		return nil
	}
	return c.execNative(ctx, "release", c.dialect.ReleaseSavepointSQL(name))
}

// RollbackSavepoint rolls back to a named savepoint.
func (c *Connection) RollbackSavepoint(ctx context.Context, name string) error {
	if err := c.checkSavepoint("rollback", name); err != nil {
		return err
	}
	return c.execNative(ctx, "rollback", c.dialect.RollbackSavepointSQL(name))
}
