package core

import (
	"errors"
	"fmt"

	"github.com/coregx/dbadapter/internal/dialects"
)

// Predefined errors returned by connection operations.
var (
	// ErrNoRows is returned when a query that expects rows returns no results.
	ErrNoRows = errors.New("no rows in result set")
	// ErrConnectionClosed is returned by every operation on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrNoActiveTransaction is returned by commit or rollback at depth 0.
	ErrNoActiveTransaction = errors.New("there is no active transaction")
	// ErrTransactionActive is returned when the savepoint policy changes while a transaction is open.
	ErrTransactionActive = errors.New("cannot change the nesting policy while a transaction is active")
	// ErrInvalidDescriptor is returned when a connection descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid connection descriptor")
	// ErrInvalidSavepointName is returned for savepoint names that are not plain identifiers.
	ErrInvalidSavepointName = errors.New("invalid savepoint name")
	// ErrNoSuchTable is returned when describing a table that does not exist.
	ErrNoSuchTable = errors.New("table does not exist")
	// ErrUnknownDialect is returned for adapters without a registered dialect.
	ErrUnknownDialect = dialects.ErrUnknownDialect
)

// UnsupportedDialectFeatureError is returned when the engine cannot express a request.
type UnsupportedDialectFeatureError = dialects.UnsupportedFeatureError

// ConnectionError reports a failure of the physical link: authentication,
// network, or use of a closed connection.
type ConnectionError struct {
	Adapter string
	Host    string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Adapter, e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Adapter, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports a transport deadline that expired before the engine answered.
type TimeoutError struct {
	Op        string
	SQL       string
	BindCount int
	Err       error
}

func (e *TimeoutError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s timed out: %v [sql: %s, binds: %d]", e.Op, e.Err, e.SQL, e.BindCount)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout reports true so callers can test with a net.Error style interface.
func (e *TimeoutError) Timeout() bool { return true }

// SQLExecutionError reports a statement the engine rejected. Message is the
// engine text verbatim.
type SQLExecutionError struct {
	// Code is the engine error number or SQLSTATE-like code, e.g. "1062" or "23505".
	Code string
	// SQLState is the five character SQLSTATE when the engine reports one.
	SQLState string
	Message  string
	// Column is the offending column when the engine names one.
	Column    string
	SQL       string
	BindCount int
	Err       error
}

func (e *SQLExecutionError) Error() string {
	code := e.Code
	if code == "" {
		code = e.SQLState
	}
	if code != "" {
		return fmt.Sprintf("[%s] %s [sql: %s, binds: %d]", code, e.Message, e.SQL, e.BindCount)
	}
	return fmt.Sprintf("%s [sql: %s, binds: %d]", e.Message, e.SQL, e.BindCount)
}

func (e *SQLExecutionError) Unwrap() error { return e.Err }

// BindCountMismatchError is returned before any round trip when the number of
// bound values or declared types differs from the placeholders in the SQL.
type BindCountMismatchError struct {
	SQL          string
	Placeholders int
	Values       int
	// Types is the number of declared bind types, or -1 when none were given.
	Types int
	// Missing names a named placeholder without a value.
	Missing string
}

func (e *BindCountMismatchError) Error() string {
	switch {
	case e.Missing != "":
		return fmt.Sprintf("no value bound for placeholder :%s [sql: %s]", e.Missing, e.SQL)
	case e.Types >= 0 && e.Types != e.Placeholders:
		return fmt.Sprintf("statement has %d placeholders but %d bind types were declared [sql: %s]",
			e.Placeholders, e.Types, e.SQL)
	default:
		return fmt.Sprintf("statement has %d placeholders but %d values were bound [sql: %s]",
			e.Placeholders, e.Values, e.SQL)
	}
}

// InvalidBindStyleError is returned when a statement mixes positional and named
// placeholders, or when the supplied values do not match the placeholder style.
type InvalidBindStyleError struct {
	SQL    string
	Reason string
}

func (e *InvalidBindStyleError) Error() string {
	return fmt.Sprintf("invalid bind style: %s [sql: %s]", e.Reason, e.SQL)
}

// BindTypeError is returned when a value cannot be coerced to its declared bind type.
type BindTypeError struct {
	Position int
	Type     BindType
	Value    any
	Err      error
}

func (e *BindTypeError) Error() string {
	return fmt.Sprintf("bind %d: cannot use %T as %s: %v", e.Position, e.Value, e.Type, e.Err)
}

func (e *BindTypeError) Unwrap() error { return e.Err }
