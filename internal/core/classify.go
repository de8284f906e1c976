package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// engineError is the driver-independent view of an engine error.
type engineError struct {
	code     string
	sqlState string
	message  string
	column   string
}

// engineClassifier extracts engine details from a driver error.
type engineClassifier func(err error) (engineError, bool)

var engineClassifiers = []engineClassifier{
	classifyMySQL,
	classifyPgx,
	classifyPQ,
	classifyModernc,
}

// mysqlColumn and sqliteColumn pull the column name out of engine messages
// such as "Column 'name' cannot be null" and "NOT NULL constraint failed: robots.name".
var (
	mysqlColumn  = regexp.MustCompile(`(?i)column '([^']+)'`)
	sqliteColumn = regexp.MustCompile(`constraint failed: (?:\w+\.)?(\w+)(?:,|\s*\(|\s*$)`)
)

func classifyMySQL(err error) (engineError, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return engineError{}, false
	}
	e := engineError{
		code:     strconv.Itoa(int(me.Number)),
		sqlState: string(me.SQLState[:]),
		message:  me.Message,
	}
	if e.sqlState == "\x00\x00\x00\x00\x00" {
		e.sqlState = ""
	}
	if m := mysqlColumn.FindStringSubmatch(me.Message); m != nil {
		e.column = m[1]
	}
	return e, true
}

func classifyPgx(err error) (engineError, bool) {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return engineError{}, false
	}
	return engineError{code: pe.Code, sqlState: pe.Code, message: pe.Message, column: pe.ColumnName}, true
}

func classifyPQ(err error) (engineError, bool) {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return engineError{}, false
	}
	return engineError{code: string(pe.Code), sqlState: string(pe.Code), message: pe.Message, column: pe.Column}, true
}

func classifyModernc(err error) (engineError, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return engineError{}, false
	}
	e := engineError{code: strconv.Itoa(se.Code()), message: se.Error()}
	if m := sqliteColumn.FindStringSubmatch(e.message); m != nil {
		e.column = m[1]
	}
	return e, true
}

// isTimeout reports whether err is a transport deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isBrokenLink reports whether err means the physical link is unusable.
func isBrokenLink(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone)
}

// classifyStatement converts a driver error raised by a statement into one of
// the typed errors. Errors that are already typed pass through unchanged.
func (c *Connection) classifyStatement(err error, op, query string, bindCount int) error {
	if err == nil {
		return nil
	}
	var (
		execErr    *SQLExecutionError
		timeoutErr *TimeoutError
		connErr    *ConnectionError
	)
	if errors.As(err, &execErr) || errors.As(err, &timeoutErr) || errors.As(err, &connErr) {
		return err
	}

	if isTimeout(err) {
		return &TimeoutError{Op: op, SQL: query, BindCount: bindCount, Err: err}
	}
	if isBrokenLink(err) {
		return &ConnectionError{Adapter: c.desc.Adapter, Host: c.desc.Host, Op: op, Err: err}
	}

	out := &SQLExecutionError{Message: err.Error(), SQL: query, BindCount: bindCount, Err: err}
	for _, classify := range engineClassifiers {
		if e, ok := classify(err); ok {
			out.Code = e.code
			out.SQLState = e.sqlState
			out.Message = e.message
			out.Column = e.column
			break
		}
	}
	return out
}

// classifyConnect converts a failure to open or ping the link.
func classifyConnect(desc Descriptor, err error) error {
	if isTimeout(err) {
		return &TimeoutError{Op: "connect", Err: err}
	}
	return &ConnectionError{Adapter: desc.Adapter, Host: desc.Host, Op: "connect", Err: err}
}
