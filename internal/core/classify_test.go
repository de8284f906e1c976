package core

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbadapter/internal/dialects"
	"github.com/coregx/dbadapter/internal/messages"
)

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestClassifyStatement_EngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		adapter    string
		err        error
		wantCode   string
		wantState  string
		wantMsg    string
		wantColumn string
	}{
		{
			name:       "mysql null column",
			adapter:    "mysql",
			err:        &mysql.MySQLError{Number: 1048, SQLState: [5]byte{'2', '3', '0', '0', '0'}, Message: "Column 'name' cannot be null"},
			wantCode:   "1048",
			wantState:  "23000",
			wantMsg:    "Column 'name' cannot be null",
			wantColumn: "name",
		},
		{
			name:     "mysql without sqlstate",
			adapter:  "mysql",
			err:      &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"},
			wantCode: "1205",
			wantMsg:  "Lock wait timeout exceeded",
		},
		{
			name:       "pgx not null violation",
			adapter:    "postgres",
			err:        &pgconn.PgError{Code: "23502", Message: `null value in column "name" violates not-null constraint`, ColumnName: "name"},
			wantCode:   "23502",
			wantState:  "23502",
			wantMsg:    `null value in column "name" violates not-null constraint`,
			wantColumn: "name",
		},
		{
			name:      "lib/pq unique violation",
			adapter:   "postgres",
			err:       &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"},
			wantCode:  "23505",
			wantState: "23505",
			wantMsg:   "duplicate key value violates unique constraint",
		},
		{
			name:      "wrapped driver error",
			adapter:   "postgres",
			err:       fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P01", Message: `relation "ghosts" does not exist`}),
			wantCode:  "42P01",
			wantState: "42P01",
			wantMsg:   `relation "ghosts" does not exist`,
		},
		{
			name:    "unknown driver error keeps its text",
			adapter: "sqlite",
			err:     errors.New("database is locked"),
			wantMsg: "database is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConn(t, tt.adapter)
			err := c.classifyStatement(tt.err, "execute", "INSERT INTO robots (name) VALUES (?)", 1)

			var execErr *SQLExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.wantCode, execErr.Code)
			assert.Equal(t, tt.wantState, execErr.SQLState)
			assert.Equal(t, tt.wantMsg, execErr.Message)
			assert.Equal(t, tt.wantColumn, execErr.Column)
			assert.Equal(t, "INSERT INTO robots (name) VALUES (?)", execErr.SQL)
			assert.Equal(t, 1, execErr.BindCount)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyStatement_TransportErrors(t *testing.T) {
	c := testConn(t, "mysql")
	c.desc.Host = "db.internal"

	err := c.classifyStatement(netTimeout{}, "query", "SELECT 1", 0)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "query", timeoutErr.Op)
	assert.Equal(t, "SELECT 1", timeoutErr.SQL)

	err = c.classifyStatement(fmt.Errorf("read: %w", context.DeadlineExceeded), "query", "SELECT 1", 0)
	require.ErrorAs(t, err, &timeoutErr)

	for _, broken := range []error{driver.ErrBadConn, mysql.ErrInvalidConn} {
		err = c.classifyStatement(broken, "execute", "SELECT 1", 0)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr, broken.Error())
		assert.Equal(t, "mysql", connErr.Adapter)
		assert.Equal(t, "db.internal", connErr.Host)
		assert.Equal(t, "execute", connErr.Op)
	}
}

func TestClassifyStatement_TypedErrorsPassThrough(t *testing.T) {
	c := testConn(t, "postgres")
	assert.NoError(t, c.classifyStatement(nil, "execute", "SELECT 1", 0))

	typed := &SQLExecutionError{Message: "already classified", SQL: "SELECT 1"}
	assert.Same(t, typed, c.classifyStatement(typed, "execute", "SELECT 2", 0))
}

func TestClassifyConnect(t *testing.T) {
	desc := Descriptor{Adapter: "postgres", Host: "db.internal"}

	err := classifyConnect(desc, errors.New("password authentication failed"))
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, "postgres connect (db.internal): password authentication failed", err.Error())

	err = classifyConnect(desc, netTimeout{})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "connect timed out: i/o timeout", err.Error())
}

func TestSQLiteColumnPattern(t *testing.T) {
	tests := map[string]string{
		"NOT NULL constraint failed: robots.name":                                   "name",
		"constraint failed: NOT NULL constraint failed: robots.name (1299)":         "name",
		"UNIQUE constraint failed: robots.name, robots.type":                        "name",
		"FOREIGN KEY constraint failed":                                             "",
		"CHECK constraint failed: year_positive":                                    "year_positive",
		"constraint failed: UNIQUE constraint failed: robots_parts.robot_id (2067)": "robot_id",
	}
	for msg, want := range tests {
		var got string
		if m := sqliteColumn.FindStringSubmatch(msg); m != nil {
			got = m[1]
		}
		assert.Equal(t, want, got, msg)
	}
}

func TestMessageFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want messages.Message
	}{
		{
			name: "execution error prefers code",
			err:  &SQLExecutionError{Code: "1062", SQLState: "23000", Column: "name"},
			want: messages.Message{Field: "name", Type: "SQLExecution", Code: "1062"},
		},
		{
			name: "execution error falls back to sqlstate",
			err:  &SQLExecutionError{SQLState: "23505"},
			want: messages.Message{Type: "SQLExecution", Code: "23505"},
		},
		{
			name: "timeout",
			err:  &TimeoutError{Op: "query"},
			want: messages.Message{Type: "Timeout", Code: "query"},
		},
		{
			name: "connection",
			err:  &ConnectionError{Op: "begin", Err: ErrConnectionClosed},
			want: messages.Message{Type: "Connection", Code: "begin"},
		},
		{
			name: "missing named value",
			err:  &BindCountMismatchError{Missing: "id"},
			want: messages.Message{Field: "id", Type: "BindCountMismatch"},
		},
		{
			name: "bind style",
			err:  &InvalidBindStyleError{Reason: "mixed"},
			want: messages.Message{Type: "InvalidBindStyle"},
		},
		{
			name: "bind type",
			err:  &BindTypeError{Position: 3, Type: BindInt},
			want: messages.Message{Field: "3", Type: "BindType", Code: "int"},
		},
		{
			name: "unsupported feature",
			err:  &dialects.UnsupportedFeatureError{Dialect: "sqlite", Feature: "ALTER COLUMN"},
			want: messages.Message{Type: "UnsupportedDialectFeature", Code: "ALTER COLUMN"},
		},
		{
			name: "no active transaction",
			err:  fmt.Errorf("commit: %w", ErrNoActiveTransaction),
			want: messages.Message{Type: "NoActiveTransaction"},
		},
		{
			name: "no such table",
			err:  ErrNoSuchTable,
			want: messages.Message{Type: "NoSuchTable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MessageFromError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, got.Text)
		})
	}

	_, ok := MessageFromError(nil)
	assert.False(t, ok)
	_, ok = MessageFromError(errors.New("unrelated"))
	assert.False(t, ok)
}
