package core

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn wraps a sqlmock pool that matches statements verbatim.
func mockConn(t *testing.T, adapter string, opts ...Option) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := WrapDB(context.Background(), db, adapter, opts...)
	require.NoError(t, err)
	return conn, mock
}

func done() driver.Result { return sqlmock.NewResult(0, 0) }

func TestTransaction_NestedWithSavepoints(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres", WithSavepoints(true))

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("SAVEPOINT DBADAPTER_SAVEPOINT_2").WillReturnResult(done())
	mock.ExpectExec("SAVEPOINT DBADAPTER_SAVEPOINT_3").WillReturnResult(done())
	mock.ExpectExec("RELEASE SAVEPOINT DBADAPTER_SAVEPOINT_3").WillReturnResult(done())
	mock.ExpectExec("ROLLBACK TO SAVEPOINT DBADAPTER_SAVEPOINT_2").WillReturnResult(done())
	mock.ExpectExec("COMMIT").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Begin(ctx))
	assert.Equal(t, 3, conn.TransactionLevel())
	assert.Equal(t, "DBADAPTER_SAVEPOINT_3", conn.NestedTransactionSavepointName())

	require.NoError(t, conn.Commit(ctx))
	assert.Equal(t, 2, conn.TransactionLevel())
	require.NoError(t, conn.Rollback(ctx))
	assert.Equal(t, 1, conn.TransactionLevel())
	assert.True(t, conn.IsUnderTransaction())
	require.NoError(t, conn.Commit(ctx))

	assert.Equal(t, 0, conn.TransactionLevel())
	assert.False(t, conn.IsUnderTransaction())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_MySQLBeginStatement(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "mysql")

	mock.ExpectExec("START TRANSACTION").WillReturnResult(done())
	mock.ExpectExec("ROLLBACK").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_NestedWithoutSavepoints(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "sqlite", WithSavepoints(false))

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("COMMIT").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Begin(ctx))
	assert.Equal(t, 2, conn.TransactionLevel())
	require.NoError(t, conn.Commit(ctx), "inner commit is absorbed by the outer transaction")
	require.NoError(t, conn.Commit(ctx))

	assert.Equal(t, 0, conn.TransactionLevel())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_NoActiveTransaction(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres")

	assert.ErrorIs(t, conn.Commit(ctx), ErrNoActiveTransaction)
	assert.ErrorIs(t, conn.Rollback(ctx), ErrNoActiveTransaction)
	assert.Equal(t, 0, conn.TransactionLevel())
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing may reach the engine")
}

func TestTransaction_FailedStatementsKeepDepth(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres", WithSavepoints(true))

	mock.ExpectExec("BEGIN").WillReturnError(errors.New("server busy"))
	err := conn.Begin(ctx)
	var execErr *SQLExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, conn.TransactionLevel())

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("serialization failure"))
	require.NoError(t, conn.Begin(ctx))
	require.Error(t, conn.Commit(ctx))
	assert.Equal(t, 1, conn.TransactionLevel())

	mock.ExpectExec("SAVEPOINT DBADAPTER_SAVEPOINT_2").WillReturnError(errors.New("too many savepoints"))
	require.Error(t, conn.Begin(ctx))
	assert.Equal(t, 1, conn.TransactionLevel())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_SavepointPolicy(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "mysql")

	assert.False(t, conn.IsNestedTransactionsWithSavepoints())
	require.NoError(t, conn.SetNestedTransactionsWithSavepoints(true))
	assert.True(t, conn.IsNestedTransactionsWithSavepoints())

	mock.ExpectExec("START TRANSACTION").WillReturnResult(done())
	require.NoError(t, conn.Begin(ctx))
	assert.ErrorIs(t, conn.SetNestedTransactionsWithSavepoints(false), ErrTransactionActive)
	assert.True(t, conn.IsNestedTransactionsWithSavepoints())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_Transactional(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on success", func(t *testing.T) {
		conn, mock := mockConn(t, "sqlite")
		mock.ExpectExec("BEGIN").WillReturnResult(done())
		mock.ExpectExec("COMMIT").WillReturnResult(done())

		err := conn.Transactional(ctx, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		conn, mock := mockConn(t, "sqlite")
		mock.ExpectExec("BEGIN").WillReturnResult(done())
		mock.ExpectExec("ROLLBACK").WillReturnResult(done())

		boom := errors.New("boom")
		err := conn.Transactional(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, conn.TransactionLevel())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback failure is reported", func(t *testing.T) {
		conn, mock := mockConn(t, "sqlite")
		mock.ExpectExec("BEGIN").WillReturnResult(done())
		mock.ExpectExec("ROLLBACK").WillReturnError(errors.New("link lost"))

		boom := errors.New("boom")
		err := conn.Transactional(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "rollback failed")
	})

	t.Run("rollback and re-panic", func(t *testing.T) {
		conn, mock := mockConn(t, "sqlite")
		mock.ExpectExec("BEGIN").WillReturnResult(done())
		mock.ExpectExec("ROLLBACK").WillReturnResult(done())

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = conn.Transactional(ctx, func(context.Context) error { panic("kaboom") })
		})
		assert.Equal(t, 0, conn.TransactionLevel())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested uses savepoints", func(t *testing.T) {
		conn, mock := mockConn(t, "sqlite", WithSavepoints(true))
		mock.ExpectExec("BEGIN").WillReturnResult(done())
		mock.ExpectExec("SAVEPOINT DBADAPTER_SAVEPOINT_2").WillReturnResult(done())
		mock.ExpectExec("ROLLBACK TO SAVEPOINT DBADAPTER_SAVEPOINT_2").WillReturnResult(done())
		mock.ExpectExec("COMMIT").WillReturnResult(done())

		inner := errors.New("inner failed")
		err := conn.Transactional(ctx, func(ctx context.Context) error {
			assert.ErrorIs(t, conn.Transactional(ctx, func(context.Context) error { return inner }), inner)
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransaction_NamedSavepoints(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres")

	assert.ErrorIs(t, conn.CreateSavepoint(ctx, "before_import"), ErrNoActiveTransaction)
	assert.ErrorIs(t, conn.CreateSavepoint(ctx, "bad name; DROP TABLE robots"), ErrInvalidSavepointName)

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("SAVEPOINT before_import").WillReturnResult(done())
	mock.ExpectExec("ROLLBACK TO SAVEPOINT before_import").WillReturnResult(done())
	mock.ExpectExec("RELEASE SAVEPOINT before_import").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.CreateSavepoint(ctx, "before_import"))
	require.NoError(t, conn.RollbackSavepoint(ctx, "before_import"))
	require.NoError(t, conn.ReleaseSavepoint(ctx, "before_import"))
	assert.Equal(t, 1, conn.TransactionLevel(), "named savepoints do not change the depth")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_CloseRollsBackOpenTransaction(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres")

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("ROLLBACK").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, 0, conn.TransactionLevel())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_ClosedConnection(t *testing.T) {
	ctx := context.Background()
	conn, _ := mockConn(t, "postgres")
	require.NoError(t, conn.Close())

	for name, fn := range map[string]func() error{
		"begin":    func() error { return conn.Begin(ctx) },
		"commit":   func() error { return conn.Commit(ctx) },
		"rollback": func() error { return conn.Rollback(ctx) },
	} {
		err := fn()
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr, name)
		assert.ErrorIs(t, err, ErrConnectionClosed, name)
	}
}

func TestTransaction_CommitKeepsLastInsertID(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "mysql")

	mock.ExpectExec("START TRANSACTION").WillReturnResult(done())
	mock.ExpectExec("INSERT INTO robots (name) VALUES (?)").WithArgs("Astro Boy").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec("COMMIT").WillReturnResult(done())

	require.NoError(t, conn.Begin(ctx))
	_, err := conn.Execute(ctx, "INSERT INTO robots (name) VALUES (?)", "Astro Boy")
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))

	id, err := conn.LastInsertID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_TransactionalCommitFailureLeavesRollbackToCaller(t *testing.T) {
	ctx := context.Background()
	conn, mock := mockConn(t, "postgres")

	mock.ExpectExec("BEGIN").WillReturnResult(done())
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("serialization failure"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(done())

	err := conn.Transactional(ctx, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 1, conn.TransactionLevel())

	require.NoError(t, conn.Rollback(ctx))
	assert.Equal(t, 0, conn.TransactionLevel())
	assert.NoError(t, mock.ExpectationsWereMet())
}
