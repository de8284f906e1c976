package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := registerMockDriver()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func createTestStmt(t *testing.T, db *sql.DB, query string) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare(query)
	require.NoError(t, err)
	return stmt
}

// isClosed reports whether database/sql considers stmt closed.
func isClosed(stmt *sql.Stmt) bool {
	_, err := stmt.Exec()
	return err != nil && err.Error() == "sql: statement is closed"
}

func TestNewStmtCacheWithCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{"positive capacity", 100, 100},
		{"zero capacity", 0, DefaultStmtCacheCapacity},
		{"negative capacity", -10, DefaultStmtCacheCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewStmtCacheWithCapacity(tt.capacity)
			require.NotNil(t, cache)
			assert.Equal(t, tt.expected, cache.Stats().Capacity)
		})
	}
	assert.Equal(t, DefaultStmtCacheCapacity, NewStmtCache().Stats().Capacity)
}

func TestStmtCache_GetSet(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCache()

	stmt, found := cache.Get("SELECT 1")
	assert.Nil(t, stmt)
	assert.False(t, found)

	testStmt := createTestStmt(t, db, "SELECT 1")
	cache.Set("SELECT 1", testStmt)

	stmt, found = cache.Get("SELECT 1")
	assert.True(t, found)
	assert.Same(t, testStmt, stmt)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestStmtCache_GetOrPrepare(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(4)

	calls := 0
	prepare := func(ctx context.Context, query string) (*sql.Stmt, error) {
		calls++
		return db.PrepareContext(ctx, query)
	}

	first, err := cache.GetOrPrepare(context.Background(), `SELECT * FROM "robots" WHERE "id" = $1`, prepare)
	require.NoError(t, err)
	second, err := cache.GetOrPrepare(context.Background(), `SELECT * FROM "robots" WHERE "id" = $1`, prepare)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestStmtCache_GetOrPrepareFailureCachesNothing(t *testing.T) {
	cache := NewStmtCacheWithCapacity(4)
	boom := errors.New("syntax error")

	_, err := cache.GetOrPrepare(context.Background(), "SELEC 1", func(context.Context, string) (*sql.Stmt, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestStmtCache_LRUEviction(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(3)

	stmts := make([]*sql.Stmt, 4)
	for i := range stmts {
		stmts[i] = createTestStmt(t, db, fmt.Sprintf("SELECT %d", i))
	}
	cache.Set("q0", stmts[0])
	cache.Set("q1", stmts[1])
	cache.Set("q2", stmts[2])

	// q0 becomes most recently used, so q1 is evicted next.
	_, ok := cache.Get("q0")
	require.True(t, ok)
	cache.Set("q3", stmts[3])

	_, ok = cache.Get("q1")
	assert.False(t, ok)
	assert.True(t, isClosed(stmts[1]), "evicted statements are closed")
	assert.False(t, isClosed(stmts[0]))

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestStmtCache_ReplaceClosesPrevious(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCache()

	old := createTestStmt(t, db, "SELECT 1")
	fresh := createTestStmt(t, db, "SELECT 1")
	cache.Set("q", old)
	cache.Set("q", old)
	assert.False(t, isClosed(old), "re-setting the same statement keeps it open")

	cache.Set("q", fresh)
	assert.True(t, isClosed(old))
	got, ok := cache.Get("q")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestStmtCache_Delete(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCache()

	stmt := createTestStmt(t, db, "SELECT 1")
	cache.Set("q", stmt)

	assert.True(t, cache.Delete("q"))
	assert.False(t, cache.Delete("q"))
	assert.True(t, isClosed(stmt))
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestStmtCache_Clear(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCache()

	a := createTestStmt(t, db, "SELECT 1")
	b := createTestStmt(t, db, "SELECT 2")
	cache.Set("a", a)
	cache.Set("b", b)
	_, _ = cache.Get("a")

	cache.Clear()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits, "statistics survive a clear")
	assert.True(t, isClosed(a))
	assert.True(t, isClosed(b))
}

func TestStmtCache_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	cache := NewStmtCacheWithCapacity(8)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("SELECT %d", (g*50+i)%16)
				_, err := cache.GetOrPrepare(context.Background(), key, db.PrepareContext)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Size, 8)
	assert.Equal(t, uint64(400), stats.Hits+stats.Misses)
}
