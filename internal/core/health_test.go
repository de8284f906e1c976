package core

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/coregx/dbadapter/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestPoolMonitor_RecordsPings(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	m := newPoolMonitor(db, &logger.NoopLogger{}, "sqlite", 20*time.Millisecond)
	lastErr, lastCheck := m.status()
	assert.NoError(t, lastErr)
	assert.True(t, lastCheck.IsZero())

	m.start()
	defer m.shutdown()

	assert.Eventually(t, func() bool {
		_, at := m.status()
		return !at.IsZero()
	}, time.Second, 10*time.Millisecond)

	lastErr, _ = m.status()
	assert.NoError(t, lastErr)
}

func TestPoolMonitor_RecordsFailure(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	m := newPoolMonitor(db, &logger.NoopLogger{}, "sqlite", 20*time.Millisecond)
	m.start()
	defer m.shutdown()

	assert.Eventually(t, func() bool {
		lastErr, _ := m.status()
		return lastErr != nil
	}, time.Second, 10*time.Millisecond)
}

func TestPoolMonitor_ShutdownStopsLoop(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	m := newPoolMonitor(db, &logger.NoopLogger{}, "sqlite", time.Hour)
	m.start()

	done := make(chan struct{})
	go func() {
		m.shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return")
	}
}

func TestConnect_PersistentPoolHealthCheck(t *testing.T) {
	t.Cleanup(func() { _ = ClosePersistentPools() })

	ctx := context.Background()
	desc := Descriptor{Adapter: "sqlite", DBName: "file:health?mode=memory&cache=shared", Persistent: true}

	conn, err := Connect(ctx, desc, WithPoolHealthCheck(20*time.Millisecond))
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		_, at, monitored := conn.PoolHealth()
		return monitored && !at.IsZero()
	}, time.Second, 10*time.Millisecond)

	lastErr, _, _ := conn.PoolHealth()
	assert.NoError(t, lastErr)

	// A second persistent connection reuses the pool and its monitor.
	other, err := Connect(ctx, desc)
	require.NoError(t, err)
	defer other.Close()
	_, _, monitored := other.PoolHealth()
	assert.True(t, monitored)

	require.NoError(t, ClosePersistentPools())
	_, _, monitored = conn.PoolHealth()
	assert.False(t, monitored)
}

func TestConnect_NonPersistentHasNoHealthCheck(t *testing.T) {
	conn, err := Connect(context.Background(),
		Descriptor{Adapter: "sqlite", DBName: ":memory:"},
		WithPoolHealthCheck(20*time.Millisecond))
	require.NoError(t, err)
	defer conn.Close()

	_, _, monitored := conn.PoolHealth()
	assert.False(t, monitored)
}
