package core

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/coregx/dbadapter/internal/logger"
)

// poolMonitor pings a shared persistent pool at a fixed interval so dead
// engine links are noticed before a connection pins them.
type poolMonitor struct {
	db       *sql.DB
	logger   logger.Logger
	adapter  string
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newPoolMonitor(db *sql.DB, log logger.Logger, adapter string, interval time.Duration) *poolMonitor {
	return &poolMonitor{
		db:       db,
		logger:   log,
		adapter:  adapter,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (m *poolMonitor) start() {
	m.wg.Add(1)
	go m.run()
}

func (m *poolMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ping()
		case <-m.stop:
			return
		}
	}
}

// ping bounds each check by the interval so a stalled engine cannot block shutdown for long.
func (m *poolMonitor) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	err := m.db.PingContext(ctx)

	m.mu.Lock()
	m.lastErr = err
	m.lastPing = time.Now()
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("persistent pool health check failed",
			"adapter", m.adapter,
			"error", err,
			"interval", m.interval)
	} else {
		m.logger.Debug("persistent pool health check passed",
			"adapter", m.adapter)
	}
}

// shutdown stops the loop and waits for it.
func (m *poolMonitor) shutdown() {
	close(m.stop)
	m.wg.Wait()
}

// status returns the most recent result. A zero time means no check ran yet.
func (m *poolMonitor) status() (lastErr error, lastCheck time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr, m.lastPing
}
