// Package core implements connections to relational engines: lifecycle,
// statement execution with bind validation, nested transactions through
// savepoints, and schema introspection driven by a dialect.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/dbadapter/internal/cache"
	"github.com/coregx/dbadapter/internal/dialects"
	"github.com/coregx/dbadapter/internal/logger"
	"github.com/coregx/dbadapter/internal/tracer"
)

// State is the lifecycle state of a Connection.
type State int32

// Connection states.
const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// connectionIDs hands out process-wide connection ids; ids are never reused.
var connectionIDs atomic.Uint64

// Connection owns one physical link to a database engine.
//
// A Connection is single-owner: it is not safe for concurrent use. Run
// concurrent work on separate connections.
type Connection struct {
	id      uint64
	state   State
	desc    Descriptor
	dialect dialects.Dialect

	db      *sql.DB
	conn    *sql.Conn
	ownsDB  bool
	persist bool

	logger    logger.Logger
	tracer    tracer.Tracer
	sanitizer *logger.Sanitizer
	hooks     []QueryHook
	stmts     *cache.StmtCache
	cacheSize int
	pingEvery time.Duration
	cursors   map[*Cursor]struct{}

	useSavepoints bool
	depth         int

	sqlStatement     string
	realSQLStatement string
	sqlVariables     []any
	sqlBindTypes     []BindType
	affectedRows     int64
	lastResult       sql.Result
}

// Option is a functional option for configuring a Connection.
type Option func(*Connection)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for statement and transaction spans.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Connection) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithQueryHook registers a callback invoked after every statement. Hooks
// run in registration order.
func WithQueryHook(h QueryHook) Option {
	return func(c *Connection) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// WithSavepoints overrides the descriptor's nested transaction policy.
func WithSavepoints(enabled bool) Option {
	return func(c *Connection) {
		c.useSavepoints = enabled
	}
}

// WithStatementCache overrides the descriptor's prepared statement cache
// size. Zero disables the cache.
func WithStatementCache(size int) Option {
	return func(c *Connection) {
		c.cacheSize = size
	}
}

// WithPoolHealthCheck starts a background ping of the shared pool every
// interval when Connect opens a persistent pool. It has no effect on
// non-persistent descriptors or on pools that are already open.
func WithPoolHealthCheck(interval time.Duration) Option {
	return func(c *Connection) {
		c.pingEvery = interval
	}
}

// WithSensitiveFields replaces the column names whose bound values are masked in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(c *Connection) {
		c.sanitizer = logger.NewSanitizer(fields)
	}
}

func newConnection(desc Descriptor, d dialects.Dialect, opts []Option) *Connection {
	c := &Connection{
		id:            connectionIDs.Add(1),
		state:         StateClosed,
		desc:          desc,
		dialect:       d,
		logger:        &logger.NoopLogger{},
		tracer:        &tracer.NoopTracer{},
		sanitizer:     logger.NewSanitizer(nil),
		useSavepoints: desc.UseSavepoints,
		cacheSize:     desc.StatementCacheSize,
		cursors:       make(map[*Cursor]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		c.stmts = cache.NewStmtCacheWithCapacity(c.cacheSize)
	}
	return c
}

// Connect validates desc, opens the driver pool and pins one physical link.
// On failure the returned error is a ConnectionError or TimeoutError and no
// connection is returned.
func Connect(ctx context.Context, desc Descriptor, opts ...Option) (*Connection, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	desc = desc.normalized()
	d, err := dialects.GetDialect(desc.Adapter)
	if err != nil {
		return nil, err
	}

	c := newConnection(desc, d, opts)
	c.state = StateConnecting

	db, err := openPool(desc, c.pingEvery, c.logger)
	if err != nil {
		c.state = StateClosed
		return nil, classifyConnect(desc, err)
	}
	conn, err := db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		if !desc.Persistent {
			_ = db.Close()
		}
		c.state = StateClosed
		c.logger.Error("connect failed", "adapter", desc.Adapter, "host", desc.Host, "error", err)
		return nil, classifyConnect(desc, err)
	}

	c.db, c.conn = db, conn
	c.ownsDB = !desc.Persistent
	c.persist = desc.Persistent
	c.state = StateOpen
	c.logger.Info("connected",
		"connection_id", c.id,
		"adapter", desc.Adapter,
		"driver", desc.Driver,
		"host", desc.Host,
		"dbname", desc.DBName,
		"persistent", desc.Persistent)
	return c, nil
}

// WrapDB builds an open Connection on an existing pool. The pool stays owned
// by the caller: Close releases the pinned link but never closes db.
func WrapDB(ctx context.Context, db *sql.DB, adapter string, opts ...Option) (*Connection, error) {
	desc := Descriptor{Adapter: adapter}.normalized()
	d, err := dialects.GetDialect(desc.Adapter)
	if err != nil {
		return nil, err
	}
	c := newConnection(desc, d, opts)
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, classifyConnect(desc, err)
	}
	c.db, c.conn = db, conn
	c.state = StateOpen
	return c, nil
}

type sharedPool struct {
	db      *sql.DB
	monitor *poolMonitor
}

// persistentPools holds the pools shared by persistent descriptors, keyed by driver and DSN.
var persistentPools = struct {
	sync.Mutex
	pools map[string]*sharedPool
}{pools: make(map[string]*sharedPool)}

func poolKey(desc Descriptor, dsn string) string {
	return desc.Driver + "|" + dsn
}

func openPool(desc Descriptor, healthInterval time.Duration, log logger.Logger) (*sql.DB, error) {
	dsn, err := desc.DSN()
	if err != nil {
		return nil, err
	}
	if !desc.Persistent {
		return sql.Open(desc.Driver, dsn)
	}

	key := poolKey(desc, dsn)
	persistentPools.Lock()
	defer persistentPools.Unlock()
	if p, ok := persistentPools.pools[key]; ok {
		return p.db, nil
	}
	db, err := sql.Open(desc.Driver, dsn)
	if err != nil {
		return nil, err
	}
	p := &sharedPool{db: db}
	if healthInterval > 0 {
		p.monitor = newPoolMonitor(db, log, desc.Adapter, healthInterval)
		p.monitor.start()
	}
	persistentPools.pools[key] = p
	return db, nil
}

// ClosePersistentPools stops pool health checks and closes every pool opened
// for persistent descriptors. Connections still pinned to those pools fail
// on their next statement.
func ClosePersistentPools() error {
	persistentPools.Lock()
	defer persistentPools.Unlock()
	var firstErr error
	for key, p := range persistentPools.pools {
		if p.monitor != nil {
			p.monitor.shutdown()
		}
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(persistentPools.pools, key)
	}
	return firstErr
}

// PoolHealth reports the last background check of the shared pool behind a
// persistent connection. monitored is false when no health check runs for it.
func (c *Connection) PoolHealth() (lastErr error, lastCheck time.Time, monitored bool) {
	if !c.persist {
		return nil, time.Time{}, false
	}
	dsn, err := c.desc.DSN()
	if err != nil {
		return nil, time.Time{}, false
	}
	persistentPools.Lock()
	p, ok := persistentPools.pools[poolKey(c.desc, dsn)]
	persistentPools.Unlock()
	if !ok || p.monitor == nil {
		return nil, time.Time{}, false
	}
	lastErr, lastCheck = p.monitor.status()
	return lastErr, lastCheck, true
}

// Close releases the physical link. Closing a closed connection is a no-op.
// Cursors still open are closed first, then an open transaction is rolled
// back so the link never returns to a shared pool mid-transaction.
func (c *Connection) Close() error {
	if c.state == StateClosed {
		return nil
	}

	for cur := range c.cursors {
		if err := cur.Close(); err != nil {
			c.logger.Warn("closing cursor failed", "connection_id", c.id, "error", err)
		}
	}

	if c.depth > 0 {
		c.logger.Warn("closing connection with an active transaction",
			"connection_id", c.id, "depth", c.depth)
		if _, err := c.conn.ExecContext(context.Background(), c.dialect.RollbackSQL()); err != nil {
			c.logger.Error("rollback on close failed", "connection_id", c.id, "error", err)
		}
		c.depth = 0
	}

	if c.stmts != nil {
		c.stmts.Clear()
	}
	err := c.conn.Close()
	if c.ownsDB {
		if cerr := c.db.Close(); err == nil {
			err = cerr
		}
	}
	c.state = StateClosed
	c.logger.Info("connection closed", "connection_id", c.id)
	if err != nil {
		return &ConnectionError{Adapter: c.desc.Adapter, Host: c.desc.Host, Op: "close", Err: err}
	}
	return nil
}

// ensureOpen fails with ErrConnectionClosed wrapped in a ConnectionError.
func (c *Connection) ensureOpen(op string) error {
	if c.state != StateOpen {
		return &ConnectionError{Adapter: c.desc.Adapter, Host: c.desc.Host, Op: op, Err: ErrConnectionClosed}
	}
	return nil
}

// Ping verifies the physical link is alive.
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.ensureOpen("ping"); err != nil {
		return err
	}
	if err := c.conn.PingContext(ctx); err != nil {
		if isTimeout(err) {
			return &TimeoutError{Op: "ping", Err: err}
		}
		return &ConnectionError{Adapter: c.desc.Adapter, Host: c.desc.Host, Op: "ping", Err: err}
	}
	return nil
}

// ConnectionID returns the process-wide id assigned at construction.
func (c *Connection) ConnectionID() uint64 { return c.id }

// State returns the lifecycle state.
func (c *Connection) State() State { return c.state }

// Dialect returns the dialect selected at construction.
func (c *Connection) Dialect() dialects.Dialect { return c.dialect }

// DialectType returns the dialect name: mysql, postgres or sqlite.
func (c *Connection) DialectType() string { return c.dialect.Name() }

// Type returns the adapter name from the descriptor.
func (c *Connection) Type() string { return c.desc.Adapter }

// Descriptor returns a copy of the descriptor with the password redacted.
func (c *Connection) Descriptor() Descriptor { return c.desc.redacted() }

// SQLStatement returns the last statement sent to the engine, with native placeholders.
func (c *Connection) SQLStatement() string { return c.sqlStatement }

// RealSQLStatement returns the last statement as the caller wrote it.
func (c *Connection) RealSQLStatement() string { return c.realSQLStatement }

// SQLVariables returns the values bound to the last statement.
func (c *Connection) SQLVariables() []any {
	return append([]any(nil), c.sqlVariables...)
}

// SQLBindTypes returns the bind types of the last statement.
func (c *Connection) SQLBindTypes() []BindType {
	return append([]BindType(nil), c.sqlBindTypes...)
}

// AffectedRows returns the row count reported by the last Execute.
func (c *Connection) AffectedRows() int64 { return c.affectedRows }

// Raw returns the pinned link for driver-specific work. Statements issued
// through it bypass bookkeeping.
func (c *Connection) Raw() *sql.Conn { return c.conn }

// StatementCacheStats reports prepared statement cache metrics; ok is false
// when the cache is disabled.
func (c *Connection) StatementCacheStats() (stats cache.Stats, ok bool) {
	if c.stmts == nil {
		return cache.Stats{}, false
	}
	return c.stmts.Stats(), true
}
