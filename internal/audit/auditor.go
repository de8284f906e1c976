// Package audit records data and schema changes made through a connection.
// An Auditor is attached as a query hook and writes one structured record
// per audited statement. Bound values are never logged: only their SHA-256
// digest is kept so repeated writes can be correlated.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/coregx/dbadapter/internal/core"
	"github.com/coregx/dbadapter/internal/logger"
)

// Level selects which statements are audited.
type Level int

const (
	// LevelNone disables auditing.
	LevelNone Level = iota
	// LevelWrites audits INSERT, UPDATE, DELETE and REPLACE.
	LevelWrites
	// LevelSchema audits writes plus CREATE, ALTER and DROP.
	LevelSchema
	// LevelAll audits every statement, including reads and transaction control.
	LevelAll
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelWrites:
		return "writes"
	case LevelSchema:
		return "schema"
	case LevelAll:
		return "all"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel reads none, writes, schema or all. The empty string is none.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LevelNone, nil
	case "writes":
		return LevelWrites, nil
	case "schema":
		return LevelSchema, nil
	case "all":
		return LevelAll, nil
	}
	return LevelNone, fmt.Errorf("unknown audit level %q", s)
}

var writeOps = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true}

var schemaOps = map[string]bool{"CREATE": true, "ALTER": true, "DROP": true}

// Record is one audited statement.
type Record struct {
	Operation    string
	Object       string
	SQL          string
	ParamsHash   string
	RowsAffected int64
	ConnectionID uint64
	Depth        int
	DurationMS   int64
	User         string
	ClientIP     string
	RequestID    string
	Error        string
}

// Success reports whether the statement succeeded.
func (r Record) Success() bool { return r.Error == "" }

// Auditor writes audit records to a logger.
type Auditor struct {
	logger logger.Logger
	level  Level
}

// New creates an auditor. A nil logger disables it.
func New(l logger.Logger, level Level) *Auditor {
	return &Auditor{logger: l, level: level}
}

// Level returns the configured level.
func (a *Auditor) Level() Level { return a.level }

// Hook returns a query hook feeding this auditor.
func (a *Auditor) Hook() core.QueryHook {
	return a.Observe
}

// Observe audits one statement if the level selects it.
func (a *Auditor) Observe(ctx context.Context, e core.QueryEvent) {
	if !a.shouldAudit(e.Operation) {
		return
	}
	a.write(BuildRecord(ctx, e))
}

func (a *Auditor) shouldAudit(op string) bool {
	if a.logger == nil {
		return false
	}
	switch a.level {
	case LevelWrites:
		return writeOps[op]
	case LevelSchema:
		return writeOps[op] || schemaOps[op]
	case LevelAll:
		return true
	}
	return false
}

// BuildRecord turns a query event and its context metadata into a record.
func BuildRecord(ctx context.Context, e core.QueryEvent) Record {
	r := Record{
		Operation:    e.Operation,
		Object:       objectName(e.RealSQL),
		SQL:          e.RealSQL,
		ParamsHash:   hashParams(e.Args),
		RowsAffected: e.RowsAffected,
		ConnectionID: e.ConnectionID,
		Depth:        e.Depth,
		DurationMS:   e.Duration.Milliseconds(),
		User:         User(ctx),
		ClientIP:     ClientIP(ctx),
		RequestID:    RequestID(ctx),
	}
	if r.SQL == "" {
		r.SQL = e.SQL
	}
	if e.Error != nil {
		r.Error = e.Error.Error()
	}
	return r
}

func (a *Auditor) write(r Record) {
	logFn := a.logger.Info
	if !r.Success() {
		logFn = a.logger.Warn
	}
	logFn("audit",
		"operation", r.Operation,
		"object", r.Object,
		"sql", r.SQL,
		"params_hash", r.ParamsHash,
		"rows_affected", r.RowsAffected,
		"connection_id", r.ConnectionID,
		"depth", r.Depth,
		"duration_ms", r.DurationMS,
		"user", r.User,
		"client_ip", r.ClientIP,
		"request_id", r.RequestID,
		"success", r.Success(),
		"error", r.Error,
	)
}

func hashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	h := sha256.New()
	for _, p := range params {
		_, _ = fmt.Fprintf(h, "%T:%v;", p, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

var objectPattern = regexp.MustCompile(`(?is)^\s*(?:` +
	`INSERT\s+(?:OR\s+\w+\s+)?INTO|REPLACE\s+INTO|UPDATE|DELETE\s+FROM|` +
	`(?:CREATE|ALTER|DROP)\s+(?:UNIQUE\s+)?(?:TABLE|VIEW|INDEX)(?:\s+IF\s+(?:NOT\s+)?EXISTS)?` +
	`)\s+([` + "`" + `"\[\]\w.]+)`)

// objectName extracts the table, view or index a statement targets, with
// identifier quotes removed. It returns "" when the statement has no single target.
func objectName(query string) string {
	m := objectPattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.NewReplacer("`", "", `"`, "", "[", "", "]", "").Replace(m[1])
}

type contextKey string

const (
	userKey      contextKey = "dbadapter:user"
	clientIPKey  contextKey = "dbadapter:client_ip"
	requestIDKey contextKey = "dbadapter:request_id"
)

// WithUser attaches the acting user to ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithClientIP attaches the client address to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// User returns the user attached by WithUser.
func User(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

// ClientIP returns the address attached by WithClientIP.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// RequestID returns the id attached by WithRequestID.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
