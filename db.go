// Package dbadapter gives MySQL, PostgreSQL and SQLite one contract:
// connection lifecycle, nested transactions through savepoints, bound
// statement execution with validation before any round trip, dialect DDL
// generation and schema introspection.
//
//	conn, err := dbadapter.Connect(ctx, dbadapter.Descriptor{
//	    Adapter: "postgres", Host: "localhost", Username: "app", DBName: "robots",
//	    UseSavepoints: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	err = conn.InsertAsDict(ctx, "robots", dbadapter.Dict{{"name", "Astro Boy"}, {"year", 1952}})
package dbadapter

import (
	"github.com/coregx/dbadapter/internal/audit"
	"github.com/coregx/dbadapter/internal/config"
	"github.com/coregx/dbadapter/internal/core"
	"github.com/coregx/dbadapter/internal/dialects"
	"github.com/coregx/dbadapter/internal/logger"
	"github.com/coregx/dbadapter/internal/messages"
	"github.com/coregx/dbadapter/internal/schema"
	"github.com/coregx/dbadapter/internal/tracer"
)

type (
	// Connection owns one physical link to a database engine.
	Connection = core.Connection
	// Descriptor is the connection configuration.
	Descriptor = core.Descriptor
	// Option configures a Connection.
	Option = core.Option
	// State is the lifecycle state of a Connection.
	State = core.State

	// Cursor is a forward-only handle over a row-returning statement.
	Cursor = core.Cursor
	// Row is one fetched row.
	Row = core.Row
	// FetchMode selects how a Row is addressed.
	FetchMode = core.FetchMode
	// ValueGetter is the read path used by field validators.
	ValueGetter = core.ValueGetter

	// Params binds ":name" placeholders.
	Params = core.Params
	// BindType declares how a bound value is coerced.
	BindType = core.BindType
	// TypedValue is a value with a declared bind type.
	TypedValue = core.TypedValue
	// RawValue is an SQL expression inlined by the insert and update builders.
	RawValue = core.RawValue
	// Pair is one column and its value.
	Pair = core.Pair
	// Dict is ordered column data.
	Dict = core.Dict
	// Where is the condition of an update or delete.
	Where = core.Where

	// QueryEvent describes one statement passed to a QueryHook.
	QueryEvent = core.QueryEvent
	// QueryHook is invoked after every statement.
	QueryHook = core.QueryHook

	// ConnectionError reports a failure of the physical link.
	ConnectionError = core.ConnectionError
	// TimeoutError reports an expired transport deadline.
	TimeoutError = core.TimeoutError
	// SQLExecutionError reports a statement the engine rejected.
	SQLExecutionError = core.SQLExecutionError
	// BindCountMismatchError reports placeholders and values that do not line up.
	BindCountMismatchError = core.BindCountMismatchError
	// InvalidBindStyleError reports mixed or mismatched placeholder styles.
	InvalidBindStyleError = core.InvalidBindStyleError
	// BindTypeError reports a value that cannot take its declared bind type.
	BindTypeError = core.BindTypeError
	// UnsupportedDialectFeatureError reports a request the engine cannot express.
	UnsupportedDialectFeatureError = core.UnsupportedDialectFeatureError

	// Dialect renders engine-specific SQL.
	Dialect = dialects.Dialect
	// Column, Index, Reference, View, TableDefinition and Table describe schema objects.
	Column          = schema.Column
	Index           = schema.Index
	Reference       = schema.Reference
	View            = schema.View
	TableDefinition = schema.TableDefinition
	Table           = schema.Table
	// ColumnType is the portable column type.
	ColumnType = schema.ColumnType

	// Message is an error report with field, type and code.
	Message = messages.Message
	// MessageGroup is an ordered list of messages.
	MessageGroup = messages.Group
	// Config is configuration loaded from defaults, YAML and environment.
	Config = config.Config
	// Logger is the structured logger interface.
	Logger = logger.Logger
	// Tracer is the tracing interface.
	Tracer = tracer.Tracer
	// Auditor records data and schema changes through a query hook.
	Auditor = audit.Auditor
	// AuditLevel selects which statements are audited.
	AuditLevel = audit.Level
)

// Fetch modes.
const (
	FetchAssoc = core.FetchAssoc
	FetchNum   = core.FetchNum
	FetchBoth  = core.FetchBoth
)

// Bind types.
const (
	BindSkip    = core.BindSkip
	BindNull    = core.BindNull
	BindInt     = core.BindInt
	BindStr     = core.BindStr
	BindBool    = core.BindBool
	BindDecimal = core.BindDecimal
	BindBlob    = core.BindBlob
)

// Audit levels.
const (
	AuditNone   = audit.LevelNone
	AuditWrites = audit.LevelWrites
	AuditSchema = audit.LevelSchema
	AuditAll    = audit.LevelAll
)

// Column types.
const (
	TypeInteger      = schema.TypeInteger
	TypeBigInteger   = schema.TypeBigInteger
	TypeSmallInteger = schema.TypeSmallInteger
	TypeTinyInteger  = schema.TypeTinyInteger
	TypeBoolean      = schema.TypeBoolean
	TypeDecimal      = schema.TypeDecimal
	TypeFloat        = schema.TypeFloat
	TypeDouble       = schema.TypeDouble
	TypeChar         = schema.TypeChar
	TypeVarchar      = schema.TypeVarchar
	TypeText         = schema.TypeText
	TypeDate         = schema.TypeDate
	TypeDatetime     = schema.TypeDatetime
	TypeTimestamp    = schema.TypeTimestamp
	TypeTime         = schema.TypeTime
	TypeBlob         = schema.TypeBlob
	TypeJSON         = schema.TypeJSON
	TypeJSONB        = schema.TypeJSONB
)

// Sentinel errors.
var (
	ErrConnectionClosed    = core.ErrConnectionClosed
	ErrNoActiveTransaction = core.ErrNoActiveTransaction
	ErrTransactionActive   = core.ErrTransactionActive
	ErrInvalidDescriptor   = core.ErrInvalidDescriptor
	ErrNoSuchTable         = core.ErrNoSuchTable
	ErrUnknownDialect      = core.ErrUnknownDialect
)

// Re-exported constructors and helpers.
var (
	Connect              = core.Connect
	WrapDB               = core.WrapDB
	ClosePersistentPools = core.ClosePersistentPools
	DescriptorFromMap    = core.DescriptorFromMap
	Typed                = core.Typed
	MessageFromError     = core.MessageFromError
	Default              = schema.Default
	GetDialect           = dialects.GetDialect
	LoadConfig           = config.Load

	WithLogger          = core.WithLogger
	WithTracer          = core.WithTracer
	WithQueryHook       = core.WithQueryHook
	WithSavepoints      = core.WithSavepoints
	WithStatementCache  = core.WithStatementCache
	WithSensitiveFields = core.WithSensitiveFields
	WithPoolHealthCheck = core.WithPoolHealthCheck

	NewSlogAdapter = logger.NewSlogAdapter
	NewOtelTracer  = tracer.NewOtelTracer
	NewAuditor     = audit.New
	WithAuditUser  = audit.WithUser
	WithRequestID  = audit.WithRequestID
	WithClientIP   = audit.WithClientIP
)
