// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, MySQL, and SQLite: identifier and literal escaping, placeholders,
// LIMIT and locking clauses, DDL generation, transaction control statements and
// the catalog queries used for schema introspection.
//
// Dialects are stateless and safe for concurrent use by any number of
// connections.
package dialects

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/coregx/dbadapter/internal/schema"
)

// Quoter escapes identifiers and literals and renders placeholders.
type Quoter interface {
	// QuoteIdentifier quotes a single identifier segment.
	QuoteIdentifier(name string) string
	// EscapeIdentifier quotes every dot-separated segment of name and rejoins
	// them with dots. Escaping text that is already quoted is undefined.
	EscapeIdentifier(name string) string
	// EscapeString renders value as a quoted SQL string literal.
	EscapeString(value string) string
	// Placeholder returns the native placeholder for the 1-based position n.
	Placeholder(n int) string
	// BackslashEscapes reports whether backslash escapes quotes inside literals.
	BackslashEscapes() bool
}

// Clauses rewrites SELECT statements.
type Clauses interface {
	// Limit replaces any trailing LIMIT/OFFSET clause of sql with a new one.
	// An offset <= 0 omits OFFSET.
	Limit(sql string, count, offset int) string
	// ForUpdate appends an exclusive row lock clause.
	ForUpdate(sql string) (string, error)
	// SharedLock appends a shared row lock clause.
	SharedLock(sql string) (string, error)
	// UpsertSQL returns the conflict clause appended to an INSERT.
	// A nil updateColumns means "do nothing" on conflict.
	UpsertSQL(table string, conflictColumns, updateColumns []string) string
}

// DDL renders schema-changing statements.
type DDL interface {
	ColumnDefinition(column schema.Column) (string, error)
	ParseColumnType(typeText string) schema.Column
	CreateTable(table, schemaName string, def schema.TableDefinition) ([]string, error)
	DropTable(table, schemaName string, ifExists bool) string
	AddColumn(table, schemaName string, column schema.Column) (string, error)
	ModifyColumn(table, schemaName string, column, current schema.Column) ([]string, error)
	DropColumn(table, schemaName, column string) (string, error)
	AddIndex(table, schemaName string, index schema.Index) (string, error)
	DropIndex(table, schemaName, index string) string
	AddPrimaryKey(table, schemaName string, index schema.Index) (string, error)
	DropPrimaryKey(table, schemaName string) (string, error)
	AddForeignKey(table, schemaName string, ref schema.Reference) (string, error)
	DropForeignKey(table, schemaName, name string) (string, error)
	CreateView(view schema.View, schemaName string) (string, error)
	DropView(view, schemaName string, ifExists bool) string
}

// Transactions renders transaction control statements.
type Transactions interface {
	BeginSQL() string
	CommitSQL() string
	RollbackSQL() string
	SupportsSavepoints() bool
	SupportsReleaseSavepoints() bool
	CreateSavepointSQL(name string) string
	ReleaseSavepointSQL(name string) string
	RollbackSavepointSQL(name string) string
}

// Introspection renders catalog queries. Every query uses the dialect's
// native placeholders and returns the shape documented on each method.
type Introspection interface {
	// ListTablesSQL returns one text column: the table name.
	ListTablesSQL(schemaName string) (string, []any)
	// ListViewsSQL returns one text column: the view name.
	ListViewsSQL(schemaName string) (string, []any)
	// TableExistsSQL, ViewExistsSQL and SchemaExistsSQL return one integer count.
	TableExistsSQL(table, schemaName string) (string, []any)
	ViewExistsSQL(view, schemaName string) (string, []any)
	SchemaExistsSQL(schemaName string) (string, []any)
	// DescribeColumnsSQL returns (column_name, column_type, not_null,
	// column_default, primary_key, auto_increment, extra) in physical order.
	DescribeColumnsSQL(table, schemaName string) (string, []any)
	// DescribeIndexesSQL returns (index_name, column_name, is_unique,
	// is_primary, index_type) ordered by index then column position.
	DescribeIndexesSQL(table, schemaName string) (string, []any)
	// DescribeReferencesSQL returns (constraint_name, column_name,
	// referenced_schema, referenced_table, referenced_column, on_update,
	// on_delete) ordered by constraint then column position.
	DescribeReferencesSQL(table, schemaName string) (string, []any)
	// TableOptionsSQL returns at most one row whose column names are the
	// option names, or an empty query when the engine has no table options.
	TableOptionsSQL(table, schemaName string) (string, []any)
	// ColumnFromCatalog converts one DescribeColumnsSQL row into a Column.
	ColumnFromCatalog(raw RawColumn) schema.Column
}

// Identity describes how the engine generates identity values.
type Identity interface {
	SupportsSequences() bool
	// LastInsertIDSQL returns the query reading the last generated identity,
	// or an empty query when the driver result carries it.
	LastInsertIDSQL(sequence string) (string, []any)
	// DefaultIDValue is the expression inserted into identity columns.
	DefaultIDValue() string
	// UseExplicitIDValue reports whether identity columns need an explicit value.
	UseExplicitIDValue() bool
}

// Dialect defines database-specific behaviors.
type Dialect interface {
	Name() string
	Quoter
	Clauses
	DDL
	Transactions
	Introspection
	Identity
}

// RawColumn is one row of a DescribeColumnsSQL result.
type RawColumn struct {
	Name          string
	TypeText      string
	NotNull       bool
	Default       *string
	Primary       bool
	AutoIncrement bool
	Extra         string
	Position      int
}

// ErrUnknownDialect is returned by GetDialect for unregistered names.
var ErrUnknownDialect = errors.New("unknown dialect")

// UnsupportedFeatureError is returned when a dialect cannot express a request.
type UnsupportedFeatureError struct {
	Dialect string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s dialect does not support %s", e.Dialect, e.Feature)
}

func unsupported(d Dialect, feature string) error {
	return &UnsupportedFeatureError{Dialect: d.Name(), Feature: feature}
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by adapter or driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by name.
func GetDialect(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownDialect, name, strings.Join(namesLocked(), ", "))
}

// Names returns all registered dialect names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// escapeSegments quotes each dot-separated part of name independently.
func escapeSegments(name string, quote func(string) string) string {
	if !strings.Contains(name, ".") {
		return quote(strings.TrimSpace(name))
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote(strings.TrimSpace(part))
	}
	return strings.Join(parts, ".")
}

// qualify renders an optionally schema-qualified object name.
func qualify(q Quoter, name, schemaName string) string {
	if schemaName == "" {
		return q.EscapeIdentifier(name)
	}
	return q.QuoteIdentifier(schemaName) + "." + q.QuoteIdentifier(name)
}

// columnList quotes and joins column names.
func columnList(q Quoter, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = q.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// trailingLimit matches LIMIT n, LIMIT o, n and LIMIT n OFFSET m at the end of a statement.
var trailingLimit = regexp.MustCompile(`(?is)\s+LIMIT\s+\d+(?:\s*,\s*\d+)?(?:\s+OFFSET\s+\d+)?\s*$`)

func limit(sql string, count, offset int) string {
	if count < 0 {
		count = 0
	}
	base := trailingLimit.ReplaceAllString(strings.TrimRight(sql, " \t\r\n"), "")
	out := base + " LIMIT " + strconv.Itoa(count)
	if offset > 0 {
		out += " OFFSET " + strconv.Itoa(offset)
	}
	return out
}

var referentialActions = map[string]bool{
	"CASCADE":     true,
	"RESTRICT":    true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"NO ACTION":   true,
}

// referenceClause renders FOREIGN KEY ... REFERENCES ... for ref.
func referenceClause(q Quoter, ref schema.Reference, withSchema bool) (string, error) {
	if len(ref.Columns) == 0 || len(ref.Columns) != len(ref.ReferencedColumns) {
		return "", fmt.Errorf("foreign key %q: %d columns reference %d columns",
			ref.Name, len(ref.Columns), len(ref.ReferencedColumns))
	}
	if ref.ReferencedTable == "" {
		return "", fmt.Errorf("foreign key %q: referenced table is required", ref.Name)
	}

	target := q.QuoteIdentifier(ref.ReferencedTable)
	if withSchema && ref.ReferencedSchema != "" {
		target = q.QuoteIdentifier(ref.ReferencedSchema) + "." + target
	}

	var b strings.Builder
	if ref.Name != "" {
		b.WriteString("CONSTRAINT " + q.QuoteIdentifier(ref.Name) + " ")
	}
	b.WriteString("FOREIGN KEY (" + columnList(q, ref.Columns) + ") REFERENCES " +
		target + " (" + columnList(q, ref.ReferencedColumns) + ")")

	for _, action := range []struct{ clause, value string }{
		{"ON DELETE", ref.OnDelete},
		{"ON UPDATE", ref.OnUpdate},
	} {
		if action.value == "" {
			continue
		}
		v := strings.ToUpper(strings.TrimSpace(action.value))
		if !referentialActions[v] {
			return "", fmt.Errorf("foreign key %q: invalid referential action %q", ref.Name, action.value)
		}
		b.WriteString(" " + action.clause + " " + v)
	}
	return b.String(), nil
}

// primaryColumns returns the primary key columns of def: the primary index if
// present, otherwise every column flagged Primary.
func primaryColumns(def schema.TableDefinition) []string {
	for _, idx := range def.Indexes {
		if idx.Primary {
			return idx.Columns
		}
	}
	var cols []string
	for _, c := range def.Columns {
		if c.Primary {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// withDefault appends nullability and the default expression to a type.
func withDefault(b *strings.Builder, column schema.Column) {
	if column.NotNull {
		b.WriteString(" NOT NULL")
	}
	if column.Default != nil {
		b.WriteString(" DEFAULT " + *column.Default)
	}
}
