// Package schema defines the read-only descriptors exchanged between dialects
// and the introspector: columns, indexes, foreign key references, views and
// table definitions.
//
// Values returned by introspection are snapshots. They are never live views
// into the database and slices inside them are owned by the caller.
package schema

import (
	"strconv"
	"strings"
)

// ColumnType is the engine-neutral type of a column.
type ColumnType int

// Column types understood by every dialect.
const (
	TypeUnknown ColumnType = iota
	TypeInteger
	TypeBigInteger
	TypeSmallInteger
	TypeTinyInteger
	TypeBoolean
	TypeDecimal
	TypeFloat
	TypeDouble
	TypeChar
	TypeVarchar
	TypeText
	TypeDate
	TypeDatetime
	TypeTimestamp
	TypeTime
	TypeBlob
	TypeJSON
	TypeJSONB
)

var columnTypeNames = map[ColumnType]string{
	TypeUnknown:      "unknown",
	TypeInteger:      "integer",
	TypeBigInteger:   "biginteger",
	TypeSmallInteger: "smallinteger",
	TypeTinyInteger:  "tinyinteger",
	TypeBoolean:      "boolean",
	TypeDecimal:      "decimal",
	TypeFloat:        "float",
	TypeDouble:       "double",
	TypeChar:         "char",
	TypeVarchar:      "varchar",
	TypeText:         "text",
	TypeDate:         "date",
	TypeDatetime:     "datetime",
	TypeTimestamp:    "timestamp",
	TypeTime:         "time",
	TypeBlob:         "blob",
	TypeJSON:         "json",
	TypeJSONB:        "jsonb",
}

// String returns the lowercase name of the type.
func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsNumeric reports whether values of the type are numbers.
func (t ColumnType) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeBigInteger, TypeSmallInteger, TypeTinyInteger,
		TypeDecimal, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
	// TypeName is the type text as reported by the engine, e.g. "varchar(64)".
	// Dialects render it verbatim when Type is TypeUnknown.
	TypeName      string
	Size          int
	Scale         int
	Unsigned      bool
	NotNull       bool
	Primary       bool
	AutoIncrement bool
	// Default holds the default expression text; nil means no default.
	Default *string
	// Position is the 1-based physical position within the table.
	Position int
	// After places the column after another one (MySQL ADD/MODIFY COLUMN only).
	After string
	// First places the column first (MySQL ADD/MODIFY COLUMN only).
	First bool
}

// HasDefault reports whether the column carries a default expression.
func (c Column) HasDefault() bool {
	return c.Default != nil
}

// DefaultValue returns the default expression or an empty string.
func (c Column) DefaultValue() string {
	if c.Default == nil {
		return ""
	}
	return *c.Default
}

// Index describes an index over one or more columns.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Primary bool
	// Type is the engine index method, e.g. "BTREE". Empty when unknown.
	Type string
}

// Reference describes a foreign key constraint.
type Reference struct {
	Name              string
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
	OnUpdate          string
	OnDelete          string
}

// View describes a view definition.
type View struct {
	Name string
	SQL  string
}

// TableDefinition is the input to CREATE TABLE generation.
type TableDefinition struct {
	Columns    []Column
	Indexes    []Index
	References []Reference
	// Options are engine table options such as ENGINE or TABLE_COLLATION (MySQL).
	Options map[string]string
}

// Table is a full introspection snapshot of one table.
type Table struct {
	Schema     string
	Name       string
	Columns    []Column
	Indexes    map[string]Index
	References map[string]Reference
}

// Default returns a pointer to a default expression, for use in Column literals.
func Default(expr string) *string {
	return &expr
}

// TypeParts is engine type text split into its parts.
type TypeParts struct {
	Name     string
	Size     int
	Scale    int
	Unsigned bool
}

// ParseTypeText splits engine type text such as "decimal(10,2) unsigned" or
// "character varying(255)" into its base name, size, scale and unsigned flag.
// The base name is lowercased.
func ParseTypeText(text string) TypeParts {
	t := strings.ToLower(strings.TrimSpace(text))
	var out TypeParts

	if strings.HasSuffix(t, " unsigned") || strings.Contains(t, " unsigned ") {
		out.Unsigned = true
		t = strings.Replace(t, " unsigned", "", 1)
	}
	t = strings.ReplaceAll(t, " zerofill", "")

	open := strings.IndexByte(t, '(')
	if open < 0 {
		out.Name = strings.TrimSpace(t)
		return out
	}

	closing := strings.IndexByte(t[open:], ')')
	if closing < 0 {
		out.Name = strings.TrimSpace(t)
		return out
	}

	args := t[open+1 : open+closing]
	out.Name = strings.TrimSpace(t[:open] + t[open+closing+1:])

	parts := strings.SplitN(args, ",", 2)
	if n, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
		out.Size = n
	}
	if len(parts) == 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			out.Scale = n
		}
	}
	return out
}
