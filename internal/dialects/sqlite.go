package dialects

import (
	"fmt"
	"strings"

	"github.com/coregx/dbadapter/internal/schema"
)

// SQLiteDialect implements SQLite-specific SQL dialect.
//
// SQLite has no row locks and a restricted ALTER TABLE, so locking clauses,
// column modification and primary/foreign key alteration report
// UnsupportedFeatureError.
type SQLiteDialect struct{}

func init() {
	d := &SQLiteDialect{}
	RegisterDialect("sqlite", d)
	RegisterDialect("sqlite3", d)
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EscapeIdentifier quotes each segment of a possibly schema-qualified name.
func (d *SQLiteDialect) EscapeIdentifier(s string) string {
	return escapeSegments(s, d.QuoteIdentifier)
}

// EscapeString quotes a literal by doubling single quotes.
func (d *SQLiteDialect) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

func (d *SQLiteDialect) BackslashEscapes() bool { return false }

func (d *SQLiteDialect) Limit(sql string, count, offset int) string {
	return limit(sql, count, offset)
}

func (d *SQLiteDialect) ForUpdate(string) (string, error) {
	return "", unsupported(d, "FOR UPDATE")
}

func (d *SQLiteDialect) SharedLock(string) (string, error) {
	return "", unsupported(d, "shared row locks")
}

// UpsertSQL generates SQLite UPSERT syntax using ON CONFLICT.
func (d *SQLiteDialect) UpsertSQL(_ string, conflictColumns, updateCols []string) string {
	if updateCols == nil {
		if len(conflictColumns) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", columnList(d, conflictColumns))
		}
		return " ON CONFLICT DO NOTHING"
	}

	updates := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := d.QuoteIdentifier(col)
		updates[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		columnList(d, conflictColumns), strings.Join(updates, ", "))
}

func (d *SQLiteDialect) typeName(c schema.Column) (string, error) {
	switch c.Type {
	case schema.TypeInteger:
		return "INTEGER", nil
	case schema.TypeBigInteger:
		return "BIGINT", nil
	case schema.TypeSmallInteger:
		return "SMALLINT", nil
	case schema.TypeTinyInteger:
		return "TINYINT", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeDecimal:
		if c.Size > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", c.Size, c.Scale), nil
		}
		return "NUMERIC", nil
	case schema.TypeFloat:
		return "REAL", nil
	case schema.TypeDouble:
		return "DOUBLE", nil
	case schema.TypeChar:
		return sized("CHARACTER", c.Size), nil
	case schema.TypeVarchar:
		return sized("VARCHAR", c.Size), nil
	case schema.TypeText, schema.TypeJSON, schema.TypeJSONB:
		return "TEXT", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeDatetime:
		return "DATETIME", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeBlob:
		return "BLOB", nil
	}
	if c.TypeName != "" {
		return c.TypeName, nil
	}
	return "", fmt.Errorf("column %q: unrecognized type %s", c.Name, c.Type)
}

// ColumnDefinition renders the type, nullability and default of a column.
// An auto increment column becomes the rowid alias INTEGER PRIMARY KEY AUTOINCREMENT.
func (d *SQLiteDialect) ColumnDefinition(c schema.Column) (string, error) {
	if c.AutoIncrement {
		if !c.Type.IsNumeric() || c.Type == schema.TypeDecimal || c.Type == schema.TypeFloat || c.Type == schema.TypeDouble {
			return "", fmt.Errorf("column %q: auto increment requires an integer type", c.Name)
		}
		return "INTEGER PRIMARY KEY AUTOINCREMENT", nil
	}
	t, err := d.typeName(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(t)
	withDefault(&b, c)
	return b.String(), nil
}

var sqliteTypes = map[string]schema.ColumnType{
	"integer":           schema.TypeInteger,
	"int":               schema.TypeInteger,
	"mediumint":         schema.TypeInteger,
	"bigint":            schema.TypeBigInteger,
	"smallint":          schema.TypeSmallInteger,
	"tinyint":           schema.TypeTinyInteger,
	"boolean":           schema.TypeBoolean,
	"bool":              schema.TypeBoolean,
	"numeric":           schema.TypeDecimal,
	"decimal":           schema.TypeDecimal,
	"real":              schema.TypeFloat,
	"float":             schema.TypeFloat,
	"double":            schema.TypeDouble,
	"double precision":  schema.TypeDouble,
	"character":         schema.TypeChar,
	"char":              schema.TypeChar,
	"varchar":           schema.TypeVarchar,
	"character varying": schema.TypeVarchar,
	"nvarchar":          schema.TypeVarchar,
	"text":              schema.TypeText,
	"clob":              schema.TypeText,
	"date":              schema.TypeDate,
	"datetime":          schema.TypeDatetime,
	"timestamp":         schema.TypeTimestamp,
	"time":              schema.TypeTime,
	"blob":              schema.TypeBlob,
	"json":              schema.TypeJSON,
}

// ParseColumnType maps declared column type text to a column type.
func (d *SQLiteDialect) ParseColumnType(typeText string) schema.Column {
	tt := schema.ParseTypeText(typeText)
	return schema.Column{
		Type:     sqliteTypes[tt.Name],
		TypeName: typeText,
		Size:     tt.Size,
		Scale:    tt.Scale,
		Unsigned: tt.Unsigned,
	}
}

// ColumnFromCatalog builds a Column from a pragma_table_info row. Primary key
// columns are reported NOT NULL even when the pragma says otherwise.
func (d *SQLiteDialect) ColumnFromCatalog(raw RawColumn) schema.Column {
	c := d.ParseColumnType(raw.TypeText)
	c.Name = raw.Name
	c.NotNull = raw.NotNull || raw.Primary
	c.Primary = raw.Primary
	c.AutoIncrement = raw.AutoIncrement
	c.Default = raw.Default
	c.Position = raw.Position
	return c
}

// CreateTable renders CREATE TABLE followed by CREATE INDEX for non-unique indexes.
func (d *SQLiteDialect) CreateTable(table, schemaName string, def schema.TableDefinition) ([]string, error) {
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("table %q must have at least one column", table)
	}

	rowidAlias := false
	lines := make([]string, 0, len(def.Columns)+len(def.Indexes)+len(def.References))
	for _, c := range def.Columns {
		colDef, err := d.ColumnDefinition(c)
		if err != nil {
			return nil, err
		}
		rowidAlias = rowidAlias || c.AutoIncrement
		lines = append(lines, d.QuoteIdentifier(c.Name)+" "+colDef)
	}

	if pk := primaryColumns(def); len(pk) > 0 && !rowidAlias {
		lines = append(lines, "PRIMARY KEY ("+columnList(d, pk)+")")
	}

	var trailing []string
	for _, idx := range def.Indexes {
		switch {
		case idx.Primary:
			continue
		case idx.Unique:
			lines = append(lines, "CONSTRAINT "+d.QuoteIdentifier(idx.Name)+" UNIQUE ("+columnList(d, idx.Columns)+")")
		default:
			stmt, err := d.AddIndex(table, schemaName, idx)
			if err != nil {
				return nil, err
			}
			trailing = append(trailing, stmt)
		}
	}

	for _, ref := range def.References {
		clause, err := referenceClause(d, ref, false)
		if err != nil {
			return nil, err
		}
		lines = append(lines, clause)
	}

	stmt := "CREATE TABLE " + qualify(d, table, schemaName) + " (\n\t" + strings.Join(lines, ",\n\t") + "\n)"
	return append([]string{stmt}, trailing...), nil
}

func (d *SQLiteDialect) DropTable(table, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + qualify(d, table, schemaName)
	}
	return "DROP TABLE " + qualify(d, table, schemaName)
}

func (d *SQLiteDialect) AddColumn(table, schemaName string, c schema.Column) (string, error) {
	colDef, err := d.ColumnDefinition(c)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD COLUMN " + d.QuoteIdentifier(c.Name) + " " + colDef, nil
}

func (d *SQLiteDialect) ModifyColumn(string, string, schema.Column, schema.Column) ([]string, error) {
	return nil, unsupported(d, "altering columns")
}

func (d *SQLiteDialect) DropColumn(table, schemaName, column string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP COLUMN " + d.QuoteIdentifier(column), nil
}

// AddIndex renders CREATE INDEX. The schema qualifies the index, not the table.
func (d *SQLiteDialect) AddIndex(table, schemaName string, idx schema.Index) (string, error) {
	if idx.Name == "" || len(idx.Columns) == 0 {
		return "", fmt.Errorf("index on %q requires a name and at least one column", table)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return "CREATE " + unique + "INDEX " + qualify(d, idx.Name, schemaName) + " ON " +
		d.QuoteIdentifier(table) + " (" + columnList(d, idx.Columns) + ")", nil
}

func (d *SQLiteDialect) DropIndex(_, schemaName, index string) string {
	return "DROP INDEX " + qualify(d, index, schemaName)
}

func (d *SQLiteDialect) AddPrimaryKey(string, string, schema.Index) (string, error) {
	return "", unsupported(d, "adding a primary key to an existing table")
}

func (d *SQLiteDialect) DropPrimaryKey(string, string) (string, error) {
	return "", unsupported(d, "dropping a primary key")
}

func (d *SQLiteDialect) AddForeignKey(string, string, schema.Reference) (string, error) {
	return "", unsupported(d, "adding a foreign key to an existing table")
}

func (d *SQLiteDialect) DropForeignKey(string, string, string) (string, error) {
	return "", unsupported(d, "dropping a foreign key")
}

func (d *SQLiteDialect) CreateView(view schema.View, schemaName string) (string, error) {
	if view.SQL == "" {
		return "", fmt.Errorf("view %q requires a defining query", view.Name)
	}
	return "CREATE VIEW " + qualify(d, view.Name, schemaName) + " AS " + view.SQL, nil
}

func (d *SQLiteDialect) DropView(view, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP VIEW IF EXISTS " + qualify(d, view, schemaName)
	}
	return "DROP VIEW " + qualify(d, view, schemaName)
}

func (d *SQLiteDialect) BeginSQL() string                { return "BEGIN" }
func (d *SQLiteDialect) CommitSQL() string               { return "COMMIT" }
func (d *SQLiteDialect) RollbackSQL() string             { return "ROLLBACK" }
func (d *SQLiteDialect) SupportsSavepoints() bool        { return true }
func (d *SQLiteDialect) SupportsReleaseSavepoints() bool { return true }

func (d *SQLiteDialect) CreateSavepointSQL(name string) string {
	return "SAVEPOINT " + name
}

func (d *SQLiteDialect) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + name
}

func (d *SQLiteDialect) RollbackSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// sqliteSchema returns the attached database name, "main" by default.
func sqliteSchema(schemaName string) string {
	if schemaName == "" {
		return "main"
	}
	return schemaName
}

func (d *SQLiteDialect) master(schemaName string) string {
	return d.QuoteIdentifier(sqliteSchema(schemaName)) + ".sqlite_master"
}

func (d *SQLiteDialect) ListTablesSQL(schemaName string) (string, []any) {
	return "SELECT name FROM " + d.master(schemaName) +
		" WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", nil
}

func (d *SQLiteDialect) ListViewsSQL(schemaName string) (string, []any) {
	return "SELECT name FROM " + d.master(schemaName) + " WHERE type = 'view' ORDER BY name", nil
}

func (d *SQLiteDialect) TableExistsSQL(table, schemaName string) (string, []any) {
	return "SELECT COUNT(*) FROM " + d.master(schemaName) + " WHERE type = 'table' AND name = ?", []any{table}
}

func (d *SQLiteDialect) ViewExistsSQL(view, schemaName string) (string, []any) {
	return "SELECT COUNT(*) FROM " + d.master(schemaName) + " WHERE type = 'view' AND name = ?", []any{view}
}

func (d *SQLiteDialect) SchemaExistsSQL(schemaName string) (string, []any) {
	return "SELECT COUNT(*) FROM pragma_database_list WHERE name = ?", []any{schemaName}
}

// DescribeColumnsSQL reads pragma_table_info. A lone INTEGER primary key is
// the rowid alias and is reported as auto increment.
func (d *SQLiteDialect) DescribeColumnsSQL(table, schemaName string) (string, []any) {
	s := sqliteSchema(schemaName)
	return `SELECT p.name AS column_name,
	p.type AS column_type,
	p."notnull" AS not_null,
	p.dflt_value AS column_default,
	p.pk > 0 AS primary_key,
	(p.pk = 1 AND upper(p.type) = 'INTEGER' AND k.n = 1) AS auto_increment,
	'' AS extra
FROM pragma_table_info(?, ?) p,
	(SELECT COUNT(*) AS n FROM pragma_table_info(?, ?) WHERE pk > 0) k
ORDER BY p.cid`, []any{table, s, table, s}
}

func (d *SQLiteDialect) DescribeIndexesSQL(table, schemaName string) (string, []any) {
	s := sqliteSchema(schemaName)
	return `SELECT il.name AS index_name,
	ii.name AS column_name,
	il."unique" AS is_unique,
	il.origin = 'pk' AS is_primary,
	'' AS index_type
FROM pragma_index_list(?, ?) il,
	pragma_index_info(il.name, ?) ii
ORDER BY il.name, ii.seqno`, []any{table, s, s}
}

func (d *SQLiteDialect) DescribeReferencesSQL(table, schemaName string) (string, []any) {
	s := sqliteSchema(schemaName)
	return `SELECT 'foreign_key_' || fk.id AS constraint_name,
	fk."from" AS column_name,
	? AS referenced_schema,
	fk."table" AS referenced_table,
	fk."to" AS referenced_column,
	fk.on_update AS on_update,
	fk.on_delete AS on_delete
FROM pragma_foreign_key_list(?, ?) fk
ORDER BY fk.id, fk.seq`, []any{s, table, s}
}

func (d *SQLiteDialect) TableOptionsSQL(_, _ string) (string, []any) {
	return "", nil
}

func (d *SQLiteDialect) SupportsSequences() bool                   { return false }
func (d *SQLiteDialect) LastInsertIDSQL(_ string) (string, []any) { return "", nil }
func (d *SQLiteDialect) DefaultIDValue() string                    { return "NULL" }
func (d *SQLiteDialect) UseExplicitIDValue() bool                  { return false }
