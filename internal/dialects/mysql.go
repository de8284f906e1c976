package dialects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/dbadapter/internal/schema"
)

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// EscapeIdentifier quotes each segment of a possibly schema-qualified name.
func (d *MySQLDialect) EscapeIdentifier(s string) string {
	return escapeSegments(s, d.QuoteIdentifier)
}

var mysqlStringEscaper = strings.NewReplacer(
	`\`, `\\`,
	"'", `\'`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

// EscapeString quotes a literal, escaping quotes and control characters.
func (d *MySQLDialect) EscapeString(s string) string {
	return "'" + mysqlStringEscaper.Replace(s) + "'"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// BackslashEscapes is true unless NO_BACKSLASH_ESCAPES is set on the server.
func (d *MySQLDialect) BackslashEscapes() bool { return true }

// Limit appends LIMIT/OFFSET, replacing an existing trailing clause,
// including the LIMIT offset, count form.
func (d *MySQLDialect) Limit(sql string, count, offset int) string {
	return limit(sql, count, offset)
}

// ForUpdate appends FOR UPDATE.
func (d *MySQLDialect) ForUpdate(sql string) (string, error) {
	return sql + " FOR UPDATE", nil
}

// SharedLock appends LOCK IN SHARE MODE.
func (d *MySQLDialect) SharedLock(sql string) (string, error) {
	return sql + " LOCK IN SHARE MODE", nil
}

// UpsertSQL generates MySQL UPSERT syntax using ON DUPLICATE KEY UPDATE.
// MySQL has no DO NOTHING; a nil updateCols assigns the first conflict
// column to itself instead.
func (d *MySQLDialect) UpsertSQL(_ string, conflictColumns, updateCols []string) string {
	if updateCols == nil {
		if len(conflictColumns) == 0 {
			return ""
		}
		q := d.QuoteIdentifier(conflictColumns[0])
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", q, q)
	}

	updates := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := d.QuoteIdentifier(col)
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}

func sized(name string, size int) string {
	if size > 0 {
		return name + "(" + strconv.Itoa(size) + ")"
	}
	return name
}

func (d *MySQLDialect) typeName(c schema.Column) (string, error) {
	var t string
	switch c.Type {
	case schema.TypeInteger:
		t = sized("INT", c.Size)
	case schema.TypeBigInteger:
		t = sized("BIGINT", c.Size)
	case schema.TypeSmallInteger:
		t = sized("SMALLINT", c.Size)
	case schema.TypeTinyInteger:
		t = sized("TINYINT", c.Size)
	case schema.TypeBoolean:
		return "TINYINT(1)", nil
	case schema.TypeDecimal:
		t = "DECIMAL"
		if c.Size > 0 {
			t = fmt.Sprintf("DECIMAL(%d,%d)", c.Size, c.Scale)
		}
	case schema.TypeFloat:
		t = "FLOAT"
	case schema.TypeDouble:
		t = "DOUBLE"
	case schema.TypeChar:
		return sized("CHAR", c.Size), nil
	case schema.TypeVarchar:
		size := c.Size
		if size <= 0 {
			size = 255
		}
		return sized("VARCHAR", size), nil
	case schema.TypeText:
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
	case schema.TypeJSON, schema.TypeJSONB:
		return "JSON", nil
	default:
		if c.TypeName != "" {
			return c.TypeName, nil
		}
		return "", fmt.Errorf("column %q: unrecognized type %s", c.Name, c.Type)
	}
	if c.Unsigned {
		t += " UNSIGNED"
	}
	return t, nil
}

// ColumnDefinition renders the type, nullability, default and AUTO_INCREMENT.
func (d *MySQLDialect) ColumnDefinition(c schema.Column) (string, error) {
	t, err := d.typeName(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(t)
	withDefault(&b, c)
	if c.AutoIncrement {
		b.WriteString(" AUTO_INCREMENT")
	}
	return b.String(), nil
}

var mysqlTypes = map[string]schema.ColumnType{
	"int":        schema.TypeInteger,
	"integer":    schema.TypeInteger,
	"mediumint":  schema.TypeInteger,
	"bigint":     schema.TypeBigInteger,
	"smallint":   schema.TypeSmallInteger,
	"tinyint":    schema.TypeTinyInteger,
	"bool":       schema.TypeBoolean,
	"boolean":    schema.TypeBoolean,
	"decimal":    schema.TypeDecimal,
	"numeric":    schema.TypeDecimal,
	"float":      schema.TypeFloat,
	"double":     schema.TypeDouble,
	"real":       schema.TypeDouble,
	"char":       schema.TypeChar,
	"varchar":    schema.TypeVarchar,
	"text":       schema.TypeText,
	"tinytext":   schema.TypeText,
	"mediumtext": schema.TypeText,
	"longtext":   schema.TypeText,
	"date":       schema.TypeDate,
	"datetime":   schema.TypeDatetime,
	"timestamp":  schema.TypeTimestamp,
	"time":       schema.TypeTime,
	"blob":       schema.TypeBlob,
	"tinyblob":   schema.TypeBlob,
	"mediumblob": schema.TypeBlob,
	"longblob":   schema.TypeBlob,
	"binary":     schema.TypeBlob,
	"varbinary":  schema.TypeBlob,
	"json":       schema.TypeJSON,
}

// ParseColumnType maps COLUMN_TYPE text such as "int(10) unsigned" to a
// column type. TINYINT(1) is reported as boolean.
func (d *MySQLDialect) ParseColumnType(typeText string) schema.Column {
	tt := schema.ParseTypeText(typeText)
	c := schema.Column{
		Type:     mysqlTypes[tt.Name],
		TypeName: typeText,
		Size:     tt.Size,
		Scale:    tt.Scale,
		Unsigned: tt.Unsigned,
	}
	if c.Type == schema.TypeTinyInteger && c.Size == 1 {
		c.Type = schema.TypeBoolean
		c.Size = 0
	}
	return c
}

var mysqlDefaultExpressions = map[string]bool{
	"CURRENT_TIMESTAMP":   true,
	"CURRENT_TIMESTAMP()": true,
	"NOW()":               true,
	"CURRENT_DATE":        true,
	"CURRENT_TIME":        true,
	"NULL":                true,
}

// ColumnFromCatalog builds a Column from an information_schema.COLUMNS row.
// COLUMN_DEFAULT holds unquoted literals, so non-numeric literals are quoted
// back into an expression.
func (d *MySQLDialect) ColumnFromCatalog(raw RawColumn) schema.Column {
	c := d.ParseColumnType(raw.TypeText)
	c.Name = raw.Name
	c.NotNull = raw.NotNull
	c.Primary = raw.Primary
	c.AutoIncrement = raw.AutoIncrement
	c.Position = raw.Position

	if raw.Default != nil {
		def := *raw.Default
		upper := strings.ToUpper(def)
		generated := strings.Contains(strings.ToUpper(raw.Extra), "DEFAULT_GENERATED")
		literal := !generated && !mysqlDefaultExpressions[upper] && !strings.HasPrefix(upper, "CURRENT_TIMESTAMP(")
		if literal && !c.Type.IsNumeric() && c.Type != schema.TypeBoolean {
			def = "'" + strings.ReplaceAll(def, "'", "''") + "'"
		}
		c.Default = &def
	}
	return c
}

func (d *MySQLDialect) indexClause(idx schema.Index) string {
	kind := "KEY "
	switch {
	case idx.Unique:
		kind = "UNIQUE KEY "
	case strings.EqualFold(idx.Type, "FULLTEXT"):
		kind = "FULLTEXT KEY "
	}
	return kind + d.QuoteIdentifier(idx.Name) + " (" + columnList(d, idx.Columns) + ")"
}

// mysqlTableOptions lists the accepted table options in rendering order.
var mysqlTableOptions = []struct{ key, clause string }{
	{"ENGINE", "ENGINE="},
	{"AUTO_INCREMENT", "AUTO_INCREMENT="},
	{"TABLE_CHARSET", "DEFAULT CHARSET="},
	{"TABLE_COLLATION", "COLLATE="},
}

func (d *MySQLDialect) tableOptions(opts map[string]string) (string, error) {
	known := make(map[string]bool, len(mysqlTableOptions))
	var parts []string
	for _, o := range mysqlTableOptions {
		known[o.key] = true
		if v, ok := opts[o.key]; ok && v != "" {
			parts = append(parts, o.clause+v)
		}
	}
	for k := range opts {
		if !known[k] {
			return "", fmt.Errorf("unknown table option %q", k)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " " + strings.Join(parts, " "), nil
}

// CreateTable renders a single CREATE TABLE with inline keys and options.
func (d *MySQLDialect) CreateTable(table, schemaName string, def schema.TableDefinition) ([]string, error) {
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("table %q must have at least one column", table)
	}

	lines := make([]string, 0, len(def.Columns)+len(def.Indexes)+len(def.References))
	for _, c := range def.Columns {
		colDef, err := d.ColumnDefinition(c)
		if err != nil {
			return nil, err
		}
		lines = append(lines, d.QuoteIdentifier(c.Name)+" "+colDef)
	}

	if pk := primaryColumns(def); len(pk) > 0 {
		lines = append(lines, "PRIMARY KEY ("+columnList(d, pk)+")")
	}
	for _, idx := range def.Indexes {
		if idx.Primary {
			continue
		}
		if idx.Name == "" || len(idx.Columns) == 0 {
			return nil, fmt.Errorf("index on %q requires a name and at least one column", table)
		}
		lines = append(lines, d.indexClause(idx))
	}
	for _, ref := range def.References {
		clause, err := referenceClause(d, ref, true)
		if err != nil {
			return nil, err
		}
		lines = append(lines, clause)
	}

	opts, err := d.tableOptions(def.Options)
	if err != nil {
		return nil, err
	}
	return []string{"CREATE TABLE " + qualify(d, table, schemaName) + " (\n\t" +
		strings.Join(lines, ",\n\t") + "\n)" + opts}, nil
}

// DropTable renders DROP TABLE.
func (d *MySQLDialect) DropTable(table, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + qualify(d, table, schemaName)
	}
	return "DROP TABLE " + qualify(d, table, schemaName)
}

func (d *MySQLDialect) placement(c schema.Column) string {
	switch {
	case c.First:
		return " FIRST"
	case c.After != "":
		return " AFTER " + d.QuoteIdentifier(c.After)
	}
	return ""
}

// AddColumn renders ALTER TABLE ... ADD, honoring FIRST and AFTER.
func (d *MySQLDialect) AddColumn(table, schemaName string, c schema.Column) (string, error) {
	colDef, err := d.ColumnDefinition(c)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD " +
		d.QuoteIdentifier(c.Name) + " " + colDef + d.placement(c), nil
}

// ModifyColumn renders MODIFY, or CHANGE when current carries another name.
func (d *MySQLDialect) ModifyColumn(table, schemaName string, c, current schema.Column) ([]string, error) {
	colDef, err := d.ColumnDefinition(c)
	if err != nil {
		return nil, err
	}
	target := "ALTER TABLE " + qualify(d, table, schemaName)
	if current.Name != "" && current.Name != c.Name {
		return []string{target + " CHANGE COLUMN " + d.QuoteIdentifier(current.Name) + " " +
			d.QuoteIdentifier(c.Name) + " " + colDef + d.placement(c)}, nil
	}
	return []string{target + " MODIFY " + d.QuoteIdentifier(c.Name) + " " + colDef + d.placement(c)}, nil
}

// DropColumn renders ALTER TABLE ... DROP COLUMN.
func (d *MySQLDialect) DropColumn(table, schemaName, column string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP COLUMN " + d.QuoteIdentifier(column), nil
}

// AddIndex renders ALTER TABLE ... ADD [UNIQUE|FULLTEXT] INDEX.
func (d *MySQLDialect) AddIndex(table, schemaName string, idx schema.Index) (string, error) {
	if idx.Name == "" || len(idx.Columns) == 0 {
		return "", fmt.Errorf("index on %q requires a name and at least one column", table)
	}
	kind := "INDEX "
	switch {
	case idx.Unique:
		kind = "UNIQUE INDEX "
	case strings.EqualFold(idx.Type, "FULLTEXT"):
		kind = "FULLTEXT INDEX "
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD " + kind +
		d.QuoteIdentifier(idx.Name) + " (" + columnList(d, idx.Columns) + ")", nil
}

// DropIndex renders ALTER TABLE ... DROP INDEX.
func (d *MySQLDialect) DropIndex(table, schemaName, index string) string {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP INDEX " + d.QuoteIdentifier(index)
}

// AddPrimaryKey renders ALTER TABLE ... ADD PRIMARY KEY.
func (d *MySQLDialect) AddPrimaryKey(table, schemaName string, idx schema.Index) (string, error) {
	if len(idx.Columns) == 0 {
		return "", fmt.Errorf("primary key on %q requires at least one column", table)
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD PRIMARY KEY (" + columnList(d, idx.Columns) + ")", nil
}

// DropPrimaryKey renders ALTER TABLE ... DROP PRIMARY KEY.
func (d *MySQLDialect) DropPrimaryKey(table, schemaName string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP PRIMARY KEY", nil
}

// AddForeignKey renders ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY.
func (d *MySQLDialect) AddForeignKey(table, schemaName string, ref schema.Reference) (string, error) {
	clause, err := referenceClause(d, ref, true)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD " + clause, nil
}

// DropForeignKey renders ALTER TABLE ... DROP FOREIGN KEY.
func (d *MySQLDialect) DropForeignKey(table, schemaName, name string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP FOREIGN KEY " + d.QuoteIdentifier(name), nil
}

// CreateView renders CREATE VIEW.
func (d *MySQLDialect) CreateView(view schema.View, schemaName string) (string, error) {
	if view.SQL == "" {
		return "", fmt.Errorf("view %q requires a defining query", view.Name)
	}
	return "CREATE VIEW " + qualify(d, view.Name, schemaName) + " AS " + view.SQL, nil
}

// DropView renders DROP VIEW.
func (d *MySQLDialect) DropView(view, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP VIEW IF EXISTS " + qualify(d, view, schemaName)
	}
	return "DROP VIEW " + qualify(d, view, schemaName)
}

func (d *MySQLDialect) BeginSQL() string                { return "START TRANSACTION" }
func (d *MySQLDialect) CommitSQL() string               { return "COMMIT" }
func (d *MySQLDialect) RollbackSQL() string             { return "ROLLBACK" }
func (d *MySQLDialect) SupportsSavepoints() bool        { return true }
func (d *MySQLDialect) SupportsReleaseSavepoints() bool { return true }

func (d *MySQLDialect) CreateSavepointSQL(name string) string {
	return "SAVEPOINT " + name
}

func (d *MySQLDialect) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + name
}

func (d *MySQLDialect) RollbackSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// mysqlSchema returns DATABASE() for the current database, otherwise a
// placeholder bound to schemaName.
func mysqlSchema(schemaName string, args []any) (string, []any) {
	if schemaName == "" {
		return "DATABASE()", args
	}
	return "?", append(args, schemaName)
}

func (d *MySQLDialect) ListTablesSQL(schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, nil)
	return "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = " + s +
		" AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME", args
}

func (d *MySQLDialect) ListViewsSQL(schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, nil)
	return "SELECT TABLE_NAME FROM information_schema.VIEWS WHERE TABLE_SCHEMA = " + s +
		" ORDER BY TABLE_NAME", args
}

func (d *MySQLDialect) TableExistsSQL(table, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{table})
	return "SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_NAME = ? AND TABLE_SCHEMA = " + s +
		" AND TABLE_TYPE = 'BASE TABLE'", args
}

func (d *MySQLDialect) ViewExistsSQL(view, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{view})
	return "SELECT COUNT(*) FROM information_schema.VIEWS WHERE TABLE_NAME = ? AND TABLE_SCHEMA = " + s, args
}

func (d *MySQLDialect) SchemaExistsSQL(schemaName string) (string, []any) {
	return "SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", []any{schemaName}
}

func (d *MySQLDialect) DescribeColumnsSQL(table, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{table})
	return `SELECT COLUMN_NAME AS column_name,
	COLUMN_TYPE AS column_type,
	IS_NULLABLE = 'NO' AS not_null,
	COLUMN_DEFAULT AS column_default,
	COLUMN_KEY = 'PRI' AS primary_key,
	EXTRA LIKE '%auto_increment%' AS auto_increment,
	EXTRA AS extra
FROM information_schema.COLUMNS
WHERE TABLE_NAME = ? AND TABLE_SCHEMA = ` + s + `
ORDER BY ORDINAL_POSITION`, args
}

func (d *MySQLDialect) DescribeIndexesSQL(table, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{table})
	return `SELECT INDEX_NAME AS index_name,
	COLUMN_NAME AS column_name,
	NON_UNIQUE = 0 AS is_unique,
	INDEX_NAME = 'PRIMARY' AS is_primary,
	INDEX_TYPE AS index_type
FROM information_schema.STATISTICS
WHERE TABLE_NAME = ? AND TABLE_SCHEMA = ` + s + `
ORDER BY INDEX_NAME, SEQ_IN_INDEX`, args
}

func (d *MySQLDialect) DescribeReferencesSQL(table, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{table})
	return `SELECT k.CONSTRAINT_NAME AS constraint_name,
	k.COLUMN_NAME AS column_name,
	k.REFERENCED_TABLE_SCHEMA AS referenced_schema,
	k.REFERENCED_TABLE_NAME AS referenced_table,
	k.REFERENCED_COLUMN_NAME AS referenced_column,
	r.UPDATE_RULE AS on_update,
	r.DELETE_RULE AS on_delete
FROM information_schema.KEY_COLUMN_USAGE k
JOIN information_schema.REFERENTIAL_CONSTRAINTS r
	ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
WHERE k.TABLE_NAME = ? AND k.TABLE_SCHEMA = ` + s + ` AND k.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, args
}

// TableOptionsSQL reads ENGINE, AUTO_INCREMENT and TABLE_COLLATION.
func (d *MySQLDialect) TableOptionsSQL(table, schemaName string) (string, []any) {
	s, args := mysqlSchema(schemaName, []any{table})
	return "SELECT ENGINE, AUTO_INCREMENT, TABLE_COLLATION FROM information_schema.TABLES" +
		" WHERE TABLE_NAME = ? AND TABLE_SCHEMA = " + s, args
}

func (d *MySQLDialect) SupportsSequences() bool { return false }

// LastInsertIDSQL is empty: the driver result carries LAST_INSERT_ID().
func (d *MySQLDialect) LastInsertIDSQL(_ string) (string, []any) { return "", nil }

func (d *MySQLDialect) DefaultIDValue() string   { return "NULL" }
func (d *MySQLDialect) UseExplicitIDValue() bool { return false }
