package dialects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/dbadapter/internal/schema"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	d := &PostgresDialect{}
	RegisterDialect("postgres", d)
	RegisterDialect("postgresql", d)
	RegisterDialect("pgx", d)
}

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EscapeIdentifier quotes each segment of a possibly schema-qualified name.
func (d *PostgresDialect) EscapeIdentifier(s string) string {
	return escapeSegments(s, d.QuoteIdentifier)
}

// EscapeString quotes a literal with standard conforming strings.
func (d *PostgresDialect) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

// BackslashEscapes is false: standard_conforming_strings is on by default.
func (d *PostgresDialect) BackslashEscapes() bool { return false }

// Limit appends LIMIT/OFFSET, replacing an existing trailing clause.
func (d *PostgresDialect) Limit(sql string, count, offset int) string {
	return limit(sql, count, offset)
}

// ForUpdate appends FOR UPDATE.
func (d *PostgresDialect) ForUpdate(sql string) (string, error) {
	return sql + " FOR UPDATE", nil
}

// SharedLock appends FOR SHARE.
func (d *PostgresDialect) SharedLock(sql string) (string, error) {
	return sql + " FOR SHARE", nil
}

// UpsertSQL generates PostgreSQL UPSERT syntax using ON CONFLICT.
func (d *PostgresDialect) UpsertSQL(_ string, conflictColumns, updateCols []string) string {
	if updateCols == nil {
		if len(conflictColumns) > 0 {
			return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", columnList(d, conflictColumns))
		}
		return " ON CONFLICT DO NOTHING"
	}

	parts := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := d.QuoteIdentifier(col)
		parts[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		columnList(d, conflictColumns), strings.Join(parts, ", "))
}

func (d *PostgresDialect) typeName(c schema.Column) (string, error) {
	switch c.Type {
	case schema.TypeInteger:
		if c.AutoIncrement {
			return "SERIAL", nil
		}
		return "INTEGER", nil
	case schema.TypeBigInteger:
		if c.AutoIncrement {
			return "BIGSERIAL", nil
		}
		return "BIGINT", nil
	case schema.TypeSmallInteger, schema.TypeTinyInteger:
		if c.AutoIncrement {
			return "SMALLSERIAL", nil
		}
		return "SMALLINT", nil
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
		return "DOUBLE PRECISION", nil
	case schema.TypeChar:
		size := c.Size
		if size <= 0 {
			size = 1
		}
		return fmt.Sprintf("CHARACTER(%d)", size), nil
	case schema.TypeVarchar:
		if c.Size > 0 {
			return fmt.Sprintf("CHARACTER VARYING(%d)", c.Size), nil
		}
		return "CHARACTER VARYING", nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeDatetime:
		return "TIMESTAMP", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeBlob:
		return "BYTEA", nil
	case schema.TypeJSON:
		return "JSON", nil
	case schema.TypeJSONB:
		return "JSONB", nil
	}
	if c.TypeName != "" {
		return c.TypeName, nil
	}
	return "", fmt.Errorf("column %q: unrecognized type %s", c.Name, c.Type)
}

// ColumnDefinition renders the type, nullability and default of a column.
// Auto increment integers become SERIAL types and never carry a default.
func (d *PostgresDialect) ColumnDefinition(c schema.Column) (string, error) {
	t, err := d.typeName(c)
	if err != nil {
		return "", err
	}
	if c.AutoIncrement {
		c.Default = nil
	}
	var b strings.Builder
	b.WriteString(t)
	withDefault(&b, c)
	return b.String(), nil
}

var postgresTypes = map[string]schema.ColumnType{
	"integer":                     schema.TypeInteger,
	"int":                         schema.TypeInteger,
	"int4":                        schema.TypeInteger,
	"serial":                      schema.TypeInteger,
	"bigint":                      schema.TypeBigInteger,
	"int8":                        schema.TypeBigInteger,
	"bigserial":                   schema.TypeBigInteger,
	"smallint":                    schema.TypeSmallInteger,
	"int2":                        schema.TypeSmallInteger,
	"boolean":                     schema.TypeBoolean,
	"bool":                        schema.TypeBoolean,
	"numeric":                     schema.TypeDecimal,
	"decimal":                     schema.TypeDecimal,
	"real":                        schema.TypeFloat,
	"float4":                      schema.TypeFloat,
	"double precision":            schema.TypeDouble,
	"float8":                      schema.TypeDouble,
	"character":                   schema.TypeChar,
	"char":                        schema.TypeChar,
	"bpchar":                      schema.TypeChar,
	"character varying":           schema.TypeVarchar,
	"varchar":                     schema.TypeVarchar,
	"text":                        schema.TypeText,
	"date":                        schema.TypeDate,
	"timestamp":                   schema.TypeDatetime,
	"timestamp without time zone": schema.TypeDatetime,
	"timestamp with time zone":    schema.TypeTimestamp,
	"timestamptz":                 schema.TypeTimestamp,
	"time":                        schema.TypeTime,
	"time without time zone":      schema.TypeTime,
	"bytea":                       schema.TypeBlob,
	"json":                        schema.TypeJSON,
	"jsonb":                       schema.TypeJSONB,
}

// ParseColumnType maps format_type() output to a column type.
func (d *PostgresDialect) ParseColumnType(typeText string) schema.Column {
	tt := schema.ParseTypeText(typeText)
	return schema.Column{
		Type:     postgresTypes[tt.Name],
		TypeName: typeText,
		Size:     tt.Size,
		Scale:    tt.Scale,
	}
}

// ColumnFromCatalog builds a Column from a pg_attribute row. Sequence-backed
// defaults are dropped since they are implied by AutoIncrement.
func (d *PostgresDialect) ColumnFromCatalog(raw RawColumn) schema.Column {
	c := d.ParseColumnType(raw.TypeText)
	c.Name = raw.Name
	c.NotNull = raw.NotNull
	c.Primary = raw.Primary
	c.AutoIncrement = raw.AutoIncrement
	c.Position = raw.Position
	if !raw.AutoIncrement {
		c.Default = raw.Default
	}
	return c
}

// CreateTable renders CREATE TABLE followed by CREATE INDEX for non-unique indexes.
func (d *PostgresDialect) CreateTable(table, schemaName string, def schema.TableDefinition) ([]string, error) {
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
		clause, err := referenceClause(d, ref, true)
		if err != nil {
			return nil, err
		}
		lines = append(lines, clause)
	}

	stmt := "CREATE TABLE " + qualify(d, table, schemaName) + " (\n\t" + strings.Join(lines, ",\n\t") + "\n)"
	return append([]string{stmt}, trailing...), nil
}

// DropTable renders DROP TABLE.
func (d *PostgresDialect) DropTable(table, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + qualify(d, table, schemaName)
	}
	return "DROP TABLE " + qualify(d, table, schemaName)
}

// AddColumn renders ALTER TABLE ... ADD COLUMN.
func (d *PostgresDialect) AddColumn(table, schemaName string, c schema.Column) (string, error) {
	colDef, err := d.ColumnDefinition(c)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD COLUMN " + d.QuoteIdentifier(c.Name) + " " + colDef, nil
}

// ModifyColumn renders a rename (when current has another name) followed by
// one ALTER TABLE changing type, nullability and default.
func (d *PostgresDialect) ModifyColumn(table, schemaName string, c, current schema.Column) ([]string, error) {
	target := qualify(d, table, schemaName)
	var stmts []string
	if current.Name != "" && current.Name != c.Name {
		stmts = append(stmts, "ALTER TABLE "+target+" RENAME COLUMN "+
			d.QuoteIdentifier(current.Name)+" TO "+d.QuoteIdentifier(c.Name))
	}

	plain := c
	plain.AutoIncrement = false
	t, err := d.typeName(plain)
	if err != nil {
		return nil, err
	}

	col := "ALTER COLUMN " + d.QuoteIdentifier(c.Name)
	clauses := []string{col + " TYPE " + t}
	if c.NotNull {
		clauses = append(clauses, col+" SET NOT NULL")
	} else {
		clauses = append(clauses, col+" DROP NOT NULL")
	}
	switch {
	case c.Default != nil:
		clauses = append(clauses, col+" SET DEFAULT "+*c.Default)
	case current.Default != nil:
		clauses = append(clauses, col+" DROP DEFAULT")
	}

	return append(stmts, "ALTER TABLE "+target+" "+strings.Join(clauses, ", ")), nil
}

// DropColumn renders ALTER TABLE ... DROP COLUMN.
func (d *PostgresDialect) DropColumn(table, schemaName, column string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP COLUMN " + d.QuoteIdentifier(column), nil
}

// AddIndex renders CREATE [UNIQUE] INDEX.
func (d *PostgresDialect) AddIndex(table, schemaName string, idx schema.Index) (string, error) {
	if idx.Name == "" || len(idx.Columns) == 0 {
		return "", fmt.Errorf("index on %q requires a name and at least one column", table)
	}
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX " + d.QuoteIdentifier(idx.Name) + " ON " + qualify(d, table, schemaName))
	if idx.Type != "" {
		b.WriteString(" USING " + strings.ToLower(idx.Type))
	}
	b.WriteString(" (" + columnList(d, idx.Columns) + ")")
	return b.String(), nil
}

// DropIndex renders DROP INDEX; indexes live in the table's schema.
func (d *PostgresDialect) DropIndex(_, schemaName, index string) string {
	return "DROP INDEX " + qualify(d, index, schemaName)
}

// AddPrimaryKey renders ALTER TABLE ... ADD PRIMARY KEY.
func (d *PostgresDialect) AddPrimaryKey(table, schemaName string, idx schema.Index) (string, error) {
	if len(idx.Columns) == 0 {
		return "", fmt.Errorf("primary key on %q requires at least one column", table)
	}
	constraint := ""
	if idx.Name != "" {
		constraint = "CONSTRAINT " + d.QuoteIdentifier(idx.Name) + " "
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD " + constraint +
		"PRIMARY KEY (" + columnList(d, idx.Columns) + ")", nil
}

// DropPrimaryKey drops the constraint named by PostgreSQL's default <table>_pkey convention.
func (d *PostgresDialect) DropPrimaryKey(table, schemaName string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP CONSTRAINT " + d.QuoteIdentifier(table+"_pkey"), nil
}

// AddForeignKey renders ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY.
func (d *PostgresDialect) AddForeignKey(table, schemaName string, ref schema.Reference) (string, error) {
	clause, err := referenceClause(d, ref, true)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + qualify(d, table, schemaName) + " ADD " + clause, nil
}

// DropForeignKey renders ALTER TABLE ... DROP CONSTRAINT.
func (d *PostgresDialect) DropForeignKey(table, schemaName, name string) (string, error) {
	return "ALTER TABLE " + qualify(d, table, schemaName) + " DROP CONSTRAINT " + d.QuoteIdentifier(name), nil
}

// CreateView renders CREATE VIEW.
func (d *PostgresDialect) CreateView(view schema.View, schemaName string) (string, error) {
	if view.SQL == "" {
		return "", fmt.Errorf("view %q requires a defining query", view.Name)
	}
	return "CREATE VIEW " + qualify(d, view.Name, schemaName) + " AS " + view.SQL, nil
}

// DropView renders DROP VIEW.
func (d *PostgresDialect) DropView(view, schemaName string, ifExists bool) string {
	if ifExists {
		return "DROP VIEW IF EXISTS " + qualify(d, view, schemaName)
	}
	return "DROP VIEW " + qualify(d, view, schemaName)
}

func (d *PostgresDialect) BeginSQL() string                { return "BEGIN" }
func (d *PostgresDialect) CommitSQL() string               { return "COMMIT" }
func (d *PostgresDialect) RollbackSQL() string             { return "ROLLBACK" }
func (d *PostgresDialect) SupportsSavepoints() bool        { return true }
func (d *PostgresDialect) SupportsReleaseSavepoints() bool { return true }

func (d *PostgresDialect) CreateSavepointSQL(name string) string {
	return "SAVEPOINT " + name
}

func (d *PostgresDialect) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + name
}

func (d *PostgresDialect) RollbackSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

// pgSchema returns the schema predicate operand: current_schema() when
// schemaName is empty, otherwise the placeholder $n bound to schemaName.
func pgSchema(schemaName string, n int, args []any) (string, []any) {
	if schemaName == "" {
		return "current_schema()", args
	}
	return "$" + strconv.Itoa(n), append(args, schemaName)
}

func (d *PostgresDialect) ListTablesSQL(schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 1, nil)
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = " + s +
		" AND table_type = 'BASE TABLE' ORDER BY table_name", args
}

func (d *PostgresDialect) ListViewsSQL(schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 1, nil)
	return "SELECT viewname FROM pg_views WHERE schemaname = " + s + " ORDER BY viewname", args
}

func (d *PostgresDialect) TableExistsSQL(table, schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 2, []any{table})
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1 AND table_schema = " + s +
		" AND table_type = 'BASE TABLE'", args
}

func (d *PostgresDialect) ViewExistsSQL(view, schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 2, []any{view})
	return "SELECT COUNT(*) FROM pg_views WHERE viewname = $1 AND schemaname = " + s, args
}

func (d *PostgresDialect) SchemaExistsSQL(schemaName string) (string, []any) {
	return "SELECT COUNT(*) FROM pg_namespace WHERE nspname = $1", []any{schemaName}
}

func (d *PostgresDialect) DescribeColumnsSQL(table, schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 2, []any{table})
	return `SELECT a.attname AS column_name,
	format_type(a.atttypid, a.atttypmod) AS column_type,
	a.attnotnull AS not_null,
	pg_get_expr(d.adbin, d.adrelid) AS column_default,
	EXISTS (SELECT 1 FROM pg_index i WHERE i.indrelid = c.oid AND i.indisprimary AND a.attnum = ANY(i.indkey)) AS primary_key,
	(COALESCE(pg_get_expr(d.adbin, d.adrelid), '') LIKE 'nextval(%' OR a.attidentity <> '') AS auto_increment,
	'' AS extra
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE c.relname = $1 AND n.nspname = ` + s + ` AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`, args
}

func (d *PostgresDialect) DescribeIndexesSQL(table, schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 2, []any{table})
	return `SELECT ic.relname AS index_name,
	a.attname AS column_name,
	ix.indisunique AS is_unique,
	ix.indisprimary AS is_primary,
	am.amname AS index_type
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class ic ON ic.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_am am ON am.oid = ic.relam
JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE t.relname = $1 AND n.nspname = ` + s + `
ORDER BY ic.relname, k.ord`, args
}

const pgReferentialAction = `CASE %s WHEN 'c' THEN 'CASCADE' WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT' WHEN 'r' THEN 'RESTRICT' ELSE 'NO ACTION' END`

func (d *PostgresDialect) DescribeReferencesSQL(table, schemaName string) (string, []any) {
	s, args := pgSchema(schemaName, 2, []any{table})
	return `SELECT c.conname AS constraint_name,
	a.attname AS column_name,
	rn.nspname AS referenced_schema,
	rt.relname AS referenced_table,
	ra.attname AS referenced_column,
	` + fmt.Sprintf(pgReferentialAction, "c.confupdtype") + ` AS on_update,
	` + fmt.Sprintf(pgReferentialAction, "c.confdeltype") + ` AS on_delete
FROM pg_constraint c
JOIN pg_class t ON t.oid = c.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_class rt ON rt.oid = c.confrelid
JOIN pg_namespace rn ON rn.oid = rt.relnamespace
JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(col, refcol, ord) ON true
JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.col
JOIN pg_attribute ra ON ra.attrelid = c.confrelid AND ra.attnum = k.refcol
WHERE c.contype = 'f' AND t.relname = $1 AND n.nspname = ` + s + `
ORDER BY c.conname, k.ord`, args
}

// TableOptionsSQL is empty: PostgreSQL has no MySQL-style table options.
func (d *PostgresDialect) TableOptionsSQL(_, _ string) (string, []any) {
	return "", nil
}

func (d *PostgresDialect) SupportsSequences() bool { return true }

// LastInsertIDSQL reads LASTVAL(), or CURRVAL of the given sequence.
func (d *PostgresDialect) LastInsertIDSQL(sequence string) (string, []any) {
	if sequence == "" {
		return "SELECT LASTVAL()", nil
	}
	return "SELECT CURRVAL($1)", []any{sequence}
}

func (d *PostgresDialect) DefaultIDValue() string   { return "DEFAULT" }
func (d *PostgresDialect) UseExplicitIDValue() bool { return true }
