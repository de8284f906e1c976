package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/dbadapter/internal/dialects"
	"github.com/coregx/dbadapter/internal/schema"
)

// Introspection methods are read-only: they never start a transaction and
// may run while one is open without changing the depth. An empty schema
// name selects the descriptor's Schema, then the engine's current schema.
// Result order is whatever the engine returns.

func (c *Connection) schemaOr(schemaName string) string {
	if schemaName == "" {
		return c.desc.Schema
	}
	return schemaName
}

// knownSchema reports whether an explicitly named schema exists. An empty
// name always exists.
func (c *Connection) knownSchema(ctx context.Context, schemaName string) (bool, error) {
	if schemaName == "" {
		return true, nil
	}
	return c.SchemaExists(ctx, schemaName)
}

// SchemaExists reports whether the schema (database, for MySQL) exists.
func (c *Connection) SchemaExists(ctx context.Context, schemaName string) (bool, error) {
	query, args := c.dialect.SchemaExistsSQL(schemaName)
	return c.count(ctx, "schema_exists", query, args)
}

func (c *Connection) count(ctx context.Context, op, query string, args []any) (bool, error) {
	v, ok, err := c.fetchNativeScalar(ctx, op, query, args...)
	if err != nil || !ok {
		return false, err
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("%s: unexpected count %v: %w", op, v, err)
	}
	return n > 0, nil
}

func (c *Connection) names(ctx context.Context, op, schemaName string, build func(string) (string, []any)) ([]string, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return nil, err
	}
	query, args := build(schemaName)
	rows, err := c.fetchNativeRows(ctx, op, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, asString(r.values[0]))
	}
	return out, nil
}

// ListTables returns the base table names of a schema. An unknown schema
// yields no names and no error.
func (c *Connection) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	return c.names(ctx, "list_tables", schemaName, c.dialect.ListTablesSQL)
}

// ListViews returns the view names of a schema.
func (c *Connection) ListViews(ctx context.Context, schemaName string) ([]string, error) {
	return c.names(ctx, "list_views", schemaName, c.dialect.ListViewsSQL)
}

// TableExists reports whether a base table exists. An unknown schema yields false.
func (c *Connection) TableExists(ctx context.Context, table, schemaName string) (bool, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return false, err
	}
	query, args := c.dialect.TableExistsSQL(table, schemaName)
	return c.count(ctx, "table_exists", query, args)
}

// ViewExists reports whether a view exists. An unknown schema yields false.
func (c *Connection) ViewExists(ctx context.Context, view, schemaName string) (bool, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return false, err
	}
	query, args := c.dialect.ViewExistsSQL(view, schemaName)
	return c.count(ctx, "view_exists", query, args)
}

// DescribeColumns returns the columns of a table in physical order. A
// missing table fails with ErrNoSuchTable.
func (c *Connection) DescribeColumns(ctx context.Context, table, schemaName string) ([]schema.Column, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, qualified(table, schemaName))
	}

	query, args := c.dialect.DescribeColumnsSQL(table, schemaName)
	rows, err := c.fetchNativeRows(ctx, "describe_columns", query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, qualified(table, schemaName))
	}

	columns := make([]schema.Column, len(rows))
	for i, r := range rows {
		raw := dialects.RawColumn{
			Name:          asString(r.values[0]),
			TypeText:      asString(r.values[1]),
			NotNull:       asBool(r.values[2]),
			Primary:       asBool(r.values[4]),
			AutoIncrement: asBool(r.values[5]),
			Extra:         asString(r.values[6]),
			Position:      i + 1,
		}
		if r.values[3] != nil {
			def := asString(r.values[3])
			raw.Default = &def
		}
		columns[i] = c.dialect.ColumnFromCatalog(raw)
	}
	return columns, nil
}

// DescribeIndexes returns the indexes of a table keyed by name. A primary
// key the engine keeps outside its index list, such as an SQLite rowid
// alias, is reported as "PRIMARY".
func (c *Connection) DescribeIndexes(ctx context.Context, table, schemaName string) (map[string]schema.Index, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return map[string]schema.Index{}, err
	}

	query, args := c.dialect.DescribeIndexesSQL(table, schemaName)
	rows, err := c.fetchNativeRows(ctx, "describe_indexes", query, args...)
	if err != nil {
		return nil, err
	}

	indexes := make(map[string]schema.Index)
	hasPrimary := false
	for _, r := range rows {
		name := asString(r.values[0])
		idx, seen := indexes[name]
		if !seen {
			idx = schema.Index{
				Name:    name,
				Unique:  asBool(r.values[2]),
				Primary: asBool(r.values[3]),
				Type:    asString(r.values[4]),
			}
		}
		idx.Columns = append(idx.Columns, asString(r.values[1]))
		indexes[name] = idx
		hasPrimary = hasPrimary || idx.Primary
	}

	if !hasPrimary {
		columns, err := c.DescribeColumns(ctx, table, schemaName)
		if errors.Is(err, ErrNoSuchTable) {
			return indexes, nil
		}
		if err != nil {
			return nil, err
		}
		var primary []string
		for _, col := range columns {
			if col.Primary {
				primary = append(primary, col.Name)
			}
		}
		if len(primary) > 0 {
			indexes["PRIMARY"] = schema.Index{Name: "PRIMARY", Columns: primary, Unique: true, Primary: true}
		}
	}
	return indexes, nil
}

// DescribeReferences returns the foreign keys of a table keyed by constraint name.
func (c *Connection) DescribeReferences(ctx context.Context, table, schemaName string) (map[string]schema.Reference, error) {
	schemaName = c.schemaOr(schemaName)
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return map[string]schema.Reference{}, err
	}

	query, args := c.dialect.DescribeReferencesSQL(table, schemaName)
	rows, err := c.fetchNativeRows(ctx, "describe_references", query, args...)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]schema.Reference)
	for _, r := range rows {
		name := asString(r.values[0])
		ref, seen := refs[name]
		if !seen {
			ref = schema.Reference{
				Name:             name,
				ReferencedSchema: asString(r.values[2]),
				ReferencedTable:  asString(r.values[3]),
				OnUpdate:         strings.ToUpper(asString(r.values[5])),
				OnDelete:         strings.ToUpper(asString(r.values[6])),
			}
		}
		ref.Columns = append(ref.Columns, asString(r.values[1]))
		ref.ReferencedColumns = append(ref.ReferencedColumns, asString(r.values[4]))
		refs[name] = ref
	}
	return refs, nil
}

// TableOptions returns engine table options such as ENGINE and
// TABLE_COLLATION. Engines without table options return an empty map.
func (c *Connection) TableOptions(ctx context.Context, table, schemaName string) (map[string]string, error) {
	schemaName = c.schemaOr(schemaName)
	options := make(map[string]string)
	query, args := c.dialect.TableOptionsSQL(table, schemaName)
	if query == "" {
		return options, nil
	}
	if ok, err := c.knownSchema(ctx, schemaName); err != nil || !ok {
		return options, err
	}

	cur, err := c.queryNative(ctx, "table_options", query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	row, ok, err := cur.Fetch()
	if err != nil || !ok {
		return options, err
	}
	for i, name := range row.columns {
		if row.values[i] != nil {
			options[strings.ToUpper(name)] = asString(row.values[i])
		}
	}
	return options, nil
}

// DescribeTable returns a snapshot of a table's columns, indexes and references.
func (c *Connection) DescribeTable(ctx context.Context, table, schemaName string) (schema.Table, error) {
	columns, err := c.DescribeColumns(ctx, table, schemaName)
	if err != nil {
		return schema.Table{}, err
	}
	indexes, err := c.DescribeIndexes(ctx, table, schemaName)
	if err != nil {
		return schema.Table{}, err
	}
	refs, err := c.DescribeReferences(ctx, table, schemaName)
	if err != nil {
		return schema.Table{}, err
	}
	return schema.Table{
		Schema:     c.schemaOr(schemaName),
		Name:       table,
		Columns:    columns,
		Indexes:    indexes,
		References: refs,
	}, nil
}

// CreateTable creates a table and any indexes the engine defines separately.
func (c *Connection) CreateTable(ctx context.Context, table, schemaName string, def schema.TableDefinition) error {
	stmts, err := c.dialect.CreateTable(table, c.schemaOr(schemaName), def)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmts...)
}

// DropTable drops a table.
func (c *Connection) DropTable(ctx context.Context, table, schemaName string, ifExists bool) error {
	return c.execDDL(ctx, c.dialect.DropTable(table, c.schemaOr(schemaName), ifExists))
}

// AddColumn adds a column to a table.
func (c *Connection) AddColumn(ctx context.Context, table, schemaName string, column schema.Column) error {
	stmt, err := c.dialect.AddColumn(table, c.schemaOr(schemaName), column)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// ModifyColumn changes a column from its current definition to column.
func (c *Connection) ModifyColumn(ctx context.Context, table, schemaName string, column, current schema.Column) error {
	stmts, err := c.dialect.ModifyColumn(table, c.schemaOr(schemaName), column, current)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmts...)
}

// DropColumn drops a column.
func (c *Connection) DropColumn(ctx context.Context, table, schemaName, column string) error {
	stmt, err := c.dialect.DropColumn(table, c.schemaOr(schemaName), column)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// AddIndex creates an index.
func (c *Connection) AddIndex(ctx context.Context, table, schemaName string, index schema.Index) error {
	stmt, err := c.dialect.AddIndex(table, c.schemaOr(schemaName), index)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// DropIndex drops an index.
func (c *Connection) DropIndex(ctx context.Context, table, schemaName, index string) error {
	return c.execDDL(ctx, c.dialect.DropIndex(table, c.schemaOr(schemaName), index))
}

// AddPrimaryKey adds a primary key.
func (c *Connection) AddPrimaryKey(ctx context.Context, table, schemaName string, index schema.Index) error {
	stmt, err := c.dialect.AddPrimaryKey(table, c.schemaOr(schemaName), index)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// DropPrimaryKey drops the primary key.
func (c *Connection) DropPrimaryKey(ctx context.Context, table, schemaName string) error {
	stmt, err := c.dialect.DropPrimaryKey(table, c.schemaOr(schemaName))
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// AddForeignKey adds a foreign key constraint.
func (c *Connection) AddForeignKey(ctx context.Context, table, schemaName string, ref schema.Reference) error {
	stmt, err := c.dialect.AddForeignKey(table, c.schemaOr(schemaName), ref)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// DropForeignKey drops a foreign key constraint.
func (c *Connection) DropForeignKey(ctx context.Context, table, schemaName, name string) error {
	stmt, err := c.dialect.DropForeignKey(table, c.schemaOr(schemaName), name)
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// CreateView creates a view.
func (c *Connection) CreateView(ctx context.Context, view schema.View, schemaName string) error {
	stmt, err := c.dialect.CreateView(view, c.schemaOr(schemaName))
	if err != nil {
		return err
	}
	return c.execDDL(ctx, stmt)
}

// DropView drops a view.
func (c *Connection) DropView(ctx context.Context, view, schemaName string, ifExists bool) error {
	return c.execDDL(ctx, c.dialect.DropView(view, c.schemaOr(schemaName), ifExists))
}

func (c *Connection) execDDL(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if err := c.execNative(ctx, "ddl", stmt); err != nil {
			return err
		}
	}
	return nil
}

func qualified(table, schemaName string) string {
	if schemaName == "" {
		return table
	}
	return schemaName + "." + table
}

// asString renders a catalog value as text.
func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// asBool reads catalog flags reported as booleans, integers or text.
func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case nil:
		return false
	}
	switch strings.ToLower(strings.TrimSpace(asString(v))) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}
