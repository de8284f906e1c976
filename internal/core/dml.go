package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Pair is one column and its value.
type Pair struct {
	Column string
	Value  any
}

// Dict is ordered column data. Statement text follows the slice order.
type Dict []Pair

// Columns returns the column names in order.
func (d Dict) Columns() []string {
	out := make([]string, len(d))
	for i, p := range d {
		out[i] = p.Column
	}
	return out
}

// Values returns the values in order.
func (d Dict) Values() []any {
	out := make([]any, len(d))
	for i, p := range d {
		out[i] = p.Value
	}
	return out
}

// Where is the condition of an update or delete. Bind holds positional
// values for "?" markers, or a single Params for ":name" markers. Types
// optionally declares one bind type per positional value.
type Where struct {
	Condition string
	Bind      []any
	Types     []BindType
}

func (w Where) named() (Params, bool) {
	if len(w.Bind) == 1 {
		p, ok := w.Bind[0].(Params)
		return p, ok
	}
	return nil, false
}

// ErrNoColumns is returned by the builders when no columns are given.
var ErrNoColumns = errors.New("no columns to write")

// ColumnList returns the escaped, comma-separated identifier list.
func (c *Connection) ColumnList(columns []string) string {
	escaped := make([]string, len(columns))
	for i, col := range columns {
		escaped[i] = c.dialect.EscapeIdentifier(col)
	}
	return strings.Join(escaped, ", ")
}

// valueList turns values into placeholders. RawValue entries are inlined;
// all others become "?" and are returned with their declared type and column.
type valueList struct {
	sql   []string
	args  []any
	types []BindType
	names []string
	typed bool
}

func buildValues(fields []string, values []any, types []BindType) (*valueList, error) {
	if len(fields) == 0 {
		return nil, ErrNoColumns
	}
	if len(fields) != len(values) {
		return nil, fmt.Errorf("%d fields but %d values", len(fields), len(values))
	}
	if len(types) > 0 && len(types) != len(values) {
		return nil, &BindCountMismatchError{Placeholders: len(values), Values: len(values), Types: len(types)}
	}

	vl := &valueList{sql: make([]string, len(values)), typed: len(types) > 0}
	for i, v := range values {
		if raw, ok := v.(RawValue); ok {
			vl.sql[i] = string(raw)
			continue
		}
		vl.sql[i] = "?"
		vl.args = append(vl.args, v)
		vl.names = append(vl.names, fields[i])
		if vl.typed {
			vl.types = append(vl.types, types[i])
		}
	}
	return vl, nil
}

// Insert inserts one row. types, when given, declares one bind type per value.
func (c *Connection) Insert(ctx context.Context, table string, fields []string, values []any, types ...BindType) error {
	query, vl, err := c.insertSQL(table, fields, values, types)
	if err != nil {
		return err
	}
	_, err = c.execute(ctx, query, vl.args, vl.types, vl.names)
	return err
}

// InsertAsDict inserts one row from ordered column data.
//
//	conn.InsertAsDict(ctx, "robots", core.Dict{{"name", "Astro Boy"}, {"year", 1952}})
//	// INSERT INTO "robots" ("name", "year") VALUES (?, ?)
func (c *Connection) InsertAsDict(ctx context.Context, table string, data Dict, types ...BindType) error {
	return c.Insert(ctx, table, data.Columns(), data.Values(), types...)
}

func (c *Connection) insertSQL(table string, fields []string, values []any, types []BindType) (string, *valueList, error) {
	vl, err := buildValues(fields, values, types)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.dialect.EscapeIdentifier(table), c.ColumnList(fields), strings.Join(vl.sql, ", "))
	return query, vl, nil
}

// UpsertAsDict inserts one row, updating updateColumns from the new row when
// it conflicts on conflictColumns. A nil updateColumns ignores the conflict.
func (c *Connection) UpsertAsDict(ctx context.Context, table string, data Dict, conflictColumns, updateColumns []string, types ...BindType) error {
	query, vl, err := c.insertSQL(table, data.Columns(), data.Values(), types)
	if err != nil {
		return err
	}
	query += c.dialect.UpsertSQL(table, conflictColumns, updateColumns)
	_, err = c.execute(ctx, query, vl.args, vl.types, vl.names)
	return err
}

// Update sets fields to values on the rows matching where and returns the
// affected row count. An empty condition updates every row.
func (c *Connection) Update(ctx context.Context, table string, fields []string, values []any, where Where, types ...BindType) (int64, error) {
	vl, err := buildValues(fields, values, types)
	if err != nil {
		return 0, err
	}

	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = c.dialect.EscapeIdentifier(f) + " = " + vl.sql[i]
	}

	if named, ok := where.named(); ok {
		return c.updateNamed(ctx, table, fields, sets, vl, where.Condition, named)
	}

	query := fmt.Sprintf("UPDATE %s SET %s", c.dialect.EscapeIdentifier(table), strings.Join(sets, ", "))
	if where.Condition != "" {
		query += " WHERE " + where.Condition
	}

	if len(where.Types) > 0 && len(where.Types) != len(where.Bind) {
		return 0, &BindCountMismatchError{SQL: where.Condition, Placeholders: len(where.Bind), Values: len(where.Bind), Types: len(where.Types)}
	}
	args := append(vl.args, where.Bind...)
	var bindTypes []BindType
	if vl.typed || len(where.Types) > 0 {
		bindTypes = append(padTypes(vl.types, len(vl.args)), padTypes(where.Types, len(where.Bind))...)
	}
	names := append(vl.names, make([]string, len(where.Bind))...)
	return c.execute(ctx, query, args, bindTypes, names)
}

// updateNamed rewrites the SET placeholders to generated names so the
// statement uses one bind style with a named condition.
func (c *Connection) updateNamed(ctx context.Context, table string, fields, sets []string, vl *valueList, condition string, where Params) (int64, error) {
	params := make(Params, len(where)+len(vl.args))
	for k, v := range where {
		params[k] = v
	}
	n := 0
	for i, f := range fields {
		if vl.sql[i] != "?" {
			continue
		}
		name := fmt.Sprintf("_set%d_%s", n, identSafe(f))
		if _, clash := params[name]; clash {
			return 0, &InvalidBindStyleError{SQL: condition, Reason: "parameter :" + name + " is reserved"}
		}
		v := vl.args[n]
		if vl.typed {
			v = Typed(v, vl.types[n])
		}
		params[name] = v
		sets[i] = c.dialect.EscapeIdentifier(f) + " = :" + name
		n++
	}

	query := fmt.Sprintf("UPDATE %s SET %s", c.dialect.EscapeIdentifier(table), strings.Join(sets, ", "))
	if condition != "" {
		query += " WHERE " + condition
	}
	return c.execute(ctx, query, []any{params}, nil, nil)
}

// UpdateAsDict is Update with ordered column data.
func (c *Connection) UpdateAsDict(ctx context.Context, table string, data Dict, where Where, types ...BindType) (int64, error) {
	return c.Update(ctx, table, data.Columns(), data.Values(), where, types...)
}

// Delete removes the rows matching where and returns the affected row count.
// An empty condition deletes every row.
func (c *Connection) Delete(ctx context.Context, table string, where Where) (int64, error) {
	query := "DELETE FROM " + c.dialect.EscapeIdentifier(table)
	if where.Condition != "" {
		query += " WHERE " + where.Condition
	}
	return c.execute(ctx, query, where.Bind, where.Types, nil)
}

// identSafe maps a column name onto placeholder name characters.
func identSafe(column string) string {
	b := []byte(column)
	for i := range b {
		if !isIdentChar(b[i]) {
			b[i] = '_'
		}
	}
	return string(b)
}

func padTypes(types []BindType, n int) []BindType {
	out := make([]BindType, n)
	copy(out, types)
	return out
}
