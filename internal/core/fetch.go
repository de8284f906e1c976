package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FetchMode selects how a Row can be addressed. It never changes the SQL sent.
type FetchMode int

// Fetch modes.
const (
	// FetchAssoc addresses values by column name.
	FetchAssoc FetchMode = 1 << iota
	// FetchNum addresses values by ordinal.
	FetchNum
	// FetchBoth allows both.
	FetchBoth = FetchAssoc | FetchNum
)

func (m FetchMode) String() string {
	switch m {
	case FetchAssoc:
		return "assoc"
	case FetchNum:
		return "num"
	case FetchBoth:
		return "both"
	}
	return fmt.Sprintf("FetchMode(%d)", int(m))
}

// ValueGetter is the read path used by field validators.
type ValueGetter interface {
	GetValue(field string) (any, error)
}

// Row is one fetched row. Values are driver values: int64, float64, bool,
// string, []byte for binary columns, time.Time or nil.
type Row struct {
	mode    FetchMode
	columns []string
	values  []any
}

var _ ValueGetter = Row{}

// Mode returns the fetch mode the row was read with.
func (r Row) Mode() FetchMode { return r.mode }

// Columns returns the column names in select-list order.
func (r Row) Columns() []string { return r.columns }

// Values returns the values in select-list order.
func (r Row) Values() []any { return r.values }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// Index returns the value at ordinal i. It fails for FetchAssoc rows.
func (r Row) Index(i int) (any, bool) {
	if r.mode&FetchNum == 0 || i < 0 || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

// Get returns the value of the named column. When names repeat, the last
// column wins. It fails for FetchNum rows.
func (r Row) Get(name string) (any, bool) {
	if r.mode&FetchAssoc == 0 {
		return nil, false
	}
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name, or nil for FetchNum rows.
func (r Row) Map() map[string]any {
	if r.mode&FetchAssoc == 0 {
		return nil
	}
	m := make(map[string]any, len(r.columns))
	for i, name := range r.columns {
		m[name] = r.values[i]
	}
	return m
}

// GetValue implements ValueGetter, ignoring the fetch mode.
func (r Row) GetValue(field string) (any, error) {
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == field {
			return r.values[i], nil
		}
	}
	return nil, fmt.Errorf("field %q is not in the row", field)
}

// Cursor is a forward-only handle over a row-returning statement.
type Cursor struct {
	conn    *Connection
	query   string
	binds   int
	rows    *sql.Rows
	columns []string
	binary  []bool
	mode    FetchMode
	current Row
	err     error
	closed  bool
}

func newCursor(c *Connection, b *binding, rows *sql.Rows) (*Cursor, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, c.classifyStatement(err, "query", b.query, len(b.args))
	}
	cur := &Cursor{
		conn:    c,
		query:   b.query,
		binds:   len(b.args),
		rows:    rows,
		columns: make([]string, len(types)),
		binary:  make([]bool, len(types)),
		mode:    FetchBoth,
	}
	for i, t := range types {
		cur.columns[i] = t.Name()
		cur.binary[i] = isBinaryType(t.DatabaseTypeName())
	}
	c.cursors[cur] = struct{}{}
	return cur, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}

// SetFetchMode changes the shape of rows read from now on.
func (cur *Cursor) SetFetchMode(mode FetchMode) {
	cur.mode = mode
}

// Columns returns the result column names.
func (cur *Cursor) Columns() []string { return cur.columns }

// Next advances to the next row. It returns false at the end of the result
// or on error; check Err afterwards.
func (cur *Cursor) Next() bool {
	if cur.closed || cur.err != nil {
		return false
	}
	if !cur.rows.Next() {
		if err := cur.rows.Err(); err != nil {
			cur.err = cur.conn.classifyStatement(err, "fetch", cur.query, cur.binds)
		}
		return false
	}

	values := make([]any, len(cur.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := cur.rows.Scan(dest...); err != nil {
		cur.err = cur.conn.classifyStatement(err, "fetch", cur.query, cur.binds)
		return false
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok && !cur.binary[i] {
			values[i] = string(b)
		}
	}
	cur.current = Row{mode: cur.mode, columns: cur.columns, values: values}
	return true
}

// Row returns the row read by the last successful Next.
func (cur *Cursor) Row() Row { return cur.current }

// Fetch reads the next row. ok is false at the end of the result.
func (cur *Cursor) Fetch() (row Row, ok bool, err error) {
	if cur.Next() {
		return cur.current, true, nil
	}
	return Row{}, false, cur.err
}

// All reads every remaining row and closes the cursor.
func (cur *Cursor) All() ([]Row, error) {
	defer cur.Close()
	var out []Row
	for cur.Next() {
		out = append(out, cur.current)
	}
	return out, cur.err
}

// Err returns the error that stopped iteration, if any.
func (cur *Cursor) Err() error { return cur.err }

// Close releases the result set. It is safe to call more than once.
func (cur *Cursor) Close() error {
	if cur.closed {
		return nil
	}
	cur.closed = true
	delete(cur.conn.cursors, cur)
	return cur.rows.Close()
}

// FetchOne runs query and returns its first row. ok is false when the
// statement returns no rows.
func (c *Connection) FetchOne(ctx context.Context, query string, mode FetchMode, params ...any) (row Row, ok bool, err error) {
	cur, err := c.Query(ctx, query, params...)
	if err != nil {
		return Row{}, false, err
	}
	defer cur.Close()
	cur.SetFetchMode(mode)
	return cur.Fetch()
}

// FetchAll runs query and returns every row.
func (c *Connection) FetchAll(ctx context.Context, query string, mode FetchMode, params ...any) ([]Row, error) {
	cur, err := c.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	cur.SetFetchMode(mode)
	return cur.All()
}

// FetchColumn runs query and returns one value of its first row. column is
// an ordinal (int) or a column name (string). ok is false when the statement
// returns no rows.
func (c *Connection) FetchColumn(ctx context.Context, query string, column any, params ...any) (value any, ok bool, err error) {
	row, ok, err := c.FetchOne(ctx, query, FetchBoth, params...)
	if err != nil || !ok {
		return nil, false, err
	}
	switch col := column.(type) {
	case int:
		if v, found := row.Index(col); found {
			return v, true, nil
		}
		return nil, false, fmt.Errorf("column %d out of range: statement returns %d columns", col, row.Len())
	case string:
		if v, found := row.Get(col); found {
			return v, true, nil
		}
		return nil, false, fmt.Errorf("column %q is not in the result", col)
	}
	return nil, false, fmt.Errorf("column must be an int or a string, got %T", column)
}

// fetchNativeRows runs dialect SQL and returns every row.
func (c *Connection) fetchNativeRows(ctx context.Context, op, query string, args ...any) ([]Row, error) {
	cur, err := c.queryNative(ctx, op, query, args...)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

// fetchNativeScalar runs dialect SQL and returns the first column of its first row.
func (c *Connection) fetchNativeScalar(ctx context.Context, op, query string, args ...any) (any, bool, error) {
	cur, err := c.queryNative(ctx, op, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close()
	row, ok, err := cur.Fetch()
	if err != nil || !ok || row.Len() == 0 {
		return nil, false, err
	}
	return row.values[0], true, nil
}
