package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BindType declares how a bound value is coerced before it reaches the driver.
type BindType int

// Bind types. BindSkip, the zero value, passes the value through unchanged.
const (
	BindSkip BindType = iota
	BindNull
	BindInt
	BindStr
	BindBool
	BindDecimal
	BindBlob
)

var bindTypeNames = [...]string{"skip", "null", "int", "str", "bool", "decimal", "blob"}

func (t BindType) String() string {
	if t >= 0 && int(t) < len(bindTypeNames) {
		return bindTypeNames[t]
	}
	return "BindType(" + strconv.Itoa(int(t)) + ")"
}

// TypedValue is a value with a declared bind type.
type TypedValue struct {
	Value any
	Type  BindType
}

// Typed attaches a bind type to one value.
func Typed(value any, t BindType) TypedValue {
	return TypedValue{Value: value, Type: t}
}

// Params represents named parameter values for query binding.
// Named parameters are written :name in SQL text.
//
// Example:
//
//	conn.Execute(ctx, "UPDATE robots SET name = :name WHERE id = :id",
//	    core.Params{"name": "Astro Boy", "id": 1})
type Params map[string]any

// RawValue is an SQL expression that insert and update builders place in the
// statement text verbatim instead of binding it, e.g. RawValue("DEFAULT").
type RawValue string

// placeholder is one bind marker found in SQL text.
type placeholder struct {
	start, end int
	// name is empty for positional "?" markers.
	name string
}

type scanMode struct {
	backslash    bool
	hashComments bool
	dollarQuotes bool
}

// scanPlaceholders finds "?" and ":name" markers outside string literals,
// quoted identifiers and comments. "::" casts and ":=" assignments are skipped.
func scanPlaceholders(sql string, mode scanMode) []placeholder {
	var out []placeholder
	n := len(sql)
	for i := 0; i < n; i++ {
		switch ch := sql[i]; ch {
		case '\'':
			i = skipQuoted(sql, i, '\'', mode.backslash)
		case '"', '`':
			i = skipQuoted(sql, i, ch, false)
		case '-':
			if i+1 < n && sql[i+1] == '-' {
				i = skipUntil(sql, i+2, "\n")
			}
		case '#':
			if mode.hashComments {
				i = skipUntil(sql, i+1, "\n")
			}
		case '/':
			if i+1 < n && sql[i+1] == '*' {
				i = skipUntil(sql, i+2, "*/")
			}
		case '$':
			if mode.dollarQuotes {
				i = skipDollarQuoted(sql, i)
			}
		case '?':
			out = append(out, placeholder{start: i, end: i + 1})
		case ':':
			if i+1 < n && (sql[i+1] == ':' || sql[i+1] == '=') {
				i++
				continue
			}
			if i > 0 && isIdentChar(sql[i-1]) {
				continue
			}
			j := i + 1
			if j < n && isIdentStart(sql[j]) {
				for j < n && isIdentChar(sql[j]) {
					j++
				}
				out = append(out, placeholder{start: i, end: j, name: sql[i+1 : j]})
				i = j - 1
			}
		}
	}
	return out
}

// skipQuoted returns the index of the closing quote of the literal opened at
// i. A doubled quote is an escaped quote.
func skipQuoted(sql string, i int, quote byte, backslash bool) int {
	for j := i + 1; j < len(sql); j++ {
		switch sql[j] {
		case '\\':
			if backslash {
				j++
			}
		case quote:
			if j+1 < len(sql) && sql[j+1] == quote {
				j++
				continue
			}
			return j
		}
	}
	return len(sql)
}

// skipUntil returns the index of the last byte of terminator at or after i.
func skipUntil(sql string, i int, terminator string) int {
	if k := strings.Index(sql[i:], terminator); k >= 0 {
		return i + k + len(terminator) - 1
	}
	return len(sql)
}

// skipDollarQuoted skips a PostgreSQL $tag$...$tag$ string opened at i.
func skipDollarQuoted(sql string, i int) int {
	j := i + 1
	for j < len(sql) && sql[j] != '$' {
		if !isIdentChar(sql[j]) || (j == i+1 && sql[j] >= '0' && sql[j] <= '9') {
			return i
		}
		j++
	}
	if j >= len(sql) {
		return i
	}
	tag := sql[i : j+1]
	return skipUntil(sql, j+1, tag)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// binding is a statement after placeholder validation and rewriting.
type binding struct {
	// query is the text sent to the engine, with native placeholders.
	query string
	// raw is the caller's text before rewriting.
	raw   string
	args  []any
	types []BindType
	// names holds the column or parameter name behind each arg when known.
	names []string
}

// bind validates params against the placeholders in query and rewrites them
// to the dialect's native syntax. It never touches the engine.
func (c *Connection) bind(query string, params []any, types []BindType, names []string) (*binding, error) {
	marks := scanPlaceholders(query, scanMode{
		backslash:    c.dialect.BackslashEscapes(),
		hashComments: c.dialect.Name() == "mysql",
		dollarQuotes: c.dialect.Name() == "postgres",
	})

	var positional, named int
	for _, m := range marks {
		if m.name == "" {
			positional++
		} else {
			named++
		}
	}
	if positional > 0 && named > 0 {
		return nil, &InvalidBindStyleError{SQL: query, Reason: "statement mixes positional and named placeholders"}
	}

	var (
		namedParams Params
		isNamed     bool
	)
	for _, p := range params {
		if np, ok := p.(Params); ok {
			if len(params) != 1 {
				return nil, &InvalidBindStyleError{SQL: query, Reason: "Params must be the only bound argument"}
			}
			namedParams, isNamed = np, true
		}
	}

	b := &binding{raw: query}
	switch {
	case isNamed && positional > 0:
		return nil, &InvalidBindStyleError{SQL: query, Reason: "named parameters supplied for positional placeholders"}
	case !isNamed && named > 0:
		return nil, &InvalidBindStyleError{SQL: query, Reason: "named placeholders require Params"}
	case isNamed:
		if err := bindNamed(b, marks, namedParams, types); err != nil {
			return nil, err
		}
	default:
		if err := bindPositional(b, marks, params, types, names); err != nil {
			return nil, err
		}
	}

	if err := coerceAll(b); err != nil {
		return nil, err
	}
	b.query = c.rewrite(query, marks)
	return b, nil
}

func bindPositional(b *binding, marks []placeholder, params []any, types []BindType, names []string) error {
	declared := -1
	if len(types) > 0 {
		declared = len(types)
	}
	if len(params) != len(marks) || (declared >= 0 && declared != len(marks)) {
		return &BindCountMismatchError{SQL: b.raw, Placeholders: len(marks), Values: len(params), Types: declared}
	}
	b.args = append([]any(nil), params...)
	b.types = make([]BindType, len(params))
	copy(b.types, types)
	if len(names) == len(params) {
		b.names = names
	}
	return nil
}

func bindNamed(b *binding, marks []placeholder, params Params, types []BindType) error {
	distinct := make(map[string]bool, len(marks))
	for _, m := range marks {
		distinct[m.name] = true
	}
	if len(types) > 0 {
		return &InvalidBindStyleError{SQL: b.raw, Reason: "declared types need positional placeholders; wrap named values with Typed"}
	}

	b.args = make([]any, len(marks))
	b.types = make([]BindType, len(marks))
	b.names = make([]string, len(marks))
	for i, m := range marks {
		v, ok := params[m.name]
		if !ok {
			return &BindCountMismatchError{SQL: b.raw, Placeholders: len(distinct), Values: len(params), Types: -1, Missing: m.name}
		}
		b.args[i] = v
		b.names[i] = m.name
	}
	if len(params) != len(distinct) {
		return &BindCountMismatchError{SQL: b.raw, Placeholders: len(distinct), Values: len(params), Types: -1}
	}
	return nil
}

// rewrite replaces every marker with the dialect placeholder for its position.
func (c *Connection) rewrite(query string, marks []placeholder) string {
	if len(marks) == 0 {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + len(marks)*2)
	last := 0
	for i, m := range marks {
		sb.WriteString(query[last:m.start])
		sb.WriteString(c.dialect.Placeholder(i + 1))
		last = m.end
	}
	sb.WriteString(query[last:])
	return sb.String()
}

// coerceAll applies declared bind types. A TypedValue's own type wins over
// the positional types slice.
func coerceAll(b *binding) error {
	for i, v := range b.args {
		t := b.types[i]
		if tv, ok := v.(TypedValue); ok {
			v, t = tv.Value, tv.Type
		}
		out, err := coerce(v, t)
		if err != nil {
			return &BindTypeError{Position: i + 1, Type: t, Value: v, Err: err}
		}
		b.args[i] = out
		b.types[i] = t
	}
	return nil
}

func coerce(v any, t BindType) (any, error) {
	if v == nil && t != BindSkip {
		return nil, nil
	}
	switch t {
	case BindSkip:
		return v, nil
	case BindNull:
		return nil, nil
	case BindInt:
		return toInt64(v)
	case BindStr:
		return toString(v), nil
	case BindBool:
		return toBool(v)
	case BindDecimal:
		return toDecimal(v)
	case BindBlob:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
		return nil, fmt.Errorf("not a byte sequence")
	}
	return nil, fmt.Errorf("unknown bind type %d", int(t))
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return 0, fmt.Errorf("not an integer")
}

func uintToInt64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", u)
	}
	return int64(u), nil
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not integral", f)
	}
	return int64(f), nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("not a boolean")
	}
	return n != 0, nil
}

func toDecimal(v any) (string, error) {
	var s string
	switch x := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case string:
		s = strings.TrimSpace(x)
	case []byte:
		s = strings.TrimSpace(string(x))
	default:
		n, err := toInt64(v)
		if err != nil {
			return "", fmt.Errorf("not a decimal")
		}
		return strconv.FormatInt(n, 10), nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("%q is not a decimal", s)
	}
	return s, nil
}
