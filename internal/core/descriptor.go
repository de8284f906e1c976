package core

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/go-viper/mapstructure/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// OptionKey names one recognized descriptor option.
type OptionKey = string

// Recognized descriptor options. Any other key fails validation.
const (
	OptConnectTimeout  OptionKey = "connect_timeout"
	OptReadTimeout     OptionKey = "read_timeout"
	OptWriteTimeout    OptionKey = "write_timeout"
	OptSSLMode         OptionKey = "sslmode"
	OptApplicationName OptionKey = "application_name"
	OptTimezone        OptionKey = "timezone"
	OptBusyTimeout     OptionKey = "busy_timeout"
	OptForeignKeys     OptionKey = "foreign_keys"
	OptJournalMode     OptionKey = "journal_mode"
)

// optionAdapters lists the adapters each option applies to.
var optionAdapters = map[OptionKey][]string{
	OptConnectTimeout:  {"mysql", "postgres"},
	OptReadTimeout:     {"mysql"},
	OptWriteTimeout:    {"mysql"},
	OptSSLMode:         {"mysql", "postgres"},
	OptApplicationName: {"postgres"},
	OptTimezone:        {"mysql", "postgres"},
	OptBusyTimeout:     {"sqlite"},
	OptForeignKeys:     {"sqlite"},
	OptJournalMode:     {"sqlite"},
}

// adapterDrivers lists the database/sql drivers available per adapter; the
// first one is the default.
var adapterDrivers = map[string][]string{
	"mysql":    {"mysql"},
	"postgres": {"pgx", "postgres"},
	"sqlite":   {"sqlite", "sqlite3"},
}

var sslModes = map[string]string{
	"disable":     "false",
	"allow":       "preferred",
	"prefer":      "preferred",
	"require":     "skip-verify",
	"verify-ca":   "true",
	"verify-full": "true",
}

var journalModes = map[string]bool{
	"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true,
}

// Descriptor is the connection configuration consumed by Connect. It is
// copied into the Connection and never modified afterwards.
type Descriptor struct {
	// Adapter selects the dialect: mysql, postgres or sqlite.
	Adapter string `koanf:"adapter"`
	// Driver overrides the database/sql driver: pgx or postgres (lib/pq) for
	// PostgreSQL, sqlite (modernc) or sqlite3 (mattn, cgo builds) for SQLite.
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// DBName is the database name, or the file path for SQLite.
	DBName  string `koanf:"dbname"`
	Charset string `koanf:"charset"`
	// Persistent connections share a process-wide pool keyed by DSN.
	Persistent bool `koanf:"persistent"`
	// Schema is the default schema for introspection and DDL.
	Schema string `koanf:"schema"`
	// UseSavepoints emulates nested transactions with savepoints.
	UseSavepoints bool `koanf:"use_savepoints"`
	// StatementCacheSize enables a prepared statement cache of that many entries.
	StatementCacheSize int               `koanf:"statement_cache_size"`
	Options            map[string]string `koanf:"options"`
}

// DescriptorFromMap decodes a loosely typed descriptor such as
// {"adapter": "mysql", "port": "3306", "persistent": 1}. Unknown keys are rejected.
func DescriptorFromMap(m map[string]any) (Descriptor, error) {
	var d Descriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &d,
	})
	if err != nil {
		return d, err
	}
	if err := dec.Decode(m); err != nil {
		return d, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return d, nil
}

// normalized returns a copy with canonical adapter and driver names and a
// private copy of Options.
func (d Descriptor) normalized() Descriptor {
	switch a := strings.ToLower(strings.TrimSpace(d.Adapter)); a {
	case "postgresql", "pgsql", "pgx":
		d.Adapter = "postgres"
	case "sqlite3":
		d.Adapter = "sqlite"
	default:
		d.Adapter = a
	}
	if d.Driver == "" {
		if drivers, ok := adapterDrivers[d.Adapter]; ok {
			d.Driver = drivers[0]
		}
	}
	if d.Options != nil {
		opts := make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			opts[strings.ToLower(k)] = v
		}
		d.Options = opts
	}
	return d
}

// Validate checks the adapter, driver, port and option keys.
func (d Descriptor) Validate() error {
	d = d.normalized()

	drivers, ok := adapterDrivers[d.Adapter]
	if !ok {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDescriptor, ErrUnknownDialect, d.Adapter)
	}
	if !contains(drivers, d.Driver) {
		return fmt.Errorf("%w: driver %q cannot serve adapter %q", ErrInvalidDescriptor, d.Driver, d.Adapter)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidDescriptor, d.Port)
	}
	if d.StatementCacheSize < 0 {
		return fmt.Errorf("%w: negative statement cache size", ErrInvalidDescriptor)
	}
	if d.Adapter == "sqlite" && d.DBName == "" {
		return fmt.Errorf("%w: sqlite requires dbname (a file path or :memory:)", ErrInvalidDescriptor)
	}

	for key, value := range d.Options {
		adapters, known := optionAdapters[key]
		if !known {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidDescriptor, key)
		}
		if !contains(adapters, d.Adapter) {
			return fmt.Errorf("%w: option %q does not apply to %s", ErrInvalidDescriptor, key, d.Adapter)
		}
		if err := validateOption(key, value); err != nil {
			return fmt.Errorf("%w: option %q: %w", ErrInvalidDescriptor, key, err)
		}
	}
	return nil
}

func validateOption(key, value string) error {
	switch key {
	case OptConnectTimeout, OptReadTimeout, OptWriteTimeout, OptBusyTimeout:
		_, err := optionDuration(value)
		return err
	case OptForeignKeys:
		_, err := strconv.ParseBool(value)
		return err
	case OptJournalMode:
		if !journalModes[strings.ToUpper(value)] {
			return fmt.Errorf("unknown journal mode %q", value)
		}
	case OptSSLMode:
		if _, ok := sslModes[value]; !ok {
			return fmt.Errorf("unknown sslmode %q", value)
		}
	case OptTimezone:
		_, err := time.LoadLocation(value)
		return err
	}
	return nil
}

// optionDuration parses "5s" style durations or a bare number of seconds.
func optionDuration(value string) (time.Duration, error) {
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return dur, nil
}

// redacted returns a copy safe to hand out: no password, private Options.
func (d Descriptor) redacted() Descriptor {
	if d.Password != "" {
		d.Password = "***REDACTED***"
	}
	if d.Options != nil {
		opts := make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			opts[k] = v
		}
		d.Options = opts
	}
	return d
}

// DSN renders the driver data source name. The descriptor must be valid.
func (d Descriptor) DSN() (string, error) {
	d = d.normalized()
	switch d.Adapter {
	case "mysql":
		return d.mysqlDSN()
	case "postgres":
		return d.postgresDSN(), nil
	case "sqlite":
		return d.sqliteDSN(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, d.Adapter)
}

func (d Descriptor) mysqlDSN() (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = d.Username
	cfg.Passwd = d.Password
	cfg.DBName = d.DBName
	cfg.ParseTime = true

	host, port := d.Host, d.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 3306
	}
	if strings.HasPrefix(host, "/") {
		cfg.Net, cfg.Addr = "unix", host
	} else {
		cfg.Net, cfg.Addr = "tcp", net.JoinHostPort(host, strconv.Itoa(port))
	}

	if d.Charset != "" {
		cfg.Params = map[string]string{"charset": d.Charset}
	}
	for key, value := range d.Options {
		switch key {
		case OptConnectTimeout:
			cfg.Timeout, _ = optionDuration(value)
		case OptReadTimeout:
			cfg.ReadTimeout, _ = optionDuration(value)
		case OptWriteTimeout:
			cfg.WriteTimeout, _ = optionDuration(value)
		case OptSSLMode:
			cfg.TLSConfig = sslModes[value]
		case OptTimezone:
			loc, err := time.LoadLocation(value)
			if err != nil {
				return "", err
			}
			cfg.Loc = loc
		}
	}
	return cfg.FormatDSN(), nil
}

// postgresDSN renders a libpq key=value string understood by both pgx and lib/pq.
func (d Descriptor) postgresDSN() string {
	params := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			params[k] = v
		}
	}
	set("host", d.Host)
	if d.Port > 0 {
		set("port", strconv.Itoa(d.Port))
	}
	set("user", d.Username)
	set("password", d.Password)
	set("dbname", d.DBName)
	set("client_encoding", d.Charset)
	for key, value := range d.Options {
		switch key {
		case OptConnectTimeout:
			dur, _ := optionDuration(value)
			set("connect_timeout", strconv.Itoa(int(dur/time.Second)))
		case OptSSLMode, OptApplicationName:
			set(key, value)
		case OptTimezone:
			set("timezone", value)
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + quoteConnValue(params[k])
	}
	return strings.Join(parts, " ")
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// sqliteDSN appends pragmas in the syntax of the selected driver: _pragma=name(value)
// for modernc, _name=value for mattn.
func (d Descriptor) sqliteDSN() string {
	keys := make([]string, 0, len(d.Options))
	for key := range d.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, key := range keys {
		value := d.Options[key]
		switch key {
		case OptBusyTimeout:
			dur, _ := optionDuration(value)
			ms := strconv.FormatInt(dur.Milliseconds(), 10)
			d.addPragma(q, "busy_timeout", ms)
		case OptForeignKeys:
			on, _ := strconv.ParseBool(value)
			v := "0"
			if on {
				v = "1"
			}
			d.addPragma(q, "foreign_keys", v)
		case OptJournalMode:
			d.addPragma(q, "journal_mode", strings.ToUpper(value))
		}
	}
	if len(q) == 0 {
		return d.DBName
	}
	dsn := d.DBName
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + q.Encode()
}

func (d Descriptor) addPragma(q url.Values, name, value string) {
	if d.Driver == "sqlite3" {
		q.Set("_"+name, value)
		return
	}
	q.Add("_pragma", name+"("+value+")")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
