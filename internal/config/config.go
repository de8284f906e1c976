// Package config loads connection settings from defaults, an optional YAML
// file and DBADAPTER_ environment variables, in increasing precedence.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/coregx/dbadapter/internal/audit"
	"github.com/coregx/dbadapter/internal/core"
	"github.com/coregx/dbadapter/internal/logger"
)

// EnvPrefix starts every environment variable read by Load. A double
// underscore separates nesting levels:
//
//	DBADAPTER_CONNECTION__HOST=db.internal
//	DBADAPTER_CONNECTION__OPTIONS__CONNECT_TIMEOUT=5s
//	DBADAPTER_LOG__LEVEL=debug
const EnvPrefix = "DBADAPTER_"

// Config is the loaded configuration.
type Config struct {
	Connection core.Descriptor `koanf:"connection"`
	Log        Log             `koanf:"log"`
	// SensitiveFields replaces the default list of columns masked in logs.
	SensitiveFields []string `koanf:"sensitive_fields"`
	// Audit is none, writes, schema or all.
	Audit string `koanf:"audit"`
	// PoolHealthCheck pings persistent pools at this interval; zero disables it.
	PoolHealthCheck time.Duration `koanf:"pool_health_check"`
}

// Log configures the slog-backed logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

func defaults() map[string]any {
	return map[string]any{
		"connection.use_savepoints": true,
		"log.level":                 "info",
		"log.format":                "text",
		"audit":                     "none",
	}
}

// Load reads the configuration. path may be empty to skip the file.
// The connection descriptor is validated before Load returns.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Connection.Validate(); err != nil {
		return nil, err
	}
	if _, err := audit.ParseLevel(cfg.Audit); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DBADAPTER_CONNECTION__DBNAME to connection.dbname.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (logger.Logger, error) {
	return logger.New(w, c.Log.Level, c.Log.Format)
}

// Options returns the connection options implied by the configuration,
// with logs written to w.
func (c *Config) Options(w io.Writer) ([]core.Option, error) {
	l, err := c.Logger(w)
	if err != nil {
		return nil, err
	}
	opts := []core.Option{core.WithLogger(l)}
	if len(c.SensitiveFields) > 0 {
		opts = append(opts, core.WithSensitiveFields(c.SensitiveFields...))
	}
	if c.PoolHealthCheck > 0 {
		opts = append(opts, core.WithPoolHealthCheck(c.PoolHealthCheck))
	}
	level, err := audit.ParseLevel(c.Audit)
	if err != nil {
		return nil, err
	}
	if level != audit.LevelNone {
		opts = append(opts, core.WithQueryHook(audit.New(l, level).Hook()))
	}
	return opts, nil
}
