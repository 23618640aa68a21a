package store

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Config represents the store section of the configuration file.
// DSN wins when set; otherwise it is rendered from the typed fields.
type Config struct {
	DSN  string `toml:"dsn" mapstructure:"dsn"`
	Type string `toml:"type" mapstructure:"type"` // "sqlite", "sqlitepool", "postgres"

	// SQLite specific
	Path string `toml:"path" mapstructure:"path"`

	// PostgreSQL specific
	Host     string `toml:"host" mapstructure:"host"`
	Port     int    `toml:"port" mapstructure:"port"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	SSLMode  string `toml:"ssl_mode" mapstructure:"ssl_mode"`

	// Connection pooling
	MaxOpenConns int           `toml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxAge   time.Duration `toml:"conn_max_age" mapstructure:"conn_max_age"`

	// Additional driver options appended to the DSN query string
	Options map[string]string `toml:"options" mapstructure:"options"`
}

// Pool returns the pooling subset of the config.
func (c Config) Pool() PoolOptions {
	return PoolOptions{
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		ConnMaxAge:   c.ConnMaxAge,
	}
}

// PoolOptions tunes the connection pool behind a backend.
// Zero values keep each backend's defaults.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxAge   time.Duration
}

// ResolveDSN renders a DSN understood by factory.NewFromDSN.
func (c Config) ResolveDSN() (string, error) {
	if strings.TrimSpace(c.DSN) != "" {
		return strings.TrimSpace(c.DSN), nil
	}
	switch strings.ToLower(c.Type) {
	case "", "sqlite":
		if c.Path == "" {
			return "", fmt.Errorf("store: sqlite requires path")
		}
		return "sqlite://" + c.Path, nil
	case "sqlitepool":
		if c.Path == "" {
			return "", fmt.Errorf("store: sqlitepool requires path")
		}
		return "sqlitepool://" + c.Path, nil
	case "postgres", "postgresql":
		host := c.Host
		if host == "" {
			host = "localhost"
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   fmt.Sprintf("%s:%d", host, port),
			Path:   "/" + c.Database,
		}
		if c.Username != "" {
			if c.Password != "" {
				u.User = url.UserPassword(c.Username, c.Password)
			} else {
				u.User = url.User(c.Username)
			}
		}
		q := url.Values{}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		q.Set("sslmode", sslMode)
		keys := make([]string, 0, len(c.Options))
		for k := range c.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, c.Options[k])
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("store: unsupported type %q (supported: sqlite, sqlitepool, postgres)", c.Type)
	}
}
