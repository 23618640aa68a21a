package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/archivist/internal/auth"
	"github.com/loykin/archivist/internal/env"
	"github.com/loykin/archivist/internal/logger"
	"github.com/loykin/archivist/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. ARCHIVIST_STORE_DSN.
const EnvPrefix = "ARCHIVIST"

// Config represents the top-level TOML structure.
type Config struct {
	// EnvFiles are dotenv files whose variables feed ${VAR} expansion in
	// secrets and DSNs.
	EnvFiles []string      `toml:"env_files" mapstructure:"env_files"`
	Store    store.Config  `toml:"store" mapstructure:"store"`
	Server   ServerConfig  `toml:"server" mapstructure:"server"`
	Log      logger.Config `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig `toml:"history" mapstructure:"history"`
	Auth     auth.Config   `toml:"auth" mapstructure:"auth"`
}

type ServerConfig struct {
	Listen            string        `toml:"listen" mapstructure:"listen"`
	BasePath          string        `toml:"base_path" mapstructure:"base_path"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	TLS               TLSConfig     `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
	MinVersion   string      `toml:"min_version" mapstructure:"min_version"`
	MaxVersion   string      `toml:"max_version" mapstructure:"max_version"`
}

// AutoGenTLS controls the self-signed certificate written when AutoGenerate is on.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig lists the sink DSNs registration events are exported to.
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks   []string `toml:"sinks" mapstructure:"sinks"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_files", []string{})

	v.SetDefault("store.dsn", "")
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.path", "archivist.db")
	v.SetDefault("store.host", "")
	v.SetDefault("store.port", 0)
	v.SetDefault("store.database", "")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.ssl_mode", "")
	v.SetDefault("store.max_open_conns", 0)
	v.SetDefault("store.max_idle_conns", 0)
	v.SetDefault("store.conn_max_age", 0)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
}

// Load reads the TOML file at path, applies ARCHIVIST_* environment
// overrides and validates the result. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.expand(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// expand resolves ${VAR} references in the fields that usually carry secrets.
func (c *Config) expand() error {
	e := env.New()
	for _, f := range c.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return fmt.Errorf("env file %s: %w", f, err)
		}
	}
	c.Store.DSN = e.Expand(c.Store.DSN)
	c.Store.Password = e.Expand(c.Store.Password)
	c.Auth.JWTSecret = e.Expand(c.Auth.JWTSecret)
	for i, s := range c.History.Sinks {
		c.History.Sinks[i] = e.Expand(s)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := c.Store.ResolveDSN(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logger.FormatText, logger.FormatJSON, logger.FormatColor:
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server: listen address is required")
	}
	if t := c.Server.TLS; t.Enabled && (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
		return errors.New("server.tls: enabled but neither cert_file/key_file nor dir is set")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return errors.New("metrics: listen address is required when enabled")
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		return errors.New("history: enabled but no sinks configured")
	}
	if c.Auth.Enabled && len(c.Auth.Users) == 0 {
		return errors.New("auth: enabled but no users configured")
	}
	return nil
}
