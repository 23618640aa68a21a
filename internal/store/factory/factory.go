package factory

import (
	"errors"
	"strings"

	"github.com/loykin/archivist/internal/store"
	pg "github.com/loykin/archivist/internal/store/postgres"
	sq "github.com/loykin/archivist/internal/store/sqlite"
	"github.com/loykin/archivist/internal/store/sqlitepool"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite://<path>" or bare filepath (treated as sqlite)
//   - sqlitepool: "sqlitepool://<path>" (zombiezen connection pool)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	return NewFromConfig(store.Config{DSN: dsn})
}

// NewFromConfig renders cfg into a DSN and applies its pool options.
func NewFromConfig(cfg store.Config) (store.Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" && cfg.Type == "" && cfg.Path == "" {
		return nil, errors.New("empty DSN")
	}
	d, err := cfg.ResolveDSN()
	if err != nil {
		return nil, err
	}
	ld := strings.ToLower(d)
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d, cfg.Pool())
	}
	if strings.HasPrefix(ld, "sqlitepool://") {
		return sqlitepool.New(sqlitepool.Config{
			Path:     d[len("sqlitepool://"):],
			PoolSize: cfg.MaxOpenConns,
		})
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):], cfg.Pool())
	}
	// default to sqlite path
	return sq.New(d, cfg.Pool())
}
