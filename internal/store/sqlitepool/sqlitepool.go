// Package sqlitepool implements store.Store on a fixed-size pool of
// zombiezen.com/go/sqlite connections.
//
// Each operation takes one connection from the pool, runs a single
// statement and puts the connection back, so a failed call never leaves a
// connection checked out. Connections are not safe for concurrent use; the
// pool hands each caller its own.
//
// Every connection is prepared with WAL journaling, NORMAL synchronous and a
// five second busy timeout. Writers serialize on the SQLite write lock.
package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/loykin/archivist/internal/store"
	sq "github.com/loykin/archivist/internal/store/sqlite"
)

// Config holds the parameters for opening a pool.
type Config struct {
	// Path is the database file. ":memory:" opens a private shared-cache
	// in-memory database with a pool of one connection.
	Path string
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
	// Logger receives pool open/close messages. Nil discards them.
	Logger *slog.Logger
}

// DB implements store.Store.
type DB struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// New opens a pool. Connections are created lazily on first Take.
func New(cfg Config) (*DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlitepool: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = runtime.NumCPU()
		if size < 4 {
			size = 4
		}
	}
	uri := path
	if path == ":memory:" {
		uri = memoryURI()
		size = 1
	}

	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", path, err)
	}
	logger.Info("sqlite pool opened", "path", path, "pool_size", size)
	return &DB{pool: pool, logger: logger, path: path}, nil
}

var memSeq atomic.Uint64

// memoryURI names a fresh in-memory database so two pools never share one.
// The database lives while the pool holds its connection.
func memoryURI() string {
	return fmt.Sprintf("file:archivist-mem-%d?mode=memory&cache=shared", memSeq.Add(1))
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}

// session takes a connection and returns the matching release func.
func (d *DB) session(ctx context.Context) (*sqlite.Conn, func(), error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, func() { d.pool.Put(conn) }, nil
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	conn, release, err := d.session(ctx)
	if err != nil {
		return err
	}
	defer release()
	return sqlitex.ExecuteScript(conn, sq.Schema, nil)
}

func (d *DB) Ping(ctx context.Context) error {
	conn, release, err := d.session(ctx)
	if err != nil {
		return err
	}
	defer release()
	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

func (d *DB) Close() error {
	err := d.pool.Close()
	d.logger.Info("sqlite pool closed", "path", d.path)
	return err
}

func (d *DB) Get(ctx context.Context, nodeID int64) (*store.Archiver, error) {
	conn, release, err := d.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var found *store.Archiver
	err = sqlitex.Execute(conn, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		WHERE nodeid = ?`, &sqlitex.ExecOptions{
		Args: []any{nodeID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			// ColumnText copies out of the statement buffer.
			found = &store.Archiver{
				NodeID:   stmt.ColumnInt64(0),
				NodeName: stmt.ColumnText(1),
				NodeHost: stmt.ColumnText(2),
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (d *DB) Add(ctx context.Context, nodeName *string, nodeHost string) (int64, error) {
	conn, release, err := d.session(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var name any
	if nodeName != nil {
		name = *nodeName
	}
	var (
		nodeID   int64
		returned bool
	)
	err = sqlitex.Execute(conn, sq.InsertArchiver, &sqlitex.ExecOptions{
		Args: []any{name, nodeHost},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			nodeID = stmt.ColumnInt64(0)
			returned = true
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	if !returned {
		return 0, store.ErrNoRowReturned
	}
	return nodeID, nil
}

func (d *DB) Remove(ctx context.Context, nodeID int64) (int64, error) {
	conn, release, err := d.session(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	err = sqlitex.Execute(conn, `DELETE FROM archiver WHERE nodeid = ?`, &sqlitex.ExecOptions{
		Args: []any{nodeID},
	})
	if err != nil {
		return 0, err
	}
	return int64(conn.Changes()), nil
}

func (d *DB) List(ctx context.Context, limit int) ([]store.Archiver, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	conn, release, err := d.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]store.Archiver, 0)
	err = sqlitex.Execute(conn, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		ORDER BY nodeid
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, store.Archiver{
				NodeID:   stmt.ColumnInt64(0),
				NodeName: stmt.ColumnText(1),
				NodeHost: stmt.ColumnText(2),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
