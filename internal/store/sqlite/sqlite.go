package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/archivist/internal/store"
)

// InsertArchiver registers an archiver in one statement. The next identifier
// is taken from the AUTOINCREMENT high-water mark so a removed archiver's
// nodeid is never handed out again. SQLite takes the write lock before the
// SELECT runs, which keeps allocation and naming atomic.
const InsertArchiver = `
	INSERT INTO archiver(nodeid, nodename, nodehost)
	SELECT seq.next, COALESCE(?1, 'archiver_' || seq.next), ?2
	FROM (
		SELECT MAX(
			COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'archiver'), 0),
			COALESCE((SELECT MAX(nodeid) FROM archiver), 0)
		) + 1 AS next
	) AS seq
	RETURNING nodeid;`

// Schema is shared with the zombiezen-backed pool in store/sqlitepool.
const Schema = `CREATE TABLE IF NOT EXISTS archiver(
	nodeid INTEGER PRIMARY KEY AUTOINCREMENT,
	nodename TEXT NOT NULL,
	nodehost TEXT NOT NULL
);`

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string, pool store.PoolOptions) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	memory := p == ":memory:"
	dsn := p
	if !memory && !strings.HasPrefix(p, "file:") {
		dsn = "file:" + p + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite works best with a single connection; an in-memory database
	// exists only inside the connection that created it.
	if memory || pool.MaxOpenConns <= 0 {
		d.SetMaxOpenConns(1)
	} else {
		d.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		d.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxAge > 0 && !memory {
		d.SetConnMaxLifetime(pool.ConnMaxAge)
	}
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	_, err = conn.ExecContext(ctx, Schema)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Get(ctx context.Context, nodeID int64) (*store.Archiver, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var a store.Archiver
	err = conn.QueryRowContext(ctx, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		WHERE nodeid=?;`, nodeID).Scan(&a.NodeID, &a.NodeName, &a.NodeHost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *DB) Add(ctx context.Context, nodeName *string, nodeHost string) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	var name any
	if nodeName != nil {
		name = *nodeName
	}
	var nodeID int64
	err = conn.QueryRowContext(ctx, InsertArchiver, name, nodeHost).Scan(&nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNoRowReturned
	}
	if err != nil {
		return 0, err
	}
	return nodeID, nil
}

func (s *DB) Remove(ctx context.Context, nodeID int64) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	res, err := conn.ExecContext(ctx, `DELETE FROM archiver WHERE nodeid=?;`, nodeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DB) List(ctx context.Context, limit int) ([]store.Archiver, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		ORDER BY nodeid
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanArchivers(rows)
}

func scanArchivers(rows *sql.Rows) ([]store.Archiver, error) {
	out := make([]store.Archiver, 0)
	for rows.Next() {
		var a store.Archiver
		if err := rows.Scan(&a.NodeID, &a.NodeName, &a.NodeHost); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
