package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/archivist/internal/store"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnMaxAge   = 5 * time.Minute
)

// The identifier is drawn from the sequence once and reused for both the
// nodeid column and the generated name, so concurrent inserts can never
// produce a name that points at another row's identifier.
const insertArchiver = `
	WITH seq(nodeid) AS (SELECT nextval('archiver_nodeid_seq'::regclass))
	INSERT INTO archiver(nodeid, nodename, nodehost)
	SELECT seq.nodeid,
		CASE WHEN $1::text IS NULL THEN format('archiver_%s', seq.nodeid) ELSE $1::text END,
		$2
	FROM seq
	RETURNING nodeid;`

// DB implements store.Store for PostgreSQL using pgx through database/sql.
type DB struct {
	db *sql.DB
}

// New opens a pool for dsn. No connection is made until the first call.
func New(dsn string, pool store.PoolOptions) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(valOr(pool.MaxOpenConns, defaultMaxOpenConns))
	d.SetMaxIdleConns(valOr(pool.MaxIdleConns, defaultMaxIdleConns))
	if pool.ConnMaxAge > 0 {
		d.SetConnMaxLifetime(pool.ConnMaxAge)
	} else {
		d.SetConnMaxLifetime(defaultConnMaxAge)
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS archiver_nodeid_seq;`,
		`CREATE TABLE IF NOT EXISTS archiver(
			nodeid BIGINT PRIMARY KEY DEFAULT nextval('archiver_nodeid_seq'::regclass),
			nodename TEXT NOT NULL,
			nodehost TEXT NOT NULL
		);`,
		`ALTER SEQUENCE archiver_nodeid_seq OWNED BY archiver.nodeid;`,
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	for _, q := range stmts {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) Get(ctx context.Context, nodeID int64) (*store.Archiver, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var a store.Archiver
	err = conn.QueryRowContext(ctx, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		WHERE nodeid=$1;`, nodeID).Scan(&a.NodeID, &a.NodeName, &a.NodeHost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *DB) Add(ctx context.Context, nodeName *string, nodeHost string) (int64, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	var name any
	if nodeName != nil {
		name = *nodeName
	}
	var nodeID int64
	err = conn.QueryRowContext(ctx, insertArchiver, name, nodeHost).Scan(&nodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNoRowReturned
	}
	if err != nil {
		return 0, err
	}
	return nodeID, nil
}

func (p *DB) Remove(ctx context.Context, nodeID int64) (int64, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	res, err := conn.ExecContext(ctx, `DELETE FROM archiver WHERE nodeid=$1;`, nodeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *DB) List(ctx context.Context, limit int) ([]store.Archiver, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, `
		SELECT nodeid, nodename, nodehost
		FROM archiver
		ORDER BY nodeid
		LIMIT $1;`, limit)
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

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
