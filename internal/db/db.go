package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("row not found")

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps an sqlx connection pool together with the SQL flavor used to
// build queries for it.
type DB struct {
	Pool   *sqlx.DB
	Flavor sqlbuilder.Flavor
}

// New opens and pings a database. driver is "postgres" or "sqlite"; for
// sqlite, url is a file path (or ":memory:").
func New(ctx context.Context, driver, url string) (*DB, error) {
	var (
		pool   *sqlx.DB
		flavor sqlbuilder.Flavor
		err    error
	)
	switch driver {
	case DriverPostgres, "":
		pool, err = sqlx.Open(DriverPostgres, url)
		flavor = sqlbuilder.PostgreSQL
	case DriverSQLite:
		pool, err = sqlx.Open(DriverSQLite, sqliteDSN(url))
		flavor = sqlbuilder.SQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if flavor == sqlbuilder.SQLite {
		// one writer; serializes read-modify-write cycles
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(25)
		pool.SetMaxIdleConns(5)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool, Flavor: flavor}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.PingContext(ctx)
}

// Migrate runs the database schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.Flavor == sqlbuilder.SQLite {
		schema = sqliteSchema
	}
	if _, err := d.Pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS integrations (
    organization_id  TEXT NOT NULL,
    integration_type TEXT NOT NULL,
    is_enabled       BOOLEAN NOT NULL DEFAULT TRUE,
    configuration    JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (organization_id, integration_type)
);

CREATE TABLE IF NOT EXISTS audit_events (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    user_id         TEXT NOT NULL DEFAULT '',
    action          TEXT NOT NULL,
    resource_type   TEXT NOT NULL,
    resource_id     TEXT NOT NULL,
    details         JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_org ON audit_events(organization_id, created_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS integrations (
    organization_id  TEXT NOT NULL,
    integration_type TEXT NOT NULL,
    is_enabled       BOOLEAN NOT NULL DEFAULT 1,
    configuration    TEXT NOT NULL DEFAULT '{}',
    created_at       TIMESTAMP NOT NULL,
    updated_at       TIMESTAMP NOT NULL,
    PRIMARY KEY (organization_id, integration_type)
);

CREATE TABLE IF NOT EXISTS audit_events (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    user_id         TEXT NOT NULL DEFAULT '',
    action          TEXT NOT NULL,
    resource_type   TEXT NOT NULL,
    resource_id     TEXT NOT NULL,
    details         TEXT NOT NULL DEFAULT '{}',
    created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_org ON audit_events(organization_id, created_at);
`
