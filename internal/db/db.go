package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultDBName = "taskboard.db"
)

type Config struct {
	Driver string
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string
}

// DefaultPath returns the sqlite file used when no DSN is configured.
func DefaultPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, ".taskboard", defaultDBName)
}

// Open opens the database handle. SQLite files get foreign keys on and their
// parent directory created.
func Open(cfg Config) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		path := cfg.DSN
		if path == "" {
			path = DefaultPath(".")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
		conn, err := sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database.dsn is required for postgres")
		}
		conn, err := sqlx.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
