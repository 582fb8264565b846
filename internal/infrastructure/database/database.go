package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// connectTimeout bounds the verification ping in Open.
	connectTimeout = 5 * time.Second
)

// DB wraps the SQLite connection with the bridge's lifecycle: embedded
// migrations, a health check, and the settings and device snapshot
// stores defined in store.go.
type DB struct {
	*sql.DB
}

// Config maps the database section of config.yaml.
type Config struct {
	// Path to the SQLite file. The directory is created on first run.
	Path string

	// WALMode enables write-ahead logging so snapshot writes never block
	// concurrent reads.
	WALMode bool

	// BusyTimeout is how long, in seconds, a locked database is retried
	// before the operation errors.
	BusyTimeout int
}

// Open connects to the SQLite file at cfg.Path, creating the file and
// its directory on first run. Foreign keys and the busy timeout are set
// through connection-string pragmas, and the pool is pinned to a single
// connection to match SQLite's single-writer model.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer, kept warm. SQLite serialises writes anyway; a wider
	// pool only manufactures busy-timeout contention.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{DB: sqlDB}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write on a brand-new
	// database, so a chmod failure here is not an error.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // See above

	return db, nil
}

// Close shuts the connection down. Safe to call on a DB whose inner
// handle is already gone.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to prove the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ExecContext executes a statement that returns no rows, wrapping any
// failure with query context.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction. Used by the migration runner so each
// schema step applies atomically with its bookkeeping row.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
