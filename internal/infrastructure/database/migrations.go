package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the embedded schema migration files. The migrations
// package at the module root registers its embed.FS here from init, so
// the bridge binary carries its schema with it and needs no .sql files on
// disk.
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the .sql
// files. "." when the files sit at the root of the embedded filesystem.
var MigrationsDir = "migrations"

// Migration is one schema step, parsed from a file named
// YYYYMMDD_HHMMSS_description.sql.
//
// The bridge schema is additive-only: there are no rollback files, and
// recovery from a bad step is fixing the file and re-running Migrate.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string // description part of the filename
	SQL     string
}

// MigrationRecord is a row of the schema_migrations bookkeeping table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate brings the schema up to date, applying every migration whose
// version is not yet recorded, oldest first.
//
// Each migration runs in its own transaction: a failure leaves earlier
// steps committed and later ones unattempted, and re-running Migrate
// resumes from the failed step. Running against an up-to-date database is
// a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// AppliedMigrations returns the recorded schema steps in version order.
// The last entry's version is the effective schema version.
func (db *DB) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.DB.QueryContext(ctx,
		"SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		var applied string
		if err := rows.Scan(&rec.Version, &applied); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, applied); err == nil {
			rec.AppliedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema_migrations: %w", err)
	}
	return records, nil
}

// applyMigration runs one schema step and records its version, in a
// single transaction.
func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every migration file from the embedded filesystem,
// sorted by version. Returns nil when no migrations are embedded, which
// is normal for tests that build their own schema.
func loadMigrations() ([]Migration, error) {
	var unset embed.FS
	if MigrationsFS == unset {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(sql),
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename splits YYYYMMDD_HHMMSS_description.sql into
// version and description. Files that do not match the pattern are
// skipped rather than treated as errors.
func parseMigrationFilename(filename string) (version, name string, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || len(parts[0]) != 8 || len(parts[1]) != 6 {
		return "", "", false
	}
	return parts[0] + "_" + parts[1], parts[2], true
}
