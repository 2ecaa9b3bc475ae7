package sqldb

import (
	"context"
	"fmt"
)

// Migrator applies the versioned bookmark schema.
type Migrator struct{}

type migration struct {
	version  int
	postgres []string
	sqlite   []string
}

var migrations = []migration{
	{
		version: 1,
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS bookmarks (
				id BIGSERIAL PRIMARY KEY,
				url TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
		},
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS bookmarks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				url TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		version:  2,
		postgres: []string{`CREATE INDEX IF NOT EXISTS idx_bookmarks_created_at ON bookmarks(created_at)`},
		sqlite:   []string{`CREATE INDEX IF NOT EXISTS idx_bookmarks_created_at ON bookmarks(created_at)`},
	},
}

// LatestVersion is the schema version after Up.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

// Up brings the schema to the latest version. Safe to call on every start.
func (m Migrator) Up(ctx context.Context, d *DB) error {
	if _, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := m.Version(ctx, d)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		stmts := mig.sqlite
		if d.dialect == Postgres {
			stmts = mig.postgres
		}
		if err := m.apply(ctx, d, mig.version, stmts); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the applied schema version, 0 for a fresh database.
func (m Migrator) Version(ctx context.Context, d *DB) (int, error) {
	var v int
	err := d.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (m Migrator) apply(ctx context.Context, d *DB, version int, stmts []string) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, d.Rebind(`INSERT INTO schema_migrations(version) VALUES (?)`), version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
