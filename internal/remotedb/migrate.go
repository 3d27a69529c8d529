package remotedb

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// sqliteSchema is applied statement by statement; libSQL remotes reject
// multi-statement batches.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		folder_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		plain_text TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_folders_updated ON folders(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_folders_sort ON folders(sort_order)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder_id, sort_order)`,
}

func (db *DB) migrate(ctx context.Context, dsn string) error {
	if db.dialect == DialectPostgres {
		return migratePostgres(dsn)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// migratePostgres runs the embedded migrations on a dedicated connection.
func migratePostgres(dsn string) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	// The pgx/v5 migrate driver registers the pgx5 scheme.
	url := "pgx5://" + dsn[strings.Index(dsn, "://")+3:]
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to start migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
