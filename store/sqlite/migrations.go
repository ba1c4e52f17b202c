package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one forward schema step.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations is the ordered schema history of the checkpoint store.
var Migrations = []Migration{
	{
		Name:    "create_checkpoints",
		Version: "20250101000001",
		Up: `
CREATE TABLE IF NOT EXISTS checkpoints (
    block_num   INTEGER PRIMARY KEY,
    block_id    TEXT    NOT NULL,
    block_time  INTEGER NOT NULL,
    revision    INTEGER NOT NULL,
    digest      BLOB    NOT NULL,
    created_at  TEXT    NOT NULL
);
`,
	},
	{
		Name:    "create_checkpoint_tables",
		Version: "20250101000002",
		Up: `
CREATE TABLE IF NOT EXISTS checkpoint_tables (
    block_num   INTEGER NOT NULL REFERENCES checkpoints (block_num) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    table_name  TEXT    NOT NULL,
    next_id     INTEGER NOT NULL,
    PRIMARY KEY (block_num, ordinal)
);
`,
	},
	{
		Name:    "create_checkpoint_objects",
		Version: "20250101000003",
		Up: `
CREATE TABLE IF NOT EXISTS checkpoint_objects (
    block_num   INTEGER NOT NULL REFERENCES checkpoints (block_num) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    seq         INTEGER NOT NULL,
    data        BLOB    NOT NULL,
    PRIMARY KEY (block_num, ordinal, seq)
);
`,
	},
	{
		Name:    "add_checkpoint_id",
		Version: "20250101000004",
		Up:      `ALTER TABLE checkpoints ADD COLUMN checkpoint_id TEXT`,
	},
	{
		Name:    "index_checkpoint_id",
		Version: "20250101000005",
		Up:      `CREATE UNIQUE INDEX IF NOT EXISTS idx_checkpoints_checkpoint_id ON checkpoints (checkpoint_id)`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range Migrations {
		var applied int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}
