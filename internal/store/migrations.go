package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL,
		sites       TEXT NOT NULL DEFAULT '[]',
		num_nights  INTEGER NOT NULL,
		summary     TEXT NOT NULL DEFAULT '{}',
		created_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS timeline_entries (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		night       INTEGER NOT NULL,
		site        TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		timeslot    INTEGER NOT NULL,
		event_kind  TEXT NOT NULL,
		event_time  TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		final       INTEGER NOT NULL DEFAULT 0,
		plan        TEXT,
		PRIMARY KEY (run_id, night, site, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_run_site ON timeline_entries(run_id, site)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "source",
		alterSQL: "ALTER TABLE runs ADD COLUMN source TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "runs",
		column:   "failed",
		alterSQL: "ALTER TABLE runs ADD COLUMN failed INTEGER NOT NULL DEFAULT 0",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_runs_failed ON runs(failed) WHERE failed > 0",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
