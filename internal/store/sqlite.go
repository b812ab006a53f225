package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/nightsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=busy_timeout(10000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	sitesJSON, err := json.Marshal(run.Sites)
	if err != nil {
		return fmt.Errorf("marshal sites: %w", err)
	}
	summary := run.Summary
	if summary == nil {
		summary = &model.RunSummary{}
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, source, sites, num_nights, summary, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, run.Source, string(sitesJSON), run.NumNights, string(summaryJSON),
		summary.Failed, run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const runColumns = `id, scenario, source, sites, num_nights, summary, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var sitesJSON, summaryJSON, createdAt string
	if err := row.Scan(&run.ID, &run.Scenario, &run.Source, &sitesJSON, &run.NumNights, &summaryJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sitesJSON), &run.Sites); err != nil {
		return nil, fmt.Errorf("unmarshal sites: %w", err)
	}
	run.Summary = &model.RunSummary{}
	if err := json.Unmarshal([]byte(summaryJSON), run.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}

// GetRun returns the run with the given ID, or nil if it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, and the total number of runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "scenario", opts.Scenario, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	var args []any
	if opts.Scenario != "" {
		where = " WHERE scenario = ?"
		args = append(args, opts.Scenario)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Timeline entries ---

// SaveTimeline stores the timeline records of a run in one transaction.
func (s *SQLiteStore) SaveTimeline(ctx context.Context, runID string, records []model.EntryRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "timeline_entries", "run_id", runID, "count", len(records))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO timeline_entries (run_id, night, site, seq, timeslot, event_kind, event_time, description, final, plan)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var plan *string
		if r.Plan != nil {
			b, err := json.Marshal(r.Plan)
			if err != nil {
				return fmt.Errorf("marshal plan: %w", err)
			}
			p := string(b)
			plan = &p
		}
		if _, err := stmt.ExecContext(ctx,
			runID, int(r.Night), string(r.Site), r.Seq, int(r.Timeslot), string(r.EventKind),
			r.EventTime.UTC().Format(time.RFC3339Nano), r.Description, r.Final, plan,
		); err != nil {
			return fmt.Errorf("insert entry night %d site %s seq %d: %w", r.Night, r.Site, r.Seq, err)
		}
	}
	return tx.Commit()
}

// ListTimeline returns the stored entries of a run ordered by night, site
// and sequence, optionally narrowed to one night and/or site.
func (s *SQLiteStore) ListTimeline(ctx context.Context, runID string, filter model.TimelineFilter) ([]model.EntryRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "timeline_entries", "run_id", runID)

	whereClauses := []string{"run_id = ?"}
	args := []any{runID}
	if filter.Night != nil {
		whereClauses = append(whereClauses, "night = ?")
		args = append(args, int(*filter.Night))
	}
	if filter.Site != "" {
		whereClauses = append(whereClauses, "site = ?")
		args = append(args, string(filter.Site))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, night, site, seq, timeslot, event_kind, event_time, description, final, plan
		 FROM timeline_entries WHERE `+strings.Join(whereClauses, " AND ")+`
		 ORDER BY night, site, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EntryRecord
	for rows.Next() {
		var r model.EntryRecord
		var night, timeslot int
		var site, kind, eventTime string
		var plan *string
		if err := rows.Scan(&r.RunID, &night, &site, &r.Seq, &timeslot, &kind, &eventTime,
			&r.Description, &r.Final, &plan); err != nil {
			return nil, err
		}
		r.Night = model.NightIndex(night)
		r.Site = model.Site(site)
		r.Timeslot = model.TimeslotIndex(timeslot)
		r.EventKind = model.EventKind(kind)
		r.EventTime, _ = time.Parse(time.RFC3339Nano, eventTime)
		if plan != nil {
			r.Plan = &model.Plan{}
			if err := json.Unmarshal([]byte(*plan), r.Plan); err != nil {
				return nil, fmt.Errorf("unmarshal plan: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
