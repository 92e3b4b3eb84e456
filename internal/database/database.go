package database

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/logging"
)

const SQLiteMemoryOnlyDSN = "file::memory:?cache=shared"

// Database records the outcome of every sync and refresh job. SQLite only:
// the history lives next to the workspaces it describes and is never shared
// across hosts.
type Database struct {
	db     *sql.DB
	config *config.Database
	log    *logging.Logger
}

func New() *Database {
	return &Database{log: logging.Discard()}
}

func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) WithConfig(config *config.Database) *Database {
	d.config = config
	return d
}

func (d *Database) WithLogger(log *logging.Logger) *Database {
	d.log = log
	return d
}

func (d *Database) InitDB(ctx context.Context) error {
	dsn := SQLiteMemoryOnlyDSN
	if d.config != nil && d.config.DSN != "" {
		dsn = d.config.DSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	// modernc's sqlite is in-process; a single connection avoids lock
	// contention between writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return err
	}

	d.db = db
	d.log.Debugf("job history database ready (dsn: %s)", dsn)
	return nil
}

func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// JobRecord is one completed job.
type JobRecord struct {
	ID        int64     `json:"id"`
	Workspace string    `json:"workspace"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Conflicts int       `json:"conflicts"`
	Duration  int64     `json:"duration_ms"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Database) InsertJob(ctx context.Context, rec JobRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO jobs (workspace, kind, outcome, conflicts, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Workspace, rec.Kind, rec.Outcome, rec.Conflicts, rec.Duration, rec.Error, rec.CreatedAt.UTC())
	return err
}

type ListOptions struct {
	Limit  int
	Cursor string
}

func (opts ListOptions) cursor() int64 {
	if opts.Cursor != "" {
		decoded, err := base64.URLEncoding.DecodeString(opts.Cursor)
		if err == nil {
			after, _ := strconv.ParseInt(string(decoded), 10, 64)
			return after
		}
	}
	return 0
}

func encodeCursor(id int64) string {
	cursor := strconv.FormatInt(id, 10)
	return base64.URLEncoding.EncodeToString([]byte(cursor))
}

// ListJobs pages through the history of one workspace, newest first. The
// returned cursor is empty when the listing is exhausted.
func (d *Database) ListJobs(ctx context.Context, workspace string, opts ListOptions) ([]JobRecord, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, workspace, kind, outcome, conflicts, duration_ms, error, created_at
		  FROM jobs WHERE workspace = ?`
	args := []any{workspace}
	if after := opts.cursor(); after > 0 {
		query += " AND id < ?"
		args = append(args, after)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.Workspace, &rec.Kind, &rec.Outcome, &rec.Conflicts, &rec.Duration, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, "", err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(records) == limit {
		next = encodeCursor(records[len(records)-1].ID)
	}
	return records, next, nil
}

// LastJob returns the most recent record for a workspace, or nil.
func (d *Database) LastJob(ctx context.Context, workspace string) (*JobRecord, error) {
	records, _, err := d.ListJobs(ctx, workspace, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// PruneJobs deletes records older than the cutoff and reports how many went.
func (d *Database) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM jobs WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
