package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playbeacon/beacon/pkg/types"
)

// SQLiteQueue implements Queue on an SQLite handle, normally the same
// file as the heartbeat store. A partial unique index on server_id over
// pending rows makes Enqueue an atomic coalescing upsert.
type SQLiteQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteQueue prepares the jobs schema on db and returns the queue.
func NewSQLiteQueue(ctx context.Context, db *sql.DB) (*SQLiteQueue, error) {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	enqueued_at TEXT NOT NULL,
	processed_at TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS jobs_pending_per_server
ON jobs(server_id)
WHERE processed_at IS NULL;

CREATE INDEX IF NOT EXISTS jobs_pending_order
ON jobs(enqueued_at)
WHERE processed_at IS NULL;
`)
	if err != nil {
		return nil, fmt.Errorf("migrate jobs schema: %w", err)
	}
	return &SQLiteQueue{db: db, now: time.Now}, nil
}

// Enqueue inserts a pending job or refreshes the existing one's
// enqueued_at, coalescing heartbeat bursts into one unit of work.
func (q *SQLiteQueue) Enqueue(ctx context.Context, serverID string) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO jobs(id, server_id, enqueued_at, attempts)
VALUES (?, ?, ?, 0)
ON CONFLICT(server_id) WHERE processed_at IS NULL
DO UPDATE SET enqueued_at = excluded.enqueued_at
`, uuid.New().String(), serverID, ts(q.now()))
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim selects up to batchSize pending jobs oldest-first and increments
// attempts for each inside one transaction.
func (q *SQLiteQueue) Claim(ctx context.Context, batchSize int) ([]types.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT id, server_id, enqueued_at, attempts, last_error
FROM jobs
WHERE processed_at IS NULL
ORDER BY enqueued_at ASC
LIMIT ?
`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}

	var jobs []types.Job
	for rows.Next() {
		var (
			job   types.Job
			enqTS string
		)
		if err := rows.Scan(&job.ID, &job.ServerID, &enqTS, &job.Attempts, &job.LastError); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if job.EnqueuedAt, err = parseTS(enqTS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse enqueued_at: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}
	rows.Close()

	for i := range jobs {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET attempts = attempts + 1 WHERE id = ?`, jobs[i].ID); err != nil {
			return nil, fmt.Errorf("increment attempts: %w", err)
		}
		jobs[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return jobs, nil
}

// MarkProcessed makes the job terminal.
func (q *SQLiteQueue) MarkProcessed(ctx context.Context, jobID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE jobs SET processed_at = ? WHERE id = ?`, ts(at), jobID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed records the failure and leaves the job pending for a
// future poll.
func (q *SQLiteQueue) MarkFailed(ctx context.Context, jobID string, jobErr error, attempts int) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	_, err := q.db.ExecContext(ctx, `UPDATE jobs SET last_error = ?, attempts = ? WHERE id = ?`, msg, attempts, jobID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Depth returns the number of pending jobs.
func (q *SQLiteQueue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE processed_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
