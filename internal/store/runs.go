package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Sink       string     `json:"sink"`
	Fetched    int        `json:"fetched"`
	Accepted   int        `json:"accepted"`
	Rejected   int        `json:"rejected"`
	Written    int        `json:"written"`
	Pruned     int64      `json:"pruned"`
	Error      string     `json:"error,omitempty"`
}

// CreateRun stores a new RUNNING run and fills in its id.
func (d *DB) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO runs (id, started_at, status, sink) VALUES (?, ?, ?, ?)`),
		run.ID, run.StartedAt, run.Status, run.Sink,
	)
	return err
}

// UpdateRun writes the run's status, counters and error.
func (d *DB) UpdateRun(ctx context.Context, run *Run) error {
	_, err := d.db.ExecContext(ctx, d.rebind(
		`UPDATE runs SET
			finished_at = ?,
			status = ?,
			fetched = ?,
			accepted = ?,
			rejected = ?,
			written = ?,
			pruned = ?,
			error = ?
		WHERE id = ?`),
		run.FinishedAt, run.Status, run.Fetched, run.Accepted, run.Rejected, run.Written, run.Pruned, run.Error, run.ID,
	)
	return err
}

// LastRun returns the most recently started run, or nil if there is none.
func (d *DB) LastRun(ctx context.Context) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, sink, fetched, accepted, rejected, written, pruned, error
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Sink, &r.Fetched, &r.Accepted, &r.Rejected, &r.Written, &r.Pruned, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
