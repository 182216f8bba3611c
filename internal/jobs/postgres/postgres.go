// Package postgres is the durable jobs.Repository backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
)

// Store is a PostgreSQL-backed jobs.Repository.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB as a jobs.Repository.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Enqueue(ctx context.Context, newJobs []*jobs.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin enqueue: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, j := range newJobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		if j.State == "" {
			j.State = jobs.StatePending
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO delayed_jobs (
				id, schedule_id, stage, fire_at, state, attempts, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, j.ID, j.ScheduleID, j.Stage.String(), j.FireAt, j.State, j.Attempts, now, now)
		if err != nil {
			return fmt.Errorf("postgres: insert delayed job: %w", err)
		}
	}
	return tx.Commit()
}

// ClaimDue uses a CTE with FOR UPDATE SKIP LOCKED so concurrent worker
// processes never claim the same row twice.
func (s *Store) ClaimDue(ctx context.Context, workerID string, limit int) ([]*jobs.Job, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, `
		WITH claimed AS (
			SELECT id
			FROM delayed_jobs
			WHERE state IN ('pending', 'delayed')
			  AND fire_at <= NOW()
			ORDER BY fire_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE delayed_jobs q
		SET state = 'active', claimed_by = $2, claimed_at = NOW(), updated_at = NOW()
		FROM claimed c
		WHERE q.id = c.id
		RETURNING q.id, q.schedule_id, q.stage, q.fire_at, q.state, q.attempts,
		          q.claimed_by, q.claimed_at, q.last_error, q.created_at, q.updated_at
	`, limit, workerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim due jobs: %w", err)
	}
	defer rows.Close()

	var claimed []*jobs.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

func (s *Store) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delayed_jobs SET state = 'completed', updated_at = NOW() WHERE id = $1
	`, jobID)
	return err
}

func (s *Store) MarkRetry(ctx context.Context, jobID uuid.UUID, errMessage string, nextFireAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delayed_jobs
		SET state = 'delayed', attempts = attempts + 1, last_error = $2,
		    fire_at = $3, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, jobID, errMessage, nextFireAt)
	return err
}

func (s *Store) MarkDeadLetter(ctx context.Context, jobID uuid.UUID, errMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delayed_jobs
		SET state = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, jobID, errMessage)
	return err
}

func (s *Store) CancelFor(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM delayed_jobs WHERE schedule_id = $1 AND state IN ('pending', 'delayed')
	`, scheduleID)
	return err
}

func (s *Store) StatusOf(ctx context.Context, scheduleID uuid.UUID) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, stage, fire_at, state, attempts,
		       claimed_by, claimed_at, last_error, created_at, updated_at
		FROM delayed_jobs WHERE schedule_id = $1
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: status of jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ReclaimStale requeues jobs claimed longer than staleAfter ago, e.g. after
// a worker process crashed mid-job. Grounded on the same stuck-item-recovery
// pattern used by the queue, applied to the active state here.
func (s *Store) ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delayed_jobs
		SET state = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE state = 'active' AND claimed_at < NOW() - $1::interval
	`, staleAfter.String())
	if err != nil {
		return 0, fmt.Errorf("postgres: reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RegisterWorker upserts a running registration row, mirroring the
// teacher's own workers-table upsert on (re)start.
func (s *Store) RegisterWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_workers (worker_id, status, started_at, last_heartbeat_at)
		VALUES ($1, 'running', NOW(), NOW())
		ON CONFLICT (worker_id) DO UPDATE SET status = 'running', started_at = NOW(), last_heartbeat_at = NOW()
	`, workerID)
	return err
}

func (s *Store) Heartbeat(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_workers SET last_heartbeat_at = NOW() WHERE worker_id = $1
	`, workerID)
	return err
}

func (s *Store) DeregisterWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_workers SET status = 'stopped' WHERE worker_id = $1
	`, workerID)
	return err
}

func (s *Store) ListWorkers(ctx context.Context) ([]jobs.WorkerStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, status, started_at, last_heartbeat_at FROM job_workers ORDER BY worker_id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workers: %w", err)
	}
	defer rows.Close()

	out := make([]jobs.WorkerStatus, 0)
	for rows.Next() {
		var w jobs.WorkerStatus
		if err := rows.Scan(&w.WorkerID, &w.Status, &w.StartedAt, &w.LastHeartbeatAt); err != nil {
			return nil, fmt.Errorf("postgres: scan worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*jobs.Job, error) {
	var j jobs.Job
	var stageStr string
	var claimedBy, lastError sql.NullString
	var claimedAt sql.NullTime

	if err := r.Scan(&j.ID, &j.ScheduleID, &stageStr, &j.FireAt, &j.State, &j.Attempts,
		&claimedBy, &claimedAt, &lastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("postgres: scan delayed job: %w", err)
	}
	j.Stage = stageFromString(stageStr)
	j.ClaimedBy = claimedBy.String
	j.LastError = lastError.String
	if claimedAt.Valid {
		j.ClaimedAt = &claimedAt.Time
	}
	return &j, nil
}

func stageFromString(s string) clock.Stage {
	for _, st := range clock.Stages {
		if st.String() == s {
			return st
		}
	}
	return clock.StagePreLaunch
}
