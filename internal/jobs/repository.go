package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoJobsDue is a sentinel for "nothing is ready to run". Neither
// Repository implementation returns it: ClaimDue reports that case with an
// empty result and a nil error.
var ErrNoJobsDue = errors.New("jobs: no jobs due")

// Repository is the durable-queue persistence contract.
type Repository interface {
	// Enqueue durably persists new jobs, e.g. the five stage jobs created at
	// schedule creation time.
	Enqueue(ctx context.Context, jobs []*Job) error

	// ClaimDue claims up to limit jobs whose fireAt has passed, using
	// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never claim
	// the same row twice. Claimed jobs move to StateActive.
	ClaimDue(ctx context.Context, workerID string, limit int) ([]*Job, error)

	// MarkCompleted transitions a job to StateCompleted.
	MarkCompleted(ctx context.Context, jobID uuid.UUID) error

	// MarkRetry records a failed attempt and reschedules the job at
	// nextFireAt, moving it back to StateDelayed.
	MarkRetry(ctx context.Context, jobID uuid.UUID, errMessage string, nextFireAt time.Time) error

	// MarkDeadLetter records a failed attempt and moves the job to
	// StateFailed; the retry budget is exhausted.
	MarkDeadLetter(ctx context.Context, jobID uuid.UUID, errMessage string) error

	// CancelFor removes all pending/delayed jobs for a schedule.
	CancelFor(ctx context.Context, scheduleID uuid.UUID) error

	// StatusOf returns every job row for a schedule.
	StatusOf(ctx context.Context, scheduleID uuid.UUID) ([]*Job, error)

	// ReclaimStale requeues jobs claimed longer than staleAfter ago whose
	// worker has presumably crashed, returning the number reclaimed.
	ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error)

	// RegisterWorker records a job-runner process as running, upserting on
	// repeated calls from the same workerID.
	RegisterWorker(ctx context.Context, workerID string) error

	// Heartbeat refreshes a registered worker's last-seen timestamp.
	Heartbeat(ctx context.Context, workerID string) error

	// DeregisterWorker marks a worker stopped on graceful shutdown.
	DeregisterWorker(ctx context.Context, workerID string) error

	// ListWorkers returns every known worker's registration/heartbeat state.
	ListWorkers(ctx context.Context) ([]WorkerStatus, error)
}
