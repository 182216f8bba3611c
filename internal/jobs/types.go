// Package jobs implements the Delayed-Job Scheduler component (§4.10): a
// durable queue of (scheduleId, stage, fireAt) jobs claimed with
// SELECT ... FOR UPDATE SKIP LOCKED, retried with exponential backoff
// (5s/10s/20s), and dead-lettered after three retries (four total
// attempts).
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
)

// State is a job's position in the delayed-queue lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateDelayed   State = "delayed" // retry scheduled after a failure
	StateActive    State = "active"  // claimed by a worker, in flight
	StateCompleted State = "completed"
	StateFailed    State = "failed" // dead-lettered: retry budget exhausted
)

// MaxAttempts is the total attempt budget before a job is dead-lettered:
// three retries (backoffs 5s/10s/20s) after the first attempt (§4.10).
const MaxAttempts = 4

// BackoffBase and BackoffFactor produce the 5s/10s/20s retry schedule.
const (
	BackoffBase   = 5 * time.Second
	BackoffFactor = 2
)

// BackoffFor returns the delay before retrying after the given number of
// prior attempts (1-indexed: the delay before attempt 2 is BackoffFor(1)).
func BackoffFor(priorAttempts int) time.Duration {
	delay := BackoffBase
	for i := 0; i < priorAttempts-1; i++ {
		delay *= BackoffFactor
	}
	return delay
}

// Job is one durable (scheduleId, stage, fireAt) unit of work.
type Job struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Stage      clock.Stage
	FireAt     time.Time

	State       State
	Attempts    int
	ClaimedBy   string
	ClaimedAt   *time.Time
	LastError   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusView is one stage's inspection result, per statusOf (§4.10).
type StatusView struct {
	State  State
	FireAt time.Time
}

// WorkerStatus is one job-runner process's registration/heartbeat record.
type WorkerStatus struct {
	WorkerID        string
	Status          string // "running" or "stopped"
	StartedAt       time.Time
	LastHeartbeatAt time.Time
}
