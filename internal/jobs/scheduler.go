package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/logger"
)

// Runner dispatches a due job to its stage logic. orchestrator.Orchestrator
// satisfies this.
type Runner interface {
	RunStage(ctx context.Context, scheduleID uuid.UUID, stage clock.Stage, attempt int) (*notify.Outcome, error)
	Launch(ctx context.Context, scheduleID uuid.UUID, skipPreflight bool, attempt int) (*notify.Outcome, error)
}

// lockTTL bounds how long a per-schedule lock is held before it expires on
// its own if a worker crashes mid-job.
const lockTTL = 2 * time.Minute

// Scheduler is the Delayed-Job Scheduler component (§4.10): it owns the
// durable queue and drives each due job through the Runner, serializing
// concurrent access to a schedule with a distributed lock (§5).
type Scheduler struct {
	repo        Repository
	runner      Runner
	redisClient *redis.Client
	db          *sql.DB
	workerID    string
}

// NewScheduler builds a Scheduler. Either redisClient or db (or both) may be
// supplied; distlock.NewLock prefers Redis and falls back to PG advisory
// locks.
func NewScheduler(repo Repository, runner Runner, redisClient *redis.Client, db *sql.DB, workerID string) *Scheduler {
	return &Scheduler{repo: repo, runner: runner, redisClient: redisClient, db: db, workerID: workerID}
}

// EnqueueJobs creates one job per stage in fireTimes, e.g. the five stage
// jobs created for a newly created schedule, firing at the times computed
// by the round scheduler.
func EnqueueJobs(ctx context.Context, repo Repository, scheduleID uuid.UUID, fireTimes map[clock.Stage]time.Time) error {
	newJobs := make([]*Job, 0, len(fireTimes))
	for stage, fireAt := range fireTimes {
		newJobs = append(newJobs, &Job{
			ID:         uuid.New(),
			ScheduleID: scheduleID,
			Stage:      stage,
			FireAt:     fireAt,
			State:      StatePending,
		})
	}
	return repo.Enqueue(ctx, newJobs)
}

// EnqueueForSchedule creates one job per stage in fireTimes for a single
// schedule, e.g. the five stage jobs created at campaign-creation time.
func (s *Scheduler) EnqueueForSchedule(ctx context.Context, scheduleID uuid.UUID, fireTimes map[clock.Stage]time.Time) error {
	return EnqueueJobs(ctx, s.repo, scheduleID, fireTimes)
}

// CancelJobsFor removes all pending/delayed jobs for a schedule, e.g. when
// the schedule is cancelled.
func (s *Scheduler) CancelJobsFor(ctx context.Context, scheduleID uuid.UUID) error {
	return s.repo.CancelFor(ctx, scheduleID)
}

// RescheduleJobsFor overwrites a schedule's pending jobs with new fire
// times, e.g. after the round scheduler recomputes a later round.
func (s *Scheduler) RescheduleJobsFor(ctx context.Context, scheduleID uuid.UUID, fireTimes map[clock.Stage]time.Time) error {
	if err := s.repo.CancelFor(ctx, scheduleID); err != nil {
		return err
	}
	return EnqueueJobs(ctx, s.repo, scheduleID, fireTimes)
}

// RescheduleWrapup enqueues an additional wrap-up job firing delay after the
// observed launch timestamp. The wrap-up job enqueued at schedule-creation
// time is not cancelled.
func (s *Scheduler) RescheduleWrapup(ctx context.Context, scheduleID uuid.UUID, observedLaunchAt time.Time, delay time.Duration) error {
	return EnqueueJobs(ctx, s.repo, scheduleID, map[clock.Stage]time.Time{
		clock.StageWrapup: observedLaunchAt.Add(delay),
	})
}

// StatusOf reports every job row for a schedule, per §4.10's statusOf.
func (s *Scheduler) StatusOf(ctx context.Context, scheduleID uuid.UUID) ([]StatusView, error) {
	rows, err := s.repo.StatusOf(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(rows))
	for _, r := range rows {
		views = append(views, StatusView{State: r.State, FireAt: r.FireAt})
	}
	return views, nil
}

// PollOnce claims up to limit due jobs and processes each one, returning the
// number processed. It is the operator safety-net ticker-driven loop: the
// round scheduler's own enqueue/reschedule calls are the primary path, but a
// periodic PollOnce guards against jobs whose fireAt arrived while no other
// trigger fired.
func (s *Scheduler) PollOnce(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ClaimDue(ctx, s.workerID, limit)
	if err != nil {
		return 0, err
	}
	for _, j := range due {
		s.processJob(ctx, j)
	}
	return len(due), nil
}

func (s *Scheduler) processJob(ctx context.Context, j *Job) {
	lockKey := fmt.Sprintf("schedule:%s", j.ScheduleID)
	lock := distlock.NewLock(s.redisClient, s.db, lockKey, lockTTL)

	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		// Another worker holds the schedule's lock; back off and retry
		// the job shortly rather than failing it outright.
		s.retryOrDeadLetter(ctx, j, engineerr.Transient("jobs.processJob", errors.New("could not acquire schedule lock")))
		return
	}
	defer lock.Release(ctx)

	attempt := j.Attempts + 1
	var runErr error
	if j.Stage == clock.StageLaunchConfirm {
		_, runErr = s.runner.Launch(ctx, j.ScheduleID, false, attempt)
	} else {
		_, runErr = s.runner.RunStage(ctx, j.ScheduleID, j.Stage, attempt)
	}

	if runErr == nil {
		if err := s.repo.MarkCompleted(ctx, j.ID); err != nil {
			logger.Error("jobs: mark completed failed", "jobId", j.ID, "error", err)
		}
		return
	}
	s.retryOrDeadLetter(ctx, j, runErr)
}

func (s *Scheduler) retryOrDeadLetter(ctx context.Context, j *Job, cause error) {
	if !engineerr.Retryable(cause) || j.Attempts+1 >= MaxAttempts {
		logger.Error("jobs: dead-lettering job", "jobId", j.ID, "scheduleId", j.ScheduleID, "stage", j.Stage, "attempts", j.Attempts+1, "error", cause)
		if err := s.repo.MarkDeadLetter(ctx, j.ID, cause.Error()); err != nil {
			logger.Error("jobs: mark dead-letter failed", "jobId", j.ID, "error", err)
		}
		return
	}

	next := time.Now().UTC().Add(BackoffFor(j.Attempts + 1))
	logger.Warn("jobs: retrying job", "jobId", j.ID, "scheduleId", j.ScheduleID, "stage", j.Stage, "nextFireAt", next, "error", cause)
	if err := s.repo.MarkRetry(ctx, j.ID, cause.Error(), next); err != nil {
		logger.Error("jobs: mark retry failed", "jobId", j.ID, "error", err)
	}
}

// ReclaimStale requeues jobs claimed by crashed workers. Intended to run
// periodically alongside PollOnce.
func (s *Scheduler) ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	return s.repo.ReclaimStale(ctx, staleAfter)
}

// RegisterWorker records this Scheduler's workerID as running, at startup.
func (s *Scheduler) RegisterWorker(ctx context.Context) error {
	return s.repo.RegisterWorker(ctx, s.workerID)
}

// Heartbeat refreshes this Scheduler's workerID's last-seen timestamp.
func (s *Scheduler) Heartbeat(ctx context.Context) error {
	return s.repo.Heartbeat(ctx, s.workerID)
}

// DeregisterWorker marks this Scheduler's workerID stopped, on shutdown.
func (s *Scheduler) DeregisterWorker(ctx context.Context) error {
	return s.repo.DeregisterWorker(ctx, s.workerID)
}

// ListWorkers returns every known worker's registration/heartbeat state.
func (s *Scheduler) ListWorkers(ctx context.Context) ([]WorkerStatus, error) {
	return s.repo.ListWorkers(ctx)
}

// LockSchedule acquires the same per-schedule distributed lock processJob
// uses, so operator-triggered HTTP stage runs can't race a due job
// mutating the same schedule concurrently (§5). Callers must Release the
// returned lock, typically via defer.
func (s *Scheduler) LockSchedule(ctx context.Context, scheduleID uuid.UUID) (distlock.DistLock, error) {
	lockKey := fmt.Sprintf("schedule:%s", scheduleID)
	lock := distlock.NewLock(s.redisClient, s.db, lockKey, lockTTL)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire schedule lock: %w", err)
	}
	if !acquired {
		return nil, engineerr.NotReady("lockSchedule", errors.New("schedule is busy with another in-flight operation"))
	}
	return lock, nil
}
