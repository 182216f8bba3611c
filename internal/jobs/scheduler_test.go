package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs/memory"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type fakeRunner struct {
	stageErr  error
	launchErr error
	calls     int
}

func (f *fakeRunner) RunStage(ctx context.Context, scheduleID uuid.UUID, stage clock.Stage, attempt int) (*notify.Outcome, error) {
	f.calls++
	if f.stageErr != nil {
		return nil, f.stageErr
	}
	return &notify.Outcome{Sent: true}, nil
}

func (f *fakeRunner) Launch(ctx context.Context, scheduleID uuid.UUID, skipPreflight bool, attempt int) (*notify.Outcome, error) {
	f.calls++
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &notify.Outcome{Sent: true}, nil
}

func TestPollOnce_CompletesSuccessfulJob(t *testing.T) {
	repo := memory.New()
	runner := &fakeRunner{}
	sched := jobs.NewScheduler(repo, runner, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, jobs.EnqueueJobs(ctx, repo, scheduleID, map[clock.Stage]time.Time{
		clock.StagePreLaunch: time.Now().UTC().Add(-time.Minute),
	}))

	n, err := sched.PollOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateCompleted, rows[0].State)
}

func TestPollOnce_RetriesTransientFailureWithBackoff(t *testing.T) {
	repo := memory.New()
	runner := &fakeRunner{stageErr: engineerr.Transient("test", errors.New("mailplatform down"))}
	sched := jobs.NewScheduler(repo, runner, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, jobs.EnqueueJobs(ctx, repo, scheduleID, map[clock.Stage]time.Time{
		clock.StagePreFlight: time.Now().UTC().Add(-time.Minute),
	}))

	n, err := sched.PollOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateDelayed, rows[0].State)
	assert.True(t, rows[0].FireAt.After(time.Now().UTC()))
}

func TestBackoffFor_ProducesTheDocumented5s10s20sSchedule(t *testing.T) {
	assert.Equal(t, 5*time.Second, jobs.BackoffFor(1))
	assert.Equal(t, 10*time.Second, jobs.BackoffFor(2))
	assert.Equal(t, 20*time.Second, jobs.BackoffFor(3))
}

func TestPollOnce_ThirdRetryReachesThe20sBackoffBeforeDeadLetter(t *testing.T) {
	repo := memory.New()
	runner := &fakeRunner{stageErr: engineerr.Transient("test", errors.New("mailplatform down"))}
	sched := jobs.NewScheduler(repo, runner, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	// Seeded at 2 prior attempts: this poll is the 3rd attempt, which must
	// still retry (with BackoffFor(3) = 20s) rather than dead-letter.
	require.NoError(t, repo.Enqueue(ctx, []*jobs.Job{{
		ScheduleID: scheduleID, Stage: clock.StagePreFlight,
		FireAt: time.Now().UTC().Add(-time.Minute), Attempts: jobs.MaxAttempts - 2,
	}}))

	before := time.Now().UTC()
	_, err := sched.PollOnce(ctx, 10)
	require.NoError(t, err)

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, jobs.StateDelayed, rows[0].State)
	assert.WithinDuration(t, before.Add(20*time.Second), rows[0].FireAt, 2*time.Second)
}

func TestPollOnce_DeadLettersAfterExhaustingRetries(t *testing.T) {
	repo := memory.New()
	runner := &fakeRunner{stageErr: engineerr.Transient("test", errors.New("mailplatform down"))}
	sched := jobs.NewScheduler(repo, runner, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, repo.Enqueue(ctx, []*jobs.Job{{
		ScheduleID: scheduleID, Stage: clock.StagePreFlight,
		FireAt: time.Now().UTC().Add(-time.Minute), Attempts: jobs.MaxAttempts - 1,
	}}))

	_, err := sched.PollOnce(ctx, 10)
	require.NoError(t, err)

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateFailed, rows[0].State)
}

func TestPollOnce_PermanentFailureDeadLettersImmediately(t *testing.T) {
	repo := memory.New()
	runner := &fakeRunner{stageErr: engineerr.Permanent("test", errors.New("bad request"))}
	sched := jobs.NewScheduler(repo, runner, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, jobs.EnqueueJobs(ctx, repo, scheduleID, map[clock.Stage]time.Time{
		clock.StagePreLaunch: time.Now().UTC().Add(-time.Minute),
	}))

	_, err := sched.PollOnce(ctx, 10)
	require.NoError(t, err)

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateFailed, rows[0].State)
}

func TestCancelJobsFor_RemovesPendingJobs(t *testing.T) {
	repo := memory.New()
	sched := jobs.NewScheduler(repo, &fakeRunner{}, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, jobs.EnqueueJobs(ctx, repo, scheduleID, map[clock.Stage]time.Time{
		clock.StagePreLaunch: time.Now().UTC().Add(time.Hour),
	}))
	require.NoError(t, sched.CancelJobsFor(ctx, scheduleID))

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRescheduleWrapup_EnqueuesFromObservedLaunchTime(t *testing.T) {
	repo := memory.New()
	sched := jobs.NewScheduler(repo, &fakeRunner{}, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()
	scheduleID := uuid.New()
	launchedAt := time.Now().UTC()

	require.NoError(t, sched.RescheduleWrapup(ctx, scheduleID, launchedAt, 30*time.Minute))

	rows, err := sched.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.WithinDuration(t, launchedAt.Add(30*time.Minute), rows[0].FireAt, time.Second)
}

func TestScheduler_WorkerRegistrationWrappersDelegateToRepository(t *testing.T) {
	repo := memory.New()
	sched := jobs.NewScheduler(repo, &fakeRunner{}, newRedisClient(t), nil, "worker-1")
	ctx := context.Background()

	require.NoError(t, sched.RegisterWorker(ctx))
	require.NoError(t, sched.Heartbeat(ctx))

	workers, err := sched.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0].WorkerID)
	assert.Equal(t, "running", workers[0].Status)

	require.NoError(t, sched.DeregisterWorker(ctx))
	workers, err = sched.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", workers[0].Status)
}
