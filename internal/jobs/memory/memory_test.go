package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs/memory"
)

func TestClaimDue_OnlyClaimsDueJobsAndMovesToActive(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, s.Enqueue(ctx, []*jobs.Job{
		{ScheduleID: scheduleID, Stage: clock.StagePreLaunch, FireAt: time.Now().UTC().Add(-time.Minute)},
		{ScheduleID: scheduleID, Stage: clock.StagePreFlight, FireAt: time.Now().UTC().Add(time.Hour)},
	}))

	claimed, err := s.ClaimDue(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, clock.StagePreLaunch, claimed[0].Stage)
	assert.Equal(t, jobs.StateActive, claimed[0].State)
	assert.Equal(t, "worker-1", claimed[0].ClaimedBy)
}

func TestClaimDue_RespectsLimit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	scheduleID := uuid.New()

	require.NoError(t, s.Enqueue(ctx, []*jobs.Job{
		{ScheduleID: scheduleID, Stage: clock.StagePreLaunch, FireAt: time.Now().UTC().Add(-time.Hour)},
		{ScheduleID: scheduleID, Stage: clock.StagePreFlight, FireAt: time.Now().UTC().Add(-time.Minute)},
	}))

	claimed, err := s.ClaimDue(ctx, "worker-1", 1)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestMarkRetry_MovesToDelayedAndIncrementsAttempts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	scheduleID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, []*jobs.Job{
		{ScheduleID: scheduleID, Stage: clock.StagePreLaunch, FireAt: time.Now().UTC().Add(-time.Minute)},
	}))
	claimed, err := s.ClaimDue(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	next := time.Now().UTC().Add(5 * time.Second)
	require.NoError(t, s.MarkRetry(ctx, claimed[0].ID, "boom", next))

	rows, err := s.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateDelayed, rows[0].State)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Equal(t, "boom", rows[0].LastError)
}

func TestCancelFor_RemovesOnlyPendingAndDelayedJobs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	scheduleID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, []*jobs.Job{
		{ScheduleID: scheduleID, Stage: clock.StagePreLaunch, FireAt: time.Now().UTC().Add(-time.Minute)},
		{ScheduleID: scheduleID, Stage: clock.StagePreFlight, FireAt: time.Now().UTC().Add(time.Hour)},
	}))
	claimed, err := s.ClaimDue(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID))

	require.NoError(t, s.CancelFor(ctx, scheduleID))

	rows, err := s.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, jobs.StateCompleted, rows[0].State)
}

func TestReclaimStale_RequeuesJobsClaimedPastDeadline(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	scheduleID := uuid.New()
	require.NoError(t, s.Enqueue(ctx, []*jobs.Job{
		{ScheduleID: scheduleID, Stage: clock.StagePreLaunch, FireAt: time.Now().UTC().Add(-time.Minute)},
	}))
	claimed, err := s.ClaimDue(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := s.ReclaimStale(ctx, -time.Second) // any claim is "stale" with a negative threshold
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err := s.StatusOf(ctx, scheduleID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatePending, rows[0].State)
	assert.Empty(t, rows[0].ClaimedBy)
}

func TestRegisterWorker_ThenHeartbeatThenDeregister(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.RegisterWorker(ctx, "worker-1"))
	workers, err := s.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0].WorkerID)
	assert.Equal(t, "running", workers[0].Status)

	require.NoError(t, s.Heartbeat(ctx, "worker-1"))
	workers, err = s.ListWorkers(ctx)
	require.NoError(t, err)
	assert.True(t, workers[0].LastHeartbeatAt.After(workers[0].StartedAt) || workers[0].LastHeartbeatAt.Equal(workers[0].StartedAt))

	require.NoError(t, s.DeregisterWorker(ctx, "worker-1"))
	workers, err = s.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "stopped", workers[0].Status)
}

func TestHeartbeat_UnknownWorkerIsANoOp(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Heartbeat(ctx, "ghost"))
	workers, err := s.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)
}
