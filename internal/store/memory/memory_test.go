package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/store/memory"
)

func newSchedule(campaign string, round int) *store.CampaignSchedule {
	return &store.CampaignSchedule{
		CampaignName:   campaign,
		RoundNumber:    round,
		ScheduledDate:  time.Now().UTC(),
		ScheduledTime:  "09:15",
		RecipientCount: 100,
		Status:         store.StatusScheduled,
	}
}

func TestCreateSchedules_RejectsDuplicateRound(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.CreateSchedules(ctx, []*store.CampaignSchedule{newSchedule("Q4", 1)}))
	err := s.CreateSchedules(ctx, []*store.CampaignSchedule{newSchedule("Q4", 1)})
	assert.ErrorIs(t, err, store.ErrDuplicateRound)
}

func TestGetByCampaignName_OrderedByRound(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.CreateSchedules(ctx, []*store.CampaignSchedule{
		newSchedule("Q4", 3), newSchedule("Q4", 1), newSchedule("Q4", 2),
	}))

	got, err := s.GetByCampaignName(ctx, "Q4")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].RoundNumber)
	assert.Equal(t, 2, got[1].RoundNumber)
	assert.Equal(t, 3, got[2].RoundNumber)
}

func TestUpdateNotificationEntry_Idempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sched := newSchedule("Q4", 1)
	require.NoError(t, s.CreateSchedules(ctx, []*store.CampaignSchedule{sched}))

	now := time.Now().UTC()
	err := s.UpdateNotificationEntry(ctx, sched.ID, clock.StagePreLaunch, store.NotificationEntry{
		Sent: true, Timestamp: &now, Status: "SUCCESS", ExternalMessageID: "msg-1",
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, got.Notifications.PreLaunch.Sent)
	assert.Equal(t, "msg-1", got.Notifications.PreLaunch.ExternalMessageID)
	assert.False(t, got.Notifications.PreFlight.Sent)
}

func TestAppendLog_RejectsDuplicateAttempt(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id := uuid.New()

	log := &store.NotificationLog{ScheduleID: id, Stage: clock.StageWrapup, Attempt: 1, Status: store.LogSuccess, SentAt: time.Now()}
	require.NoError(t, s.AppendLog(ctx, log))

	dup := &store.NotificationLog{ScheduleID: id, Stage: clock.StageWrapup, Attempt: 1, Status: store.LogFailure, SentAt: time.Now()}
	assert.ErrorIs(t, s.AppendLog(ctx, dup), store.ErrDuplicateLogAttempt)
}

func TestAppendMetrics_OnlyOncePerSchedule(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.AppendMetrics(ctx, &store.CampaignMetrics{ScheduleID: id, Processed: 10}))
	err := s.AppendMetrics(ctx, &store.CampaignMetrics{ScheduleID: id, Processed: 20})
	assert.ErrorIs(t, err, store.ErrMetricsAlreadyExists)
}

func TestGetByID_NotFound(t *testing.T) {
	s := memory.New()
	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
