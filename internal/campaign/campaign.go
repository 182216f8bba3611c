// Package campaign implements campaign creation: the composition of the
// round-scheduler (§4.2), the persistence layer (§4.3), and the delayed-job
// scheduler (§4.10) into the control surface's single "create campaign"
// operation.
package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/roundsched"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// CreateRequest is the control surface's "create campaign" input (§6).
type CreateRequest struct {
	CampaignName    string
	ListIDPrefix    string
	Subject         string
	SenderName      string
	SenderEmail     string
	TotalRecipients int64
	ExternalListIDs [3]string
	ExternalDraftID string
	StartDate       *time.Time // optional; defaults to now
}

// Creator composes the round-scheduler and job scheduler to create all
// three rounds of a campaign in one call.
type Creator struct {
	repo      store.Repository
	scheduler *jobs.Scheduler
	offsets   clock.StageOffsets
}

// NewCreator builds a Creator.
func NewCreator(repo store.Repository, scheduler *jobs.Scheduler, offsets clock.StageOffsets) *Creator {
	return &Creator{repo: repo, scheduler: scheduler, offsets: offsets}
}

// Create partitions the recipients into three rounds (§4.2), persists all
// three schedules atomically (§4.3), and enqueues each round's five stage
// jobs (§4.10).
func (c *Creator) Create(ctx context.Context, req CreateRequest) ([]*store.CampaignSchedule, error) {
	const op = "campaign.Create"

	if req.CampaignName == "" || req.Subject == "" || req.SenderEmail == "" {
		return nil, engineerr.Input(op, fmt.Errorf("campaignName, subject, and senderEmail are required"))
	}
	if req.TotalRecipients <= 0 {
		return nil, engineerr.Input(op, roundsched.ErrInvalidBatchInput)
	}

	start := time.Now().UTC()
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}

	slots, err := roundsched.Partition(req.TotalRecipients, start)
	if err != nil {
		return nil, engineerr.Input(op, err)
	}

	schedules := make([]*store.CampaignSchedule, 0, len(slots))
	for i, slot := range slots {
		schedules = append(schedules, &store.CampaignSchedule{
			CampaignName:    req.CampaignName,
			RoundNumber:     slot.Round,
			ScheduledDate:   slot.ScheduledAt,
			ScheduledTime:   fmt.Sprintf("%02d:%02d", clock.SlotHour, clock.SlotMinute),
			ListName:        fmt.Sprintf("%s-round-%d", req.ListIDPrefix, slot.Round),
			ExternalListID:  req.ExternalListIDs[i],
			RecipientLo:     slot.RangeLo,
			RecipientHi:     slot.RangeHi,
			RecipientCount:  slot.Count,
			Subject:         req.Subject,
			SenderName:      req.SenderName,
			SenderEmail:     req.SenderEmail,
			ExternalDraftID: req.ExternalDraftID,
			Status:          store.StatusScheduled,
		})
	}

	if err := c.repo.CreateSchedules(ctx, schedules); err != nil {
		return nil, err
	}

	for _, sched := range schedules {
		fireTimes := make(map[clock.Stage]time.Time, len(clock.Stages))
		for _, stage := range clock.Stages {
			fireTimes[stage] = clock.TriggerTime(sched.ScheduledDate, stage, c.offsets)
		}
		if err := c.scheduler.EnqueueForSchedule(ctx, sched.ID, fireTimes); err != nil {
			return nil, err
		}
	}

	return schedules, nil
}
