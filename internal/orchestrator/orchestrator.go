// Package orchestrator implements the Stage Orchestrator component (§4.9):
// a stateless idempotent entry point per stage, plus the composite Launch
// operation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/lifecycle"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// ErrNotReady is returned when Launch is attempted outside status READY
// without skipPreflight.
var ErrNotReady = errors.New("orchestrator: schedule is not in READY status")

// Orchestrator holds no persistent state of its own; every call re-derives
// behavior from the schedule row.
type Orchestrator struct {
	repo     store.Repository
	notifier *notify.Notifier
	mail     mailplatform.Client
}

// New builds an Orchestrator from its collaborators.
func New(repo store.Repository, notifier *notify.Notifier, mail mailplatform.Client) *Orchestrator {
	return &Orchestrator{repo: repo, notifier: notifier, mail: mail}
}

// RunStage is the idempotent top-level entry for any non-launch stage: if
// the stage's notification entry already has sent=true, it returns success
// without side effects.
func (o *Orchestrator) RunStage(ctx context.Context, scheduleID uuid.UUID, stage clock.Stage, attempt int) (*notify.Outcome, error) {
	const op = "orchestrator.RunStage"

	schedule, err := o.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	entry := schedule.Notifications.Entry(stage)
	if entry == nil {
		return nil, engineerr.Input(op, fmt.Errorf("unknown stage %s", stage))
	}
	if entry.Sent {
		return &notify.Outcome{Sent: true}, nil
	}

	switch stage {
	case clock.StagePreLaunch:
		return o.notifier.RunPreLaunch(ctx, scheduleID, attempt)
	case clock.StagePreFlight:
		return o.notifier.RunPreFlight(ctx, scheduleID, attempt)
	case clock.StageLaunchWarning:
		return o.notifier.RunLaunchWarning(ctx, scheduleID, attempt)
	case clock.StageWrapup:
		return o.notifier.RunWrapup(ctx, scheduleID, attempt)
	case clock.StageLaunchConfirm:
		return nil, engineerr.Input(op, errors.New("launch confirmation is only reached through Launch"))
	default:
		return nil, engineerr.Input(op, fmt.Errorf("unknown stage %s", stage))
	}
}

// Launch implements §4.9's composite launch operation.
func (o *Orchestrator) Launch(ctx context.Context, scheduleID uuid.UUID, skipPreflight bool, attempt int) (*notify.Outcome, error) {
	const op = "orchestrator.Launch"

	schedule, err := o.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Notifications.LaunchConfirmation.Sent {
		return &notify.Outcome{Sent: true}, nil
	}

	if schedule.Status != store.StatusReady && !skipPreflight {
		return nil, engineerr.NotReady(op, fmt.Errorf("%w: status=%s", ErrNotReady, schedule.Status))
	}

	// skipPreflight lets a SCHEDULED round launch without a pre-flight pass;
	// any other starting status must be a valid edge into LAUNCHING.
	if !(skipPreflight && schedule.Status == store.StatusScheduled) {
		if err := lifecycle.Validate(op, schedule.Status, store.StatusLaunching); err != nil {
			return nil, err
		}
	}
	if err := o.repo.UpdateStatus(ctx, scheduleID, store.StatusLaunching); err != nil {
		return nil, err
	}

	sendResult, sendErr := o.mail.SendCampaignNow(ctx, schedule.ExternalDraftID)
	if sendErr != nil {
		if revertErr := o.repo.UpdateStatus(ctx, scheduleID, store.StatusScheduled); revertErr != nil {
			return nil, revertErr
		}
		logErr := o.repo.AppendLog(ctx, &store.NotificationLog{
			ScheduleID: scheduleID, Stage: clock.StageLaunchConfirm, Attempt: attempt,
			Status: store.LogFailure, ErrorMessage: sendErr.Error(), SentAt: time.Now().UTC(),
		})
		if logErr != nil && !errors.Is(logErr, store.ErrDuplicateLogAttempt) {
			return nil, logErr
		}
		return &notify.Outcome{Sent: false, Retryable: engineerr.Retryable(sendErr)}, sendErr
	}

	if err := o.repo.SetExternalCampaignID(ctx, scheduleID, sendResult.MessageID); err != nil {
		return nil, err
	}
	if err := lifecycle.Validate(op, store.StatusLaunching, store.StatusSent); err != nil {
		return nil, err
	}
	if err := o.repo.UpdateStatus(ctx, scheduleID, store.StatusSent); err != nil {
		return nil, err
	}

	return o.notifier.RunLaunchConfirmation(ctx, scheduleID, attempt)
}

// Cancel transitions a schedule to BLOCKED. Pending jobs are cancelled by
// the caller (the job scheduler owns job lifecycle, §4.10).
func (o *Orchestrator) Cancel(ctx context.Context, scheduleID uuid.UUID) error {
	const op = "orchestrator.Cancel"
	schedule, err := o.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if err := lifecycle.Validate(op, schedule.Status, store.StatusBlocked); err != nil {
		return err
	}
	return o.repo.UpdateStatus(ctx, scheduleID, store.StatusBlocked)
}
