// Package notify implements the Notifier component (§4.8): five stage
// entry points that load a schedule, invoke the relevant data collaborator,
// render a payload, post it to chat, and atomically persist the outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/chat"
	"github.com/ignite/campaign-lifecycle-engine/internal/lifecycle"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

// Outcome describes whether a stage notification attempt succeeded, and if
// not, whether the caller should retry.
type Outcome struct {
	Sent            bool
	Retryable       bool
	PreFlightResult *verify.PreFlightResult
	WrapupResult    *metricscollector.Result
}

// Notifier composes the store, chat poster, and the data collaborators
// (verify for preflight, metricscollector for wrapup) behind the five
// stage entry points of §4.8.
type Notifier struct {
	repo      store.Repository
	poster    chat.Poster
	verifier  *verify.Verifier
	collector *metricscollector.Collector
	channelID string
}

// NewNotifier builds a Notifier from its collaborators.
func NewNotifier(repo store.Repository, poster chat.Poster, verifier *verify.Verifier, collector *metricscollector.Collector, channelID string) *Notifier {
	return &Notifier{repo: repo, poster: poster, verifier: verifier, collector: collector, channelID: channelID}
}

// RunPreLaunch fires the T-21h observational notification. No state
// transition; the stage flips sent=true whenever the schedule is non-terminal.
// attempt is the 1-based attempt number, tracked by the job scheduler (§4.10).
func (n *Notifier) RunPreLaunch(ctx context.Context, scheduleID uuid.UUID, attempt int) (*Outcome, error) {
	schedule, err := n.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	payload := renderPreLaunch(schedule)
	return n.postAndFinalize(ctx, schedule, clock.StagePreLaunch, attempt, payload, nil)
}

// RunPreFlight runs the verify pipeline, notifies with the result, and
// transitions the schedule to READY or BLOCKED.
func (n *Notifier) RunPreFlight(ctx context.Context, scheduleID uuid.UUID, attempt int) (*Outcome, error) {
	schedule, err := n.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	// Pre-Flight runs before this round has launched, so Comparison runs
	// "previous vs previous-previous" instead (§9): round N-1 and N-2.
	var previousMetrics, priorMetrics *store.CampaignMetrics
	if schedule.RoundNumber > 1 {
		prev, err := n.repo.GetLatestMetrics(ctx, schedule.CampaignName, schedule.RoundNumber-1)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		previousMetrics = prev
	}
	if schedule.RoundNumber > 2 {
		prior, err := n.repo.GetLatestMetrics(ctx, schedule.CampaignName, schedule.RoundNumber-2)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		priorMetrics = prior
	}

	result, err := n.verifier.Verify(ctx, schedule, previousMetrics, priorMetrics)
	if err != nil {
		return &Outcome{Retryable: engineerr.Retryable(err)}, err
	}

	payload := renderPreFlight(schedule, result)
	targetStatus := store.StatusReady
	if result.Status == verify.StatusBlocked {
		targetStatus = store.StatusBlocked
	}

	outcome, err := n.postAndFinalize(ctx, schedule, clock.StagePreFlight, attempt, payload, &targetStatus)
	if outcome != nil {
		outcome.PreFlightResult = result
	}
	return outcome, err
}

// RunLaunchWarning runs a quick-verify and fires the T-15m notification.
// No state transition of its own.
func (n *Notifier) RunLaunchWarning(ctx context.Context, scheduleID uuid.UUID, attempt int) (*Outcome, error) {
	schedule, err := n.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	quick, err := n.verifier.QuickVerify(ctx, schedule)
	if err != nil {
		return &Outcome{Retryable: engineerr.Retryable(err)}, err
	}
	payload := renderLaunchWarning(schedule, quick)
	outcome, err := n.postAndFinalize(ctx, schedule, clock.StageLaunchWarning, attempt, payload, nil)
	if outcome != nil {
		outcome.PreFlightResult = quick
	}
	return outcome, err
}

// RunLaunchConfirmation fires the post-launch confirmation. Called by the
// orchestrator after it has already transitioned the schedule to SENT.
func (n *Notifier) RunLaunchConfirmation(ctx context.Context, scheduleID uuid.UUID, attempt int) (*Outcome, error) {
	schedule, err := n.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	payload := renderLaunchConfirmation(schedule)
	return n.postAndFinalize(ctx, schedule, clock.StageLaunchConfirm, attempt, payload, nil)
}

// RunWrapup collects final metrics, fires the wrap-up report, and
// transitions the schedule to COMPLETED.
func (n *Notifier) RunWrapup(ctx context.Context, scheduleID uuid.UUID, attempt int) (*Outcome, error) {
	schedule, err := n.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	collected, err := n.collector.Collect(ctx, scheduleID)
	if err != nil {
		return &Outcome{Retryable: engineerr.Retryable(err)}, err
	}

	var aiSummary *verify.AIAnalysis
	if collected.AIAnalysis != nil && collected.AIAnalysis.Report != nil {
		aiSummary = &verify.AIAnalysis{
			Recommendations: collected.AIAnalysis.Report.Recommendations,
			Insights:        collected.AIAnalysis.Report.Insights,
			Warnings:        collected.AIAnalysis.Report.Warnings,
		}
	}

	payload := renderWrapup(schedule, collected.Persisted, aiSummary)
	completed := store.StatusCompleted
	outcome, err := n.postAndFinalize(ctx, schedule, clock.StageWrapup, attempt, payload, &completed)
	if outcome != nil {
		outcome.WrapupResult = collected
	}
	return outcome, err
}

// postAndFinalize implements steps 3–6 of §4.8: render already done by the
// caller, validate the transition the stage is about to commit to, post to
// chat, then atomically log + flip the notification entry, then (if
// targetStatus is set) apply the state transition.
func (n *Notifier) postAndFinalize(ctx context.Context, schedule *store.CampaignSchedule, stage clock.Stage, attempt int, payload Payload, targetStatus *store.Status) (*Outcome, error) {
	const op = "notify.postAndFinalize"

	// Validate the notification-bitmap/state-transition invariant before
	// committing anything: a post+log+flip must never be recorded for a
	// transition that turns out to be illegal, since orchestrator.RunStage
	// treats entry.Sent as its idempotency guard and a bogus "sent" record
	// would strand the schedule permanently.
	if !lifecycle.CanFlipStage(stage, schedule.Status) {
		return nil, engineerr.State(op, fmt.Errorf("lifecycle: %s cannot flip to sent from status %s", stage, schedule.Status))
	}
	if targetStatus != nil {
		if err := lifecycle.Validate(op, schedule.Status, *targetStatus); err != nil {
			return nil, err
		}
	}

	result, postErr := n.poster.PostMessage(ctx, n.channelID, payload.Blocks, payload.FallbackText)
	if postErr != nil {
		logErr := n.repo.AppendLog(ctx, &store.NotificationLog{
			ScheduleID: schedule.ID, Stage: stage, Attempt: attempt,
			Status: store.LogFailure, ErrorMessage: postErr.Error(), SentAt: time.Now().UTC(),
		})
		if logErr != nil && !errors.Is(logErr, store.ErrDuplicateLogAttempt) {
			return nil, logErr
		}
		return &Outcome{Sent: false, Retryable: engineerr.Retryable(postErr)}, postErr
	}

	if err := n.repo.AppendLog(ctx, &store.NotificationLog{
		ScheduleID: schedule.ID, Stage: stage, Attempt: attempt,
		Status: store.LogSuccess, ExternalMessageID: result.MessageID, SentAt: time.Now().UTC(),
	}); err != nil && !errors.Is(err, store.ErrDuplicateLogAttempt) {
		return nil, err
	}

	now := time.Now().UTC()
	if err := n.repo.UpdateNotificationEntry(ctx, schedule.ID, stage, store.NotificationEntry{
		Sent: true, Timestamp: &now, Status: string(store.LogSuccess), ExternalMessageID: result.MessageID,
	}); err != nil {
		return nil, err
	}

	if targetStatus != nil {
		if err := n.repo.UpdateStatus(ctx, schedule.ID, *targetStatus); err != nil {
			return nil, err
		}
	}

	return &Outcome{Sent: true}, nil
}
