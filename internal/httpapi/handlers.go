package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/campaign"
	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// manualAttempt is the attempt number recorded for operator-triggered
// (as opposed to job-scheduler-triggered) stage runs. A failed manual run is
// reported to the caller and not retried; the durable job queue tracks its
// own attempt count for the jobs it runs.
const manualAttempt = 1

type handlers struct {
	repo      store.Repository
	creator   *campaign.Creator
	scheduler *jobs.Scheduler
	runner    *orchestrator.Orchestrator
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// handleListWorkers reports every registered job-runner's registration and
// heartbeat state, for operator inspection alongside per-schedule job status.
func (h *handlers) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.scheduler.ListWorkers(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, workers)
}

// createCampaignRequest mirrors campaign.CreateRequest over the wire.
type createCampaignRequest struct {
	CampaignName    string     `json:"campaignName"`
	ListIDPrefix    string     `json:"listIdPrefix"`
	Subject         string     `json:"subject"`
	SenderName      string     `json:"senderName"`
	SenderEmail     string     `json:"senderEmail"`
	TotalRecipients int64      `json:"totalRecipients"`
	ExternalListIDs [3]string  `json:"externalListIds"`
	ExternalDraftID string     `json:"externalDraftId"`
	StartDate       *time.Time `json:"startDate"`
}

func (h *handlers) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	schedules, err := h.creator.Create(r.Context(), campaign.CreateRequest{
		CampaignName:    req.CampaignName,
		ListIDPrefix:    req.ListIDPrefix,
		Subject:         req.Subject,
		SenderName:      req.SenderName,
		SenderEmail:     req.SenderEmail,
		TotalRecipients: req.TotalRecipients,
		ExternalListIDs: req.ExternalListIDs,
		ExternalDraftID: req.ExternalDraftID,
		StartDate:       req.StartDate,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.Created(w, schedules)
}

func (h *handlers) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	campaignName := chi.URLParam(r, "campaignName")
	schedules, err := h.repo.GetByCampaignName(r.Context(), campaignName)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if schedules == nil {
		schedules = []*store.CampaignSchedule{}
	}
	httputil.OK(w, schedules)
}

func (h *handlers) scheduleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		httputil.BadRequest(w, "invalid scheduleID: "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) handleRunPreFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	lock, err := h.scheduler.LockSchedule(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer lock.Release(r.Context())

	outcome, err := h.runner.RunStage(r.Context(), id, clock.StagePreFlight, manualAttempt)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, outcome)
}

type launchRequest struct {
	SkipPreflight bool `json:"skipPreflight"`
}

func (h *handlers) handleLaunch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	var req launchRequest
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}

	lock, err := h.scheduler.LockSchedule(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer lock.Release(r.Context())

	outcome, err := h.runner.Launch(r.Context(), id, req.SkipPreflight, manualAttempt)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if outcome.Sent {
		schedule, getErr := h.repo.GetByID(r.Context(), id)
		if getErr == nil && schedule.Notifications.LaunchConfirmation.Timestamp != nil {
			delay := time.Duration(30) * time.Minute
			_ = h.scheduler.RescheduleWrapup(r.Context(), id, *schedule.Notifications.LaunchConfirmation.Timestamp, delay)
		}
	}

	httputil.OK(w, outcome)
}

func (h *handlers) handleRunWrapup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	lock, err := h.scheduler.LockSchedule(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer lock.Release(r.Context())

	outcome, err := h.runner.RunStage(r.Context(), id, clock.StageWrapup, manualAttempt)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, outcome)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}

	if err := h.runner.Cancel(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.scheduler.CancelJobsFor(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "cancelled", "reason": req.Reason})
}

func (h *handlers) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	views, err := h.scheduler.StatusOf(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, views)
}

type rescheduleRequest struct {
	NewLaunchT time.Time `json:"newLaunchT"`
}

func (h *handlers) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.NewLaunchT.IsZero() {
		httputil.BadRequest(w, "newLaunchT is required")
		return
	}

	offsets := clock.DefaultStageOffsets()
	fireTimes := make(map[clock.Stage]time.Time, len(clock.Stages))
	for _, stage := range clock.Stages {
		fireTimes[stage] = clock.TriggerTime(req.NewLaunchT.UTC(), stage, offsets)
	}
	if err := h.scheduler.RescheduleJobsFor(r.Context(), id, fireTimes); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "rescheduled"})
}

// writeEngineError maps an engineerr.Kind to the exit-code-equivalent HTTP
// status from §4.11: 400 input, 409 not-ready/state, 502 external.
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}

	kind, ok := engineerr.KindOf(err)
	if !ok {
		httputil.InternalError(w, err)
		return
	}
	switch kind {
	case engineerr.KindInput:
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case engineerr.KindNotReady, engineerr.KindState:
		httputil.Error(w, http.StatusConflict, err.Error())
	case engineerr.KindTransientExternal, engineerr.KindPermanentExternal, engineerr.KindAgentSchema, engineerr.KindBudgetExceeded:
		httputil.Error(w, http.StatusBadGateway, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
