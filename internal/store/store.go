package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
)

// Sentinel errors for the persistence layer.
var (
	ErrNotFound             = errors.New("store: schedule not found")
	ErrDuplicateRound       = errors.New("store: (campaignName, roundNumber) already exists")
	ErrDuplicateLogAttempt  = errors.New("store: (scheduleId, stage, attempt) already exists")
	ErrMetricsAlreadyExists = errors.New("store: metrics already recorded for this schedule")
)

// Repository is the typed persistence contract for §3's three entities.
// Implementations must enforce the uniqueness constraints of §4.3 at write
// time and must serialize all notification-entry read-modify-writes and
// status transitions per schedule id (§5).
type Repository interface {
	// CreateSchedules atomically persists all three rounds of a campaign.
	CreateSchedules(ctx context.Context, schedules []*CampaignSchedule) error

	// GetByID fetches a single schedule. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*CampaignSchedule, error)

	// GetByCampaignName fetches all rounds for a campaign, ordered by round number.
	GetByCampaignName(ctx context.Context, campaignName string) ([]*CampaignSchedule, error)

	// UpdateStatus applies a state-machine transition. Callers are responsible
	// for validating the transition against §4.4 before calling.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// SetExternalCampaignID sets the external campaign id, populated on launch.
	SetExternalCampaignID(ctx context.Context, id uuid.UUID, externalCampaignID string) error

	// UpdateNotificationEntry performs a serialized read-modify-write of one
	// stage entry within the schedule's notification record.
	UpdateNotificationEntry(ctx context.Context, id uuid.UUID, stage clock.Stage, entry NotificationEntry) error

	// AppendMetrics persists an immutable metrics row. Returns
	// ErrMetricsAlreadyExists if one is already recorded for this schedule.
	AppendMetrics(ctx context.Context, m *CampaignMetrics) error

	// GetLatestMetrics fetches the most recent metrics row for
	// (campaignName, roundNumber), used for round-over-round deltas.
	GetLatestMetrics(ctx context.Context, campaignName string, roundNumber int) (*CampaignMetrics, error)

	// AppendLog appends a NotificationLog row. Returns ErrDuplicateLogAttempt
	// if (scheduleId, stage, attempt) already exists.
	AppendLog(ctx context.Context, l *NotificationLog) error

	// QueryFailedLogsNeedingRetry returns the most recent FAILURE log rows
	// whose schedules have not yet exhausted their retry budget.
	QueryFailedLogsNeedingRetry(ctx context.Context) ([]*NotificationLog, error)
}
