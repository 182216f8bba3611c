// Package store defines the persistent data model for campaign schedules,
// their collected metrics, and the append-only notification log, plus the
// Repository contract every backing implementation must satisfy.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
)

// Status is a CampaignSchedule's lifecycle status.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusReady     Status = "READY"
	StatusLaunching Status = "LAUNCHING"
	StatusSent      Status = "SENT"
	StatusCompleted Status = "COMPLETED"
	StatusBlocked   Status = "BLOCKED"
)

// NotificationEntry is the per-stage sub-record within a schedule's
// notification status. Sent flips false→true at most once, never back.
type NotificationEntry struct {
	Sent              bool
	Timestamp         *time.Time
	Status            string
	ExternalMessageID string
}

// NotificationStatus is the fixed-shape record of all five stage entries —
// deliberately not a dynamic map, per the design note against object bags.
type NotificationStatus struct {
	PreLaunch          NotificationEntry
	PreFlight          NotificationEntry
	LaunchWarning      NotificationEntry
	LaunchConfirmation NotificationEntry
	Wrapup             NotificationEntry
}

// Entry returns a pointer to the entry for the given stage, for in-place
// read-modify-write under the caller's per-schedule lock.
func (n *NotificationStatus) Entry(stage clock.Stage) *NotificationEntry {
	switch stage {
	case clock.StagePreLaunch:
		return &n.PreLaunch
	case clock.StagePreFlight:
		return &n.PreFlight
	case clock.StageLaunchWarning:
		return &n.LaunchWarning
	case clock.StageLaunchConfirm:
		return &n.LaunchConfirmation
	case clock.StageWrapup:
		return &n.Wrapup
	default:
		return nil
	}
}

// CampaignSchedule is one row per (campaign, round).
type CampaignSchedule struct {
	ID             uuid.UUID
	OrganizationID string // ambient multi-row shape; no isolation enforced (Non-goal)

	CampaignName string
	RoundNumber  int

	ScheduledDate time.Time // UTC instant on a Tue/Thu at 09:15:00
	ScheduledTime string    // redundant display string, always "09:15"

	ListName       string
	ExternalListID string
	RecipientLo    int64
	RecipientHi    int64
	RecipientCount int64

	Subject            string
	SenderName         string
	SenderEmail        string
	ExternalDraftID    string
	ExternalCampaignID string // empty iff status in {SCHEDULED, READY, BLOCKED}

	Notifications NotificationStatus
	Status        Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecipientRange renders the recipient range as "lo-hi".
func (c *CampaignSchedule) RecipientRange() string {
	return fmt.Sprintf("%d-%d", c.RecipientLo, c.RecipientHi)
}

// CampaignMetrics is one row per successful Wrap-Up metrics collection.
// Immutable once persisted.
type CampaignMetrics struct {
	ID                 uuid.UUID
	ScheduleID         uuid.UUID
	ExternalCampaignID string

	Processed    int64
	Delivered    int64
	Bounced      int64
	HardBounces  int64
	SoftBounces  int64
	Blocked      int64
	Queued       int64
	Opened       int64
	Clicked      int64
	Unsubscribed int64
	Complained   int64

	// Rates are percentages (0-100, e.g. 96.0), not fractions, per §3.
	DeliveryRate   float64
	BounceRate     float64
	HardBounceRate float64
	SoftBounceRate float64
	OpenRate       *float64 // nil iff Delivered == 0
	ClickRate      *float64 // nil iff Delivered == 0

	CollectedAt time.Time
	SendStartAt *time.Time
	SendEndAt   *time.Time
}

// LogStatus is the outcome of one notification attempt.
type LogStatus string

const (
	LogSuccess  LogStatus = "SUCCESS"
	LogFailure  LogStatus = "FAILURE"
	LogRetrying LogStatus = "RETRYING"
)

// NotificationLog is an append-only attempt record, unique on
// (ScheduleID, Stage, Attempt).
type NotificationLog struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Stage      clock.Stage
	Attempt    int

	Status            LogStatus
	ExternalMessageID string
	ErrorMessage      string
	SentAt            time.Time
}
