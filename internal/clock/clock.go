// Package clock computes calendar slot placement and stage trigger times.
// The clock is an injected collaborator (never a package-level mutable
// global): production wires RealClock, tests wire a fixed-instant fake.
package clock

import (
	"errors"
	"time"
)

// ErrClockInvalid is returned when the input instant is not valid (zero value).
var ErrClockInvalid = errors.New("clock: invalid instant")

// SlotHour and SlotMinute are the fixed UTC time-of-day for eligible slots: 09:15:00.
const (
	SlotHour   = 9
	SlotMinute = 15
)

// Clock is an injected time source.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time, truncated to UTC.
type RealClock struct{}

// Now returns time.Now() in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a test clock that always returns the same instant.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }

// Stage identifies one of the five lifecycle stages.
type Stage int

const (
	StagePreLaunch Stage = iota
	StagePreFlight
	StageLaunchWarning
	StageLaunchConfirm
	StageWrapup
)

var stageNames = map[Stage]string{
	StagePreLaunch:     "prelaunch",
	StagePreFlight:     "preflight",
	StageLaunchWarning: "launch_warning",
	StageLaunchConfirm: "launch_confirmation",
	StageWrapup:        "wrapup",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Stages lists all five stages in chronological order.
var Stages = []Stage{StagePreLaunch, StagePreFlight, StageLaunchWarning, StageLaunchConfirm, StageWrapup}

// StageOffsets holds the duration each stage fires relative to launch T.
// PreLaunch/PreFlight/LaunchWarning are "before launch" durations (subtracted);
// Wrapup is an "after launch" duration (added); LaunchConfirm has no offset.
type StageOffsets struct {
	PreLaunch     time.Duration
	PreFlight     time.Duration
	LaunchWarning time.Duration
	Wrapup        time.Duration
}

// DefaultStageOffsets returns the offsets from §1: T-21h, T-3h15m, T-15m, T+0, T+30m.
func DefaultStageOffsets() StageOffsets {
	return StageOffsets{
		PreLaunch:     21 * time.Hour,
		PreFlight:     3*time.Hour + 15*time.Minute,
		LaunchWarning: 15 * time.Minute,
		Wrapup:        30 * time.Minute,
	}
}

// NextEligibleSlot returns the earliest instant >= from whose UTC weekday is
// Tuesday or Thursday and whose UTC time-of-day is 09:15:00. If from already
// sits on an eligible day at or before 09:15:00, that day's 09:15:00 is
// returned; otherwise the search advances day by day.
func NextEligibleSlot(from time.Time) (time.Time, error) {
	if from.IsZero() {
		return time.Time{}, ErrClockInvalid
	}
	from = from.UTC()

	candidate := time.Date(from.Year(), from.Month(), from.Day(), SlotHour, SlotMinute, 0, 0, time.UTC)
	if candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for !isEligibleWeekday(candidate.Weekday()) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func isEligibleWeekday(d time.Weekday) bool {
	return d == time.Tuesday || d == time.Thursday
}

// TriggerTime returns the instant at which the given stage fires, relative
// to launchT, applying the configured offsets exactly (§1).
func TriggerTime(launchT time.Time, stage Stage, offsets StageOffsets) time.Time {
	switch stage {
	case StagePreLaunch:
		return launchT.Add(-offsets.PreLaunch)
	case StagePreFlight:
		return launchT.Add(-offsets.PreFlight)
	case StageLaunchWarning:
		return launchT.Add(-offsets.LaunchWarning)
	case StageLaunchConfirm:
		return launchT
	case StageWrapup:
		return launchT.Add(offsets.Wrapup)
	default:
		return launchT
	}
}
