// Package lifecycle implements the per-round state machine: the allowed
// status transitions of §4.4 and the notification-bitmap rule that ties a
// stage's "sent" flip to the transition it authorizes.
package lifecycle

import (
	"fmt"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/engineerr"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// Transition names a single edge in the state-machine DAG.
type Transition struct {
	From store.Status
	To   store.Status
}

// allowed is the complete set of valid transitions from §4.4. Anything not
// listed here is forbidden.
var allowed = map[Transition]bool{
	{store.StatusScheduled, store.StatusReady}:    true,
	{store.StatusScheduled, store.StatusBlocked}:  true,
	{store.StatusReady, store.StatusBlocked}:      true,
	{store.StatusReady, store.StatusLaunching}:    true,
	{store.StatusLaunching, store.StatusSent}:     true,
	{store.StatusLaunching, store.StatusScheduled}: true,
	{store.StatusSent, store.StatusCompleted}:     true,
	{store.StatusBlocked, store.StatusScheduled}:  true,
}

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(status store.Status) bool {
	return status == store.StatusCompleted
}

// CanTransition reports whether from→to is a valid edge in the DAG.
func CanTransition(from, to store.Status) bool {
	return allowed[Transition{from, to}]
}

// Validate checks a (from, to) move against the DAG and returns an
// engineerr.State error if from is terminal or the edge is forbidden — surfaced as a
// logic-bug/race indicator per §7, never silently ignored.
func Validate(op string, from, to store.Status) error {
	if IsTerminal(from) {
		return engineerr.State(op, fmt.Errorf("lifecycle: %s is terminal, cannot transition to %s", from, to))
	}
	if !CanTransition(from, to) {
		return engineerr.State(op, fmt.Errorf("lifecycle: forbidden transition %s -> %s", from, to))
	}
	return nil
}

// stageTransition names which (from,to) transition a given stage's
// notification entry is authorized to co-occur with. Pre-Launch and Launch
// Warning observe the schedule without driving status themselves, so they
// have no associated transition — their sent flip only requires the
// schedule not be terminal.
var stageTransition = map[clock.Stage]*Transition{
	clock.StagePreFlight:        nil, // resolved dynamically: ready or blocked (see Orchestrator)
	clock.StageLaunchWarning:    nil,
	clock.StageLaunchConfirm:    {store.StatusLaunching, store.StatusSent},
	clock.StageWrapup:           {store.StatusSent, store.StatusCompleted},
}

// CanFlipStage reports whether a stage's notification entry may flip to
// sent=true given the schedule's current status, per the notification
// bitmap rule of §4.4: a flip is legal only when the transition that stage
// represents is valid from the current status, or the stage has no status
// transition of its own (Pre-Launch, Launch Warning) and the schedule is
// simply non-terminal.
func CanFlipStage(stage clock.Stage, current store.Status) bool {
	if IsTerminal(current) {
		return false
	}
	t, hasTransition := stageTransition[stage]
	if !hasTransition || t == nil {
		return true
	}
	return CanTransition(current, t.To) || current == t.To
}
