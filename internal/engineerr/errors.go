// Package engineerr defines the typed error taxonomy shared by every
// component of the campaign lifecycle engine. Each kind maps to a failure
// category from the error handling design, not a Go type per error site —
// callers distinguish categories with Is/Kind, not type assertions.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category.
type Kind int

const (
	// KindInput marks invalid caller input. Surfaced to the caller, never retried.
	KindInput Kind = iota
	// KindNotReady marks a launch attempted without satisfying pre-flight.
	KindNotReady
	// KindTransientExternal marks a retryable failure from an external collaborator or the store.
	KindTransientExternal
	// KindPermanentExternal marks a non-retryable 4xx/schema-mismatch failure.
	KindPermanentExternal
	// KindState marks a forbidden state-machine transition.
	KindState
	// KindAgentSchema marks an LLM response that failed structural validation.
	KindAgentSchema
	// KindBudgetExceeded marks an agent or stage deadline overrun.
	KindBudgetExceeded
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotReady:
		return "not_ready"
	case KindTransientExternal:
		return "transient_external"
	case KindPermanentExternal:
		return "permanent_external"
	case KindState:
		return "state"
	case KindAgentSchema:
		return "agent_schema"
	case KindBudgetExceeded:
		return "budget_exceeded"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried through the engine. Op names the
// operation that failed (e.g. "orchestrator.run.launch"); Err is the
// underlying cause, preserved for errors.Is/errors.As via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Input wraps err as an InputError.
func Input(op string, err error) error { return wrap(KindInput, op, err) }

// NotReady wraps err as a NotReadyError.
func NotReady(op string, err error) error { return wrap(KindNotReady, op, err) }

// Transient wraps err as a TransientExternalError.
func Transient(op string, err error) error { return wrap(KindTransientExternal, op, err) }

// Permanent wraps err as a PermanentExternalError.
func Permanent(op string, err error) error { return wrap(KindPermanentExternal, op, err) }

// State wraps err as a StateError.
func State(op string, err error) error { return wrap(KindState, op, err) }

// AgentSchema wraps err as an AgentSchemaError.
func AgentSchema(op string, err error) error { return wrap(KindAgentSchema, op, err) }

// BudgetExceeded wraps err as a BudgetExceededError. Treated as transient
// for retry accounting, per the error handling design.
func BudgetExceeded(op string, err error) error { return wrap(KindBudgetExceeded, op, err) }

// Is reports whether err carries the given kind, unwrapping through any
// wrapper chain.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Retryable reports whether err should be retried per §4.10/§7: transient
// external failures and budget overruns are retried, everything else is not.
func Retryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == KindTransientExternal || k == KindBudgetExceeded
}
