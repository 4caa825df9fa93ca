package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a payload rejected before it was written.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientContext is returned by planning when the brief has too
	// many unknown fields to plan against.
	ErrInsufficientContext = errors.New("insufficient context")
	// ErrPersistence marks a failed store operation.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound is returned when a session, drop or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a workflow step not allowed in the
	// session's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTransport marks a transient remote failure. Workers wrap it so the
	// dispatcher knows a retry may help.
	ErrTransport = errors.New("transport error")
	// ErrBudgetExceeded is returned by a TokenMeter once its ceiling is crossed.
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

// PlanningError is returned to the human loop when a plan cannot be made.
type PlanningError struct {
	Unknown   []string
	Questions []string
	Err       error
}

func (e *PlanningError) Error() string {
	msg := "planning failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Unknown) > 0 {
		msg += " (unknown: " + strings.Join(e.Unknown, ", ") + ")"
	}
	return msg
}

func (e *PlanningError) Unwrap() error { return e.Err }

// WorkerError is a tagged worker failure.
type WorkerError struct {
	Kind FailureKind
	Err  error
}

// NewWorkerError classifies err into a WorkerError.
func NewWorkerError(kind FailureKind, err error) *WorkerError {
	return &WorkerError{Kind: kind, Err: err}
}

func (e *WorkerError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed.
func (e *WorkerError) Transient() bool { return e.Kind.Transient() }

// PersistenceError wraps a failed store operation with its target path.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Process exit codes.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitPlanning    = 2
	ExitWorker      = 3
	ExitContested   = 4
	ExitPersistence = 5
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var we *WorkerError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPersistence):
		return ExitPersistence
	case errors.Is(err, ErrInsufficientContext):
		return ExitPlanning
	case errors.As(err, new(*PlanningError)):
		return ExitPlanning
	case errors.As(err, &we):
		return ExitWorker
	default:
		return ExitUsage
	}
}

// SummaryExitCode maps a completed drop to an exit code. Worker failures take
// precedence over claims awaiting review.
func SummaryExitCode(s *DropSummary) int {
	switch {
	case s == nil:
		return ExitUsage
	case s.Outcome != OutcomeSuccess:
		return ExitWorker
	case len(s.NeedsReview) > 0:
		return ExitContested
	default:
		return ExitOK
	}
}
