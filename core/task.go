package core

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a WorkerTask.
type TaskStatus string

const (
	TaskPending        TaskStatus = "pending"
	TaskRunning        TaskStatus = "running"
	TaskSucceeded      TaskStatus = "succeeded"
	TaskFailed         TaskStatus = "failed"
	TaskTimedOut       TaskStatus = "timed-out"
	TaskBudgetExceeded TaskStatus = "budget-exceeded"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskTimedOut, TaskBudgetExceeded:
		return true
	}
	return false
}

// StatusFor maps a failure kind to the terminal task status it produces.
func StatusFor(kind FailureKind) TaskStatus {
	switch kind {
	case FailureTimeout:
		return TaskTimedOut
	case FailureBudgetExceeded:
		return TaskBudgetExceeded
	default:
		return TaskFailed
	}
}

// FailureKind tags why a task did not succeed.
type FailureKind string

const (
	FailureTimeout        FailureKind = "timeout"
	FailureBudgetExceeded FailureKind = "budget-exceeded"
	FailureTransport      FailureKind = "transport"
	FailureWorker         FailureKind = "worker-error"
)

// Transient reports whether a failure of this kind is worth one retry.
func (k FailureKind) Transient() bool {
	return k == FailureTimeout || k == FailureTransport
}

// TaskFailure is the recorded reason of a failed attempt.
type TaskFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Usage captures what a worker consumed.
type Usage struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// FindingClaim is one assertion reported by a worker. Topic is optional; when
// empty the synthesis matcher derives it from Text.
type FindingClaim struct {
	Text       string     `json:"text"`
	Topic      string     `json:"topic,omitempty"`
	Confidence Confidence `json:"confidence"`
	Sources    []string   `json:"sources"`
}

// Findings is the immutable output of a successful worker execution.
type Findings struct {
	MissionID string         `json:"mission_id"`
	Claims    []FindingClaim `json:"claims"`
	Gaps      []string       `json:"gaps"`
	Usage     Usage          `json:"usage"`
}

// WorkerTask records one mission execution. It is never mutated after
// reaching a terminal status.
type WorkerTask struct {
	ID         string        `json:"id"`
	DropID     string        `json:"drop_id"`
	Mission    WorkerMission `json:"mission"`
	Status     TaskStatus    `json:"status"`
	Attempts   int           `json:"attempts"`
	Findings   *Findings     `json:"findings,omitempty"`
	Failure    *TaskFailure  `json:"failure,omitempty"`
	TokensUsed int           `json:"tokens_used"`
	CostUSD    float64       `json:"cost_usd"`
	Latency    time.Duration `json:"latency"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Succeeded reports whether the task produced findings.
func (t *WorkerTask) Succeeded() bool { return t.Status == TaskSucceeded && t.Findings != nil }

// Validate checks identity and that the result matches the status.
func (t *WorkerTask) Validate() error {
	if t.ID == "" || t.DropID == "" {
		return fmt.Errorf("%w: task needs id and drop id", ErrValidation)
	}
	switch {
	case t.Status == TaskSucceeded && t.Findings == nil:
		return fmt.Errorf("%w: task %s succeeded without findings", ErrValidation, t.ID)
	case t.Status.Terminal() && t.Status != TaskSucceeded && t.Failure == nil:
		return fmt.Errorf("%w: task %s is %s without a failure", ErrValidation, t.ID, t.Status)
	}
	return nil
}
