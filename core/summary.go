package core

import (
	"fmt"
	"time"
)

// DropOutcome is the terminal state of a drop. Every value is a legitimate
// end state; none of them is an error.
type DropOutcome string

const (
	OutcomeSuccess   DropOutcome = "success"
	OutcomePartial   DropOutcome = "partial"
	OutcomeAllFailed DropOutcome = "all-failed"
)

// OutcomeOf derives the drop outcome from its tasks.
func OutcomeOf(tasks []WorkerTask) DropOutcome {
	ok := 0
	for i := range tasks {
		if tasks[i].Succeeded() {
			ok++
		}
	}
	switch {
	case ok == len(tasks) && ok > 0:
		return OutcomeSuccess
	case ok == 0:
		return OutcomeAllFailed
	default:
		return OutcomePartial
	}
}

// TaskOutcome is the per-task line of a DropSummary.
type TaskOutcome struct {
	TaskID        string        `json:"task_id"`
	MissionID     string        `json:"mission_id"`
	FocusQuestion string        `json:"focus_question"`
	Status        TaskStatus    `json:"status"`
	Attempts      int           `json:"attempts"`
	Failure       *TaskFailure  `json:"failure,omitempty"`
	TokensUsed    int           `json:"tokens_used"`
	TokenBudget   int           `json:"token_budget"`
	CostUSD       float64       `json:"cost_usd"`
	Latency       time.Duration `json:"latency"`
	Claims        int           `json:"claims"`
}

// Gap is a mission that stayed unanswered after its retry budget.
type Gap struct {
	MissionID     string      `json:"mission_id"`
	FocusQuestion string      `json:"focus_question"`
	Kind          FailureKind `json:"kind"`
	Reason        string      `json:"reason"`
}

// ChangeSet lists the claim ids a synthesis touched. Corroborated claims
// already existed and gained sources from a later drop.
type ChangeSet struct {
	Added        []string `json:"added"`
	Invalidated  []string `json:"invalidated"`
	Contested    []string `json:"contested"`
	Corroborated []string `json:"corroborated,omitempty"`
}

// Empty reports whether the synthesis changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Invalidated) == 0 && len(c.Contested) == 0 && len(c.Corroborated) == 0
}

// DropSummary describes a completed drop: what ran, what failed, what changed
// in the living document and what needs human review. Analysis names the
// drop's critical analysis artifact when one was written.
type DropSummary struct {
	ProjectID       string        `json:"project_id"`
	SessionID       string        `json:"session_id"`
	DropID          string        `json:"drop_id"`
	Seq             int           `json:"seq"`
	Outcome         DropOutcome   `json:"outcome"`
	Tasks           []TaskOutcome `json:"tasks"`
	Unanswered      []Gap         `json:"unanswered"`
	WorkerGaps      []string      `json:"worker_gaps"`
	Deferred        []string      `json:"deferred,omitempty"`
	Changes         ChangeSet     `json:"changes"`
	NeedsReview     []string      `json:"needs_review"`
	Counts          ClaimCounts   `json:"counts"`
	DocumentVersion int           `json:"document_version"`
	TotalTokens     int           `json:"total_tokens"`
	TotalCostUSD    float64       `json:"total_cost_usd"`
	Analysis        string        `json:"analysis,omitempty"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Validate checks identity, outcome and that the claim counts add up.
func (s *DropSummary) Validate() error {
	if s.DropID == "" {
		return fmt.Errorf("%w: summary has no drop id", ErrValidation)
	}
	switch s.Outcome {
	case OutcomeSuccess, OutcomePartial, OutcomeAllFailed:
	default:
		return fmt.Errorf("%w: summary %s has unknown outcome %q", ErrValidation, s.DropID, s.Outcome)
	}
	if c := s.Counts; c.Total != c.Active+c.Invalidated+c.Contested {
		return fmt.Errorf("%w: summary %s claim counts do not add up", ErrValidation, s.DropID)
	}
	return nil
}
