package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unknown", errors.New("boom"), ExitUsage},
		{"transition", fmt.Errorf("x: %w", ErrInvalidTransition), ExitUsage},
		{"planning", &PlanningError{Err: ErrInsufficientContext}, ExitPlanning},
		{"wrapped planning", fmt.Errorf("plan: %w", &PlanningError{Unknown: []string{"goal"}}), ExitPlanning},
		{"worker", NewWorkerError(FailureTimeout, context.DeadlineExceeded), ExitWorker},
		{"persistence", &PersistenceError{Op: "write", Path: "a/b", Err: errors.New("disk full")}, ExitPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestSummaryExitCode(t *testing.T) {
	assert.Equal(t, ExitUsage, SummaryExitCode(nil))
	assert.Equal(t, ExitOK, SummaryExitCode(&DropSummary{Outcome: OutcomeSuccess}))
	assert.Equal(t, ExitContested, SummaryExitCode(&DropSummary{Outcome: OutcomeSuccess, NeedsReview: []string{"c1"}}))
	assert.Equal(t, ExitWorker, SummaryExitCode(&DropSummary{Outcome: OutcomePartial, NeedsReview: []string{"c1"}}))
	assert.Equal(t, ExitWorker, SummaryExitCode(&DropSummary{Outcome: OutcomeAllFailed}))
}

func TestPersistenceError_Is(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", &PersistenceError{Op: "write", Path: "acme/s1/plan.json", Err: cause})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "acme/s1/plan.json")
}

func TestPlanningError_Message(t *testing.T) {
	err := &PlanningError{Unknown: []string{"goal", "constraints"}, Err: ErrInsufficientContext}
	assert.Equal(t, "planning failed: insufficient context (unknown: goal, constraints)", err.Error())
	assert.ErrorIs(t, err, ErrInsufficientContext)
}

func TestFailureKind_Transient(t *testing.T) {
	assert.True(t, FailureTimeout.Transient())
	assert.True(t, FailureTransport.Transient())
	assert.False(t, FailureBudgetExceeded.Transient())
	assert.False(t, FailureWorker.Transient())
	assert.Equal(t, TaskTimedOut, StatusFor(FailureTimeout))
	assert.Equal(t, TaskBudgetExceeded, StatusFor(FailureBudgetExceeded))
}
