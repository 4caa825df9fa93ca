package testutil

import (
	"fmt"
	"time"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// PlanBuilder helps construct drop plans with fluent chaining for tests.
// Example:
//
//	plan := NewPlanBuilder("acme", "s1", 1).Mission("m1", "What is ACME's pricing?").Build()
type PlanBuilder struct {
	plan    core.DropPlan
	budget  int
	timeout time.Duration
}

// NewPlanBuilder creates a builder for the seq-th drop of a session.
func NewPlanBuilder(projectID, sessionID string, seq int) *PlanBuilder {
	return &PlanBuilder{
		plan: core.DropPlan{
			ProjectID:  projectID,
			SessionID:  sessionID,
			DropID:     core.DropID(seq),
			Seq:        seq,
			Brief:      core.StrategicBrief{Goal: "research", Constraints: []string{}}.Normalize(),
			MaxWorkers: 4,
		},
		budget:  1000,
		timeout: time.Second,
	}
}

// Budget sets the token budget of subsequently added missions (chainable).
func (b *PlanBuilder) Budget(n int) *PlanBuilder { b.budget = n; return b }

// Timeout sets the timeout of subsequently added missions (chainable).
func (b *PlanBuilder) Timeout(d time.Duration) *PlanBuilder { b.timeout = d; return b }

// Mission appends a mission (chainable).
func (b *PlanBuilder) Mission(id, question string) *PlanBuilder {
	b.plan.Missions = append(b.plan.Missions, core.WorkerMission{
		ID:               id,
		FocusQuestion:    question,
		StrategicContext: "context for " + question,
		TokenBudget:      b.budget,
		SuccessCriteria:  "answer " + question,
		Timeout:          b.timeout,
	})
	return b
}

// Missions appends n generic missions m1..mn (chainable).
func (b *PlanBuilder) Missions(n int) *PlanBuilder {
	for i := 1; i <= n; i++ {
		b.Mission(fmt.Sprintf("m%d", i), fmt.Sprintf("question %d", i))
	}
	return b
}

// Build returns the plan.
func (b *PlanBuilder) Build() *core.DropPlan {
	p := b.plan
	p.Missions = append([]core.WorkerMission(nil), b.plan.Missions...)
	return &p
}
