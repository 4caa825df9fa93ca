package testutil

import (
	"context"
	"sync"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Step is one scripted worker response. Block makes the step wait for context
// cancellation; Charge and Cost are recorded on the context's token meter
// before the step returns.
type Step struct {
	Findings *core.Findings
	Err      error
	Block    bool
	Charge   int
	Cost     float64
}

// ScriptedWorker replays scripted responses per mission id. Calls beyond the
// script repeat the last step. It is safe for concurrent use.
type ScriptedWorker struct {
	mu     sync.Mutex
	script map[string][]Step
	calls  map[string]int
}

// Compile-time assertion.
var _ core.Worker = (*ScriptedWorker)(nil)

// NewScriptedWorker creates an empty script.
func NewScriptedWorker() *ScriptedWorker {
	return &ScriptedWorker{script: map[string][]Step{}, calls: map[string]int{}}
}

// On appends steps for a mission (chainable).
func (w *ScriptedWorker) On(missionID string, steps ...Step) *ScriptedWorker {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.script[missionID] = append(w.script[missionID], steps...)
	return w
}

// Calls returns how often the mission was executed.
func (w *ScriptedWorker) Calls(missionID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[missionID]
}

// Execute implements core.Worker.
func (w *ScriptedWorker) Execute(ctx context.Context, mission core.WorkerMission) (*core.Findings, error) {
	w.mu.Lock()
	n := w.calls[mission.ID]
	w.calls[mission.ID]++
	steps := w.script[mission.ID]
	w.mu.Unlock()

	if len(steps) == 0 {
		return NewFindingsBuilder(mission.ID).Build(), nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	step := steps[n]

	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m, ok := core.MeterFromContext(ctx); ok {
		m.AddCost(step.Cost)
		if step.Charge > 0 {
			if err := m.Charge(step.Charge); err != nil {
				return nil, err
			}
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Findings == nil {
		return NewFindingsBuilder(mission.ID).Build(), nil
	}
	f := *step.Findings
	f.MissionID = mission.ID
	return &f, nil
}
