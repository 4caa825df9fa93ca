package core

import "context"

// Worker executes one WorkerMission in isolation. Implementations wrap an LLM
// researcher, a search pipeline or a recorded fixture; the core treats them as
// opaque and fallible.
//
// Implementations must:
//   - Respect ctx cancellation (the dispatcher enforces the wall-clock timeout)
//   - Charge consumed tokens to the TokenMeter found in ctx, if any
//   - Return ErrTransport (wrapped) for retryable transport problems
type Worker interface {
	Execute(ctx context.Context, mission WorkerMission) (*Findings, error)
}

// WorkerFunc adapts an ordinary function to the Worker interface.
type WorkerFunc func(ctx context.Context, mission WorkerMission) (*Findings, error)

// Execute calls f(ctx, mission).
func (f WorkerFunc) Execute(ctx context.Context, mission WorkerMission) (*Findings, error) {
	return f(ctx, mission)
}
