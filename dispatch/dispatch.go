package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
)

// MaxAttempts is the number of times a mission is tried: once, plus one retry
// for a transient failure.
const MaxAttempts = 2

// Options configures a Dispatcher. MaxParallel bounds concurrent workers
// (0 runs every mission at once). DefaultTimeout applies to missions without
// their own timeout. OnTask, when set, is called with every terminal task as
// it completes; it may be called concurrently.
type Options struct {
	MaxParallel    int
	DefaultTimeout time.Duration
	Backoff        time.Duration
	Clock          func() time.Time
	Tracer         trace.Tracer
	OnTask         func(task core.WorkerTask)
	Logger         logging.Logger
}

// Dispatcher executes drop plans against a worker.
type Dispatcher struct {
	worker core.Worker
	opts   Options
	logger logging.Logger
}

// New creates a Dispatcher.
func New(worker core.Worker, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		DefaultTimeout: 5 * time.Minute,
		Backoff:        500 * time.Millisecond,
		Clock:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/milehighfry405/gtm-factory-sub000/dispatch")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Dispatcher{worker: worker, opts: opts, logger: logging.Component(opts.Logger, "dispatcher")}
}

// Dispatch runs every mission of plan and returns the terminal tasks in
// mission order. It blocks until all tasks are terminal.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *core.DropPlan) ([]core.WorkerTask, error) {
	return d.Resume(ctx, plan, nil)
}

// Resume is Dispatch for a drop interrupted after some of its tasks reached a
// terminal status. Terminal tasks in done that match the plan's task id and
// mission are returned unchanged; only the remaining missions are run.
func (d *Dispatcher) Resume(ctx context.Context, plan *core.DropPlan, done []core.WorkerTask) ([]core.WorkerTask, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	finished := make(map[string]core.WorkerTask, len(done))
	for _, t := range done {
		if t.Status.Terminal() {
			finished[t.ID] = t
		}
	}
	tasks := make([]core.WorkerTask, len(plan.Missions))

	// Task goroutines always return nil so one failure never cancels the group.
	g := new(errgroup.Group)
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}
	for i, m := range plan.Missions {
		id := core.TaskID(i + 1)
		if t, ok := finished[id]; ok && t.Mission.ID == m.ID {
			tasks[i] = t
			continue
		}
		g.Go(func() error {
			tasks[i] = d.run(ctx, plan.DropID, id, m)
			if d.opts.OnTask != nil {
				d.opts.OnTask(tasks[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return tasks, fmt.Errorf("dispatch %s: %w", plan.DropID, err)
	}
	return tasks, nil
}

// run executes one mission to a terminal state.
func (d *Dispatcher) run(ctx context.Context, dropID, taskID string, m core.WorkerMission) core.WorkerTask {
	ctx, span := d.opts.Tracer.Start(ctx, "dispatch.Task", trace.WithAttributes(
		attribute.String("drop.id", dropID),
		attribute.String("task.id", taskID),
		attribute.String("mission.id", m.ID),
		attribute.Int("mission.token_budget", m.TokenBudget),
	))
	defer span.End()

	task := core.WorkerTask{
		ID:        taskID,
		DropID:    dropID,
		Mission:   m,
		Status:    core.TaskRunning,
		StartedAt: d.opts.Clock(),
	}

	// One meter spans every attempt so a retry cannot reset the budget.
	meter := core.NewTokenMeter(m.TokenBudget)
	var (
		findings *core.Findings
		werr     *core.WorkerError
	)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		task.Attempts = attempt
		start, before := time.Now(), meter.Used()
		findings, werr = d.attempt(ctx, m, meter)
		d.logAttempt(dropID, m.ID, attempt, meter.Used()-before, time.Since(start), werr)

		if werr == nil || !werr.Transient() || attempt == MaxAttempts {
			break
		}
		if meter.Remaining() == 0 {
			werr = core.NewWorkerError(core.FailureBudgetExceeded,
				fmt.Errorf("%w: used %d of %d before retry", core.ErrBudgetExceeded, meter.Used(), m.TokenBudget))
			break
		}
		if !sleep(ctx, d.opts.Backoff) {
			break
		}
	}

	task.FinishedAt = d.opts.Clock()
	task.Latency = task.FinishedAt.Sub(task.StartedAt)
	task.TokensUsed = meter.Used()
	task.CostUSD = meter.Cost()

	if werr != nil {
		task.Status = core.StatusFor(werr.Kind)
		task.Failure = &core.TaskFailure{Kind: werr.Kind, Message: werr.Error()}
		span.RecordError(werr)
		span.SetStatus(codes.Error, string(werr.Kind))
		d.logger.Warn("mission failed",
			"drop", dropID,
			"mission", m.ID,
			"kind", werr.Kind,
			"attempts", task.Attempts,
			"tokens", task.TokensUsed,
			"error", werr.Err)
	} else {
		task.Status = core.TaskSucceeded
		task.Findings = findings
		span.SetAttributes(attribute.Int("findings.claims", len(findings.Claims)))
	}
	span.SetAttributes(
		attribute.String("task.status", string(task.Status)),
		attribute.Int("task.attempts", task.Attempts),
		attribute.Int("task.tokens_used", task.TokensUsed),
	)
	return task
}

type outcome struct {
	findings *core.Findings
	err      error
}

// attempt runs the worker once under the mission's timeout, charging meter.
// The worker runs in its own goroutine so a worker that ignores cancellation
// cannot hold the task past its deadline.
func (d *Dispatcher) attempt(ctx context.Context, m core.WorkerMission, meter *core.TokenMeter) (*core.Findings, *core.WorkerError) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = d.opts.DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	actx = core.ContextWithMeter(actx, meter)

	tokensBefore, costBefore := meter.Used(), meter.Cost()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: core.NewWorkerError(core.FailureWorker, fmt.Errorf("worker panic: %v", r))}
			}
		}()
		f, err := d.worker.Execute(actx, m)
		done <- outcome{findings: f, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-actx.Done():
		out.err = actx.Err()
	}

	// Workers may report usage without charging the meter.
	if out.err == nil && out.findings != nil {
		if extra := out.findings.Usage.Tokens - (meter.Used() - tokensBefore); extra > 0 {
			_ = meter.Charge(extra)
		}
		if extra := out.findings.Usage.CostUSD - (meter.Cost() - costBefore); extra > 0 {
			meter.AddCost(extra)
		}
	}

	used := meter.Used()
	switch {
	case out.err != nil:
		return nil, classify(ctx, actx, out.err)
	case out.findings == nil:
		return nil, core.NewWorkerError(core.FailureWorker, errors.New("worker returned no findings"))
	case used > m.TokenBudget:
		return nil, core.NewWorkerError(core.FailureBudgetExceeded,
			fmt.Errorf("%w: used %d of %d", core.ErrBudgetExceeded, used, m.TokenBudget))
	}

	f := *out.findings
	f.MissionID = m.ID
	f.Usage = core.Usage{Tokens: used, CostUSD: meter.Cost()}
	return &f, nil
}

// classify tags a worker error. A deadline on the attempt context is a
// timeout; cancellation of the parent is not retried.
func classify(parent, actx context.Context, err error) *core.WorkerError {
	var we *core.WorkerError
	switch {
	case errors.As(err, &we):
		return we
	case parent.Err() != nil:
		return core.NewWorkerError(core.FailureWorker, fmt.Errorf("dispatch cancelled: %w", err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(actx.Err(), context.DeadlineExceeded):
		return core.NewWorkerError(core.FailureTimeout, err)
	case errors.Is(err, core.ErrBudgetExceeded):
		return core.NewWorkerError(core.FailureBudgetExceeded, err)
	case errors.Is(err, core.ErrTransport):
		return core.NewWorkerError(core.FailureTransport, err)
	default:
		return core.NewWorkerError(core.FailureWorker, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func errString(err *core.WorkerError) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (d *Dispatcher) logAttempt(dropID, missionID string, attempt, tokens int, dur time.Duration, werr *core.WorkerError) {
	if wl, ok := d.logger.(logging.WorkerCallLogger); ok {
		var err error
		if werr != nil {
			err = werr
		}
		wl.LogWorkerCall(dropID, missionID, attempt, tokens, dur, err)
		return
	}
	d.logger.Debug("worker attempt finished",
		"drop", dropID,
		"mission", missionID,
		"attempt", attempt,
		"tokens", tokens,
		"duration", dur,
		"error", errString(werr))
}
