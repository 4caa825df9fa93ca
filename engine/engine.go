package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/milehighfry405/gtm-factory-sub000/analyst"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/dispatch"
	"github.com/milehighfry405/gtm-factory-sub000/extract"
	"github.com/milehighfry405/gtm-factory-sub000/index"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
	"github.com/milehighfry405/gtm-factory-sub000/planner"
	"github.com/milehighfry405/gtm-factory-sub000/synthesis"
)

// Options configures an Engine. Every component has a default: the heuristic
// extractor and analyst, an in-memory catalog, and planner, dispatcher, synthesizer and
// indexer with their own defaults. Planner and Dispatcher defaults are built
// from the engine's Catalog and worker.
type Options struct {
	Extractor   extract.Extractor
	Analyst     analyst.Analyst
	Planner     *planner.Planner
	Dispatcher  *dispatch.Dispatcher
	Synthesizer *synthesis.Synthesizer
	Indexer     *index.Indexer
	Catalog     core.Catalog
	Callbacks   *CallbackManager
	Clock       func() time.Time
	Tracer      trace.Tracer
	Logger      logging.Logger
}

// Engine orchestrates research sessions.
type Engine struct {
	store       core.SessionStore
	extractor   extract.Extractor
	analyst     analyst.Analyst
	planner     *planner.Planner
	dispatcher  *dispatch.Dispatcher
	synthesizer *synthesis.Synthesizer
	indexer     *index.Indexer
	catalog     core.Catalog
	callbacks   *CallbackManager
	clock       func() time.Time
	tracer      trace.Tracer
	logger      logging.Logger

	locks sync.Map // session key -> *sync.Mutex
}

// New creates an Engine over store. worker executes the missions of every
// drop unless opts supply a Dispatcher.
func New(store core.SessionStore, worker core.Worker, optFns ...func(o *Options)) *Engine {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		store:       store,
		extractor:   opts.Extractor,
		analyst:     opts.Analyst,
		planner:     opts.Planner,
		dispatcher:  opts.Dispatcher,
		synthesizer: opts.Synthesizer,
		indexer:     opts.Indexer,
		catalog:     opts.Catalog,
		callbacks:   opts.Callbacks,
		clock:       opts.Clock,
		tracer:      opts.Tracer,
		logger:      logging.Component(opts.Logger, "engine"),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/milehighfry405/gtm-factory-sub000/engine")
	}
	if e.extractor == nil {
		e.extractor = extract.Heuristic{}
	}
	if e.analyst == nil {
		e.analyst = analyst.Heuristic{}
	}
	if e.indexer == nil {
		e.indexer = index.New(func(o *index.Options) { o.Logger = opts.Logger })
	}
	if e.catalog == nil {
		e.catalog = memory.NewInMemoryStore()
	}
	if e.planner == nil {
		e.planner = planner.New(func(o *planner.Options) {
			o.Catalog = e.catalog
			o.Indexer = e.indexer
			o.Clock = e.clock
			o.Logger = opts.Logger
		})
	}
	if e.dispatcher == nil {
		e.dispatcher = dispatch.New(worker, func(o *dispatch.Options) {
			o.MaxParallel = e.planner.MaxWorkers()
			o.Logger = opts.Logger
		})
	}
	if e.synthesizer == nil {
		e.synthesizer = synthesis.New(func(o *synthesis.Options) { o.Logger = opts.Logger })
	}
	if e.callbacks == nil {
		e.callbacks = NewCallbackManager()
	}
	return e
}

// Catalog returns the discovery catalog.
func (e *Engine) Catalog() core.Catalog { return e.catalog }

func (e *Engine) lock(ref core.SessionRef) func() {
	v, _ := e.locks.LoadOrStore(ref.Key(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// loadSession returns the session or a fresh one awaiting clarification.
func (e *Engine) loadSession(ref core.SessionRef, create bool) (*core.Session, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	sess, err := e.store.GetSession(ref)
	if errors.Is(err, core.ErrNotFound) && create {
		return core.NewSession(ref, e.clock().UTC()), nil
	}
	return sess, err
}

// transition moves sess to next after OnStateChange callbacks approve, and
// persists it.
func (e *Engine) transition(ctx context.Context, sess *core.Session, next core.SessionState) error {
	from := sess.State
	if !from.CanTransition(next) {
		return fmt.Errorf("session %s: %w: %s -> %s", sess.Ref(), core.ErrInvalidTransition, from, next)
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, &CallbackContext{Ref: sess.Ref(), From: from, To: next}); err != nil {
		return err
	}
	if err := sess.Transition(next, e.clock().UTC()); err != nil {
		return err
	}
	if err := e.store.SaveSession(sess); err != nil {
		return err
	}
	if from != next {
		e.logger.Info("session state changed", "session", sess.Ref().Key(), "from", from, "to", next)
	}
	return nil
}

// fail reports err to OnError callbacks and returns it.
func (e *Engine) fail(ctx context.Context, ref core.SessionRef, err error) error {
	if err == nil {
		return nil
	}
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{Ref: ref, Err: err}); cbErr != nil {
		e.logger.Warn("error callback failed", "session", ref.Key(), "error", cbErr)
	}
	return err
}

// ConverseResult is the outcome of one conversation step.
type ConverseResult struct {
	Session *core.Session
	Result  *extract.Result
}

// Converse appends turns to the session's conversation and re-extracts the
// strategic brief from the whole conversation. A new session is created on
// first use. Conversing discards a proposed plan: the session returns to
// awaiting clarification.
func (e *Engine) Converse(ctx context.Context, ref core.SessionRef, turns ...core.Turn) (*ConverseResult, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, true)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if !sess.State.CanTransition(core.StateAwaitingClarification) {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: cannot converse while %s", ref, core.ErrInvalidTransition, sess.State))
	}

	now := e.clock().UTC()
	turns = append([]core.Turn(nil), turns...)
	for i := range turns {
		if turns[i].At.IsZero() {
			turns[i].At = now
		}
	}
	if err := e.store.SaveSession(sess); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if err := e.store.AppendTurns(ref, turns...); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	conv, err := e.store.Conversation(ref)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}

	res, err := e.extractor.Extract(ctx, conv)
	if err != nil {
		return nil, e.fail(ctx, ref, fmt.Errorf("extract brief: %w", err))
	}
	brief := res.Brief.Clone()
	sess.Brief = &brief
	sess.Questions = res.Questions
	if err := e.transition(ctx, sess, core.StateAwaitingClarification); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	return &ConverseResult{Session: sess.Clone(), Result: res}, nil
}

// Plan proposes the next drop from the session's brief. When the brief is too
// thin, the session stays awaiting clarification and the returned
// *core.PlanningError carries the questions to ask. Planning again before the
// drop runs replaces the proposal under the same drop id.
func (e *Engine) Plan(ctx context.Context, ref core.SessionRef) (*core.DropPlan, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if !sess.State.CanTransition(core.StatePlanProposed) {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: cannot plan while %s", ref, core.ErrInvalidTransition, sess.State))
	}
	brief := core.StrategicBrief{}
	if sess.Brief != nil {
		brief = *sess.Brief
	}

	plan, err := e.planner.Plan(ctx, ref, sess.Drops+1, brief)
	if err != nil {
		var pe *core.PlanningError
		if errors.As(err, &pe) {
			sess.Questions = pe.Questions
			if terr := e.transition(ctx, sess, core.StateAwaitingClarification); terr != nil {
				return nil, e.fail(ctx, ref, terr)
			}
		}
		return nil, e.fail(ctx, ref, err)
	}

	if err := e.store.SavePlan(ref, plan); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	sess.CurrentDrop = plan.DropID
	sess.Questions = nil
	if err := e.transition(ctx, sess, core.StatePlanProposed); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	return plan, nil
}

// Approve accepts the proposed plan.
func (e *Engine) Approve(ctx context.Context, ref core.SessionRef) error {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return e.fail(ctx, ref, err)
	}
	if sess.State != core.StatePlanProposed {
		return e.fail(ctx, ref, fmt.Errorf("session %s: %w: no proposed plan (state %s)", ref, core.ErrInvalidTransition, sess.State))
	}
	return e.fail(ctx, ref, e.transition(ctx, sess, core.StatePlanApproved))
}

// Reject declines the proposed plan. Non-empty feedback is recorded as a user
// turn so the next extraction and plan take it into account.
func (e *Engine) Reject(ctx context.Context, ref core.SessionRef, feedback string) error {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return e.fail(ctx, ref, err)
	}
	if sess.State != core.StatePlanProposed {
		return e.fail(ctx, ref, fmt.Errorf("session %s: %w: no proposed plan (state %s)", ref, core.ErrInvalidTransition, sess.State))
	}
	if feedback != "" {
		if err := e.store.AppendTurns(ref, core.Turn{Role: core.RoleUser, Content: feedback, At: e.clock().UTC()}); err != nil {
			return e.fail(ctx, ref, err)
		}
		conv, err := e.store.Conversation(ref)
		if err != nil {
			return e.fail(ctx, ref, err)
		}
		res, err := e.extractor.Extract(ctx, conv)
		if err != nil {
			return e.fail(ctx, ref, fmt.Errorf("extract brief: %w", err))
		}
		brief := res.Brief.Clone()
		sess.Brief = &brief
		sess.Questions = res.Questions
	}
	return e.fail(ctx, ref, e.transition(ctx, sess, core.StateAwaitingClarification))
}

// Execute runs the approved drop: fan-out to workers, synthesis into the
// living document, summary and metadata. Partial and total worker failure are
// reported in the summary, not as errors. Execute fails only when
// persistence fails, a callback vetoes the drop, or ctx is cancelled; in the
// last case the session returns to plan_approved. Task results persisted by
// an interrupted run of the same drop are reused, not dispatched again.
func (e *Engine) Execute(ctx context.Context, ref core.SessionRef) (*core.DropSummary, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if sess.State != core.StatePlanApproved {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: plan not approved (state %s)", ref, core.ErrInvalidTransition, sess.State))
	}
	plan, err := e.store.GetPlan(ref, sess.CurrentDrop)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}

	ctx, span := e.tracer.Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("session", ref.Key()),
		attribute.String("drop.id", plan.DropID),
		attribute.Int("drop.missions", len(plan.Missions)),
	))
	defer span.End()

	summary, err := e.execute(ctx, sess, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "drop failed")
		return nil, e.fail(ctx, ref, err)
	}
	span.SetAttributes(
		attribute.String("drop.outcome", string(summary.Outcome)),
		attribute.Int("drop.tokens", summary.TotalTokens),
		attribute.Int("document.version", summary.DocumentVersion),
	)
	return summary, nil
}

func (e *Engine) execute(ctx context.Context, sess *core.Session, plan *core.DropPlan) (*core.DropSummary, error) {
	ref := sess.Ref()
	start := time.Now()

	if err := e.transition(ctx, sess, core.StateExecuting); err != nil {
		return nil, err
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeDrop, &CallbackContext{Ref: ref, Plan: plan}); err != nil {
		if terr := e.transition(ctx, sess, core.StatePlanApproved); terr != nil {
			return nil, errors.Join(err, terr)
		}
		return nil, err
	}

	// Results persisted by an interrupted run are final and are not run again.
	done, err := e.store.GetTasks(ref, plan.DropID)
	if err != nil {
		return nil, err
	}
	if len(done) > 0 {
		e.logger.Info("resuming drop", "session", ref.Key(), "drop", plan.DropID, "persisted_tasks", len(done))
	}
	tasks, err := e.dispatcher.Resume(ctx, plan, done)
	if err != nil {
		// Cancelled: leave the drop open so it can be executed again.
		if terr := e.transition(context.WithoutCancel(ctx), sess, core.StatePlanApproved); terr != nil {
			return nil, errors.Join(err, terr)
		}
		return nil, err
	}
	persisted := make(map[string]bool, len(done))
	for _, t := range done {
		persisted[t.ID] = true
	}
	for i := range tasks {
		if persisted[tasks[i].ID] {
			continue
		}
		if err := e.store.SaveTask(ref, &tasks[i]); err != nil {
			return nil, err
		}
		e.observe(ctx, CallbackAfterTask, &CallbackContext{Ref: ref, Plan: plan, Task: &tasks[i]})
	}

	doc, changes, err := e.synthesize(ref, plan, tasks)
	if err != nil {
		return nil, err
	}

	summary := e.summarize(plan, tasks, doc, changes)
	if summary.Analysis, err = e.analyze(ctx, ref, plan, tasks); err != nil {
		return nil, err
	}
	if err := e.store.SaveSummary(ref, summary); err != nil {
		return nil, err
	}

	sess.Drops = plan.Seq
	sess.CurrentDrop = ""
	if err := e.transition(ctx, sess, core.StateSynthesisComplete); err != nil {
		return nil, err
	}
	e.index(ref, sess, plan, summary, doc)

	e.logDrop(ref, plan, summary, len(tasks), time.Since(start))
	e.observe(ctx, CallbackAfterDrop, &CallbackContext{Ref: ref, Plan: plan, Summary: summary})
	return summary, nil
}

// synthesize applies the successful findings to the living document. When
// the stored document already carries this drop (a crash after synthesis),
// the drop is re-applied to the version before it, which yields the same
// document and the original change set.
func (e *Engine) synthesize(ref core.SessionRef, plan *core.DropPlan, tasks []core.WorkerTask) (*core.LivingDocument, core.ChangeSet, error) {
	base, err := e.store.GetLivingDocument(ref)
	if err != nil {
		return nil, core.ChangeSet{}, err
	}
	if base.LastDropID == plan.DropID && base.Version > 0 {
		if base.Version == 1 {
			base = core.NewLivingDocument(ref.ProjectID, ref.SessionID)
		} else if base, err = e.store.GetDocumentVersion(ref, base.Version-1); err != nil {
			return nil, core.ChangeSet{}, err
		}
	}

	var findings []core.Findings
	for _, t := range tasks {
		if t.Succeeded() {
			findings = append(findings, *t.Findings)
		}
	}
	doc, changes := e.synthesizer.Apply(base, synthesis.Drop{ID: plan.DropID, Seq: plan.Seq}, findings)
	if !changes.Empty() {
		if err := e.store.SaveDocument(ref, doc); err != nil {
			return nil, changes, err
		}
	}
	return doc, changes, nil
}

// analyze writes the critical analysis of the drop's raw findings and
// returns its artifact name. An analyst failure costs only the analysis.
func (e *Engine) analyze(ctx context.Context, ref core.SessionRef, plan *core.DropPlan, tasks []core.WorkerTask) (string, error) {
	a, err := e.analyst.Analyze(ctx, analyst.Input{DropID: plan.DropID, Brief: plan.Brief, Tasks: tasks})
	if err != nil {
		e.logger.Warn("critical analysis failed", "session", ref.Key(), "drop", plan.DropID, "error", err)
		return "", nil
	}
	a.DropID = plan.DropID
	a.CreatedAt = e.clock().UTC()
	return e.store.SaveAnalysis(ref, a)
}

// summarize builds the drop summary.
func (e *Engine) summarize(plan *core.DropPlan, tasks []core.WorkerTask, doc *core.LivingDocument, changes core.ChangeSet) *core.DropSummary {
	s := &core.DropSummary{
		ProjectID:       plan.ProjectID,
		SessionID:       plan.SessionID,
		DropID:          plan.DropID,
		Seq:             plan.Seq,
		Outcome:         core.OutcomeOf(tasks),
		Tasks:           make([]core.TaskOutcome, 0, len(tasks)),
		Unanswered:      []core.Gap{},
		WorkerGaps:      []string{},
		Deferred:        plan.Deferred,
		Changes:         changes,
		NeedsReview:     synthesis.NeedsReview(doc),
		Counts:          doc.Counts(),
		DocumentVersion: doc.Version,
		CompletedAt:     e.clock().UTC(),
	}
	for _, t := range tasks {
		out := core.TaskOutcome{
			TaskID:        t.ID,
			MissionID:     t.Mission.ID,
			FocusQuestion: t.Mission.FocusQuestion,
			Status:        t.Status,
			Attempts:      t.Attempts,
			Failure:       t.Failure,
			TokensUsed:    t.TokensUsed,
			TokenBudget:   t.Mission.TokenBudget,
			CostUSD:       t.CostUSD,
			Latency:       t.Latency,
		}
		if t.Succeeded() {
			out.Claims = len(t.Findings.Claims)
			for _, g := range t.Findings.Gaps {
				s.WorkerGaps = append(s.WorkerGaps, t.Mission.ID+": "+g)
			}
		} else if t.Failure != nil {
			s.Unanswered = append(s.Unanswered, core.Gap{
				MissionID:     t.Mission.ID,
				FocusQuestion: t.Mission.FocusQuestion,
				Kind:          t.Failure.Kind,
				Reason:        t.Failure.Message,
			})
		}
		s.Tasks = append(s.Tasks, out)
		s.TotalTokens += t.TokensUsed
		s.TotalCostUSD += t.CostUSD
	}
	return s
}

// index regenerates the drop and session metadata records. The records are
// derived data: a failure is logged and repaired by Reindex.
func (e *Engine) index(ref core.SessionRef, sess *core.Session, plan *core.DropPlan, summary *core.DropSummary, doc *core.LivingDocument) {
	var recs []core.MetadataRecord
	if plan != nil && summary != nil {
		rec, err := e.indexer.DropRecord(plan, summary, doc)
		if err != nil {
			e.logger.Warn("drop record not indexed", "session", ref.Key(), "drop", summary.DropID, "error", err)
		} else {
			recs = append(recs, rec)
		}
	}
	summaries, err := e.summaries(ref)
	if err != nil {
		e.logger.Warn("session record not indexed", "session", ref.Key(), "error", err)
	} else if rec, err := e.indexer.SessionRecord(sess, summaries, doc); err != nil {
		e.logger.Warn("session record not indexed", "session", ref.Key(), "error", err)
	} else {
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return
	}
	if err := e.store.AppendMetadata(ref, recs...); err != nil {
		e.logger.Warn("metadata not persisted", "session", ref.Key(), "error", err)
	}
	for _, rec := range recs {
		if err := e.catalog.Put(rec); err != nil {
			e.logger.Warn("catalog put failed", "id", rec.ID, "error", err)
		}
	}
}

// summaries returns the summaries of every completed drop in sequence order.
func (e *Engine) summaries(ref core.SessionRef) ([]core.DropSummary, error) {
	drops, err := e.store.ListDrops(ref)
	if err != nil {
		return nil, err
	}
	var out []core.DropSummary
	for _, id := range drops {
		s, err := e.store.GetSummary(ref, id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// observe runs callbacks whose errors cannot undo persisted work.
func (e *Engine) observe(ctx context.Context, t CallbackType, cbCtx *CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, t, cbCtx); err != nil {
		e.logger.Warn("callback failed", "type", t, "session", cbCtx.Ref.Key(), "error", err)
	}
}

// Resolve settles a contested claim in favour of claimID and persists the new
// living document version.
func (e *Engine) Resolve(ctx context.Context, ref core.SessionRef, claimID string) (*core.LivingDocument, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	switch sess.State {
	case core.StateAwaitingClarification, core.StatePlanProposed, core.StateSynthesisComplete:
	default:
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: cannot resolve claims while %s", ref, core.ErrInvalidTransition, sess.State))
	}
	doc, err := e.store.GetLivingDocument(ref)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	next, _, err := e.synthesizer.Resolve(doc, claimID)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if err := e.store.SaveDocument(ref, next); err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	e.index(ref, sess, nil, nil, next)
	return next, nil
}

// Close ends a session. Closed sessions are read-only.
func (e *Engine) Close(ctx context.Context, ref core.SessionRef) error {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return e.fail(ctx, ref, err)
	}
	if err := e.transition(ctx, sess, core.StateClosed); err != nil {
		return e.fail(ctx, ref, err)
	}
	doc, err := e.store.GetLivingDocument(ref)
	if err != nil {
		return e.fail(ctx, ref, err)
	}
	e.index(ref, sess, nil, nil, doc)
	return nil
}

// Recover returns a session whose drop was interrupted mid-execution to
// plan_approved. It reports whether anything was recovered.
func (e *Engine) Recover(ctx context.Context, ref core.SessionRef) (bool, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return false, e.fail(ctx, ref, err)
	}
	if sess.State != core.StateExecuting {
		return false, nil
	}
	if _, err := e.store.GetSummary(ref, sess.CurrentDrop); err == nil {
		// The drop finished but the state change was lost.
		sess.Drops = max(sess.Drops, seqOf(sess.CurrentDrop))
		sess.CurrentDrop = ""
		return true, e.fail(ctx, ref, e.transition(ctx, sess, core.StateSynthesisComplete))
	} else if !errors.Is(err, core.ErrNotFound) {
		return false, e.fail(ctx, ref, err)
	}
	e.logger.Warn("recovering interrupted drop", "session", ref.Key(), "drop", sess.CurrentDrop)
	return true, e.fail(ctx, ref, e.transition(ctx, sess, core.StatePlanApproved))
}

// Abandon closes the open drop of an interrupted session without running it
// again. Missions without a persisted result are recorded as failed with
// reason, the drop is summarized as all-failed and the living document is
// left unchanged. A drop whose findings already reached the living document
// cannot be abandoned; Execute finishes it from the persisted results.
func (e *Engine) Abandon(ctx context.Context, ref core.SessionRef, reason string) (*core.DropSummary, error) {
	defer e.lock(ref)()

	sess, err := e.loadSession(ref, false)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if (sess.State != core.StateExecuting && sess.State != core.StatePlanApproved) || sess.CurrentDrop == "" {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: no interrupted drop (state %s)", ref, core.ErrInvalidTransition, sess.State))
	}
	plan, err := e.store.GetPlan(ref, sess.CurrentDrop)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if _, err := e.store.GetSummary(ref, plan.DropID); err == nil {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: drop %s is complete, recover it instead", ref, core.ErrInvalidTransition, plan.DropID))
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, e.fail(ctx, ref, err)
	}
	doc, err := e.store.GetLivingDocument(ref)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	if doc.LastDropID == plan.DropID {
		return nil, e.fail(ctx, ref, fmt.Errorf("session %s: %w: drop %s is already synthesized, execute it to finish", ref, core.ErrInvalidTransition, plan.DropID))
	}
	if reason == "" {
		reason = "drop abandoned"
	}

	summary, err := e.abandon(ctx, sess, plan, doc, reason)
	if err != nil {
		return nil, e.fail(ctx, ref, err)
	}
	e.logger.Warn("drop abandoned", "session", ref.Key(), "drop", plan.DropID, "reason", reason)
	return summary, nil
}

func (e *Engine) abandon(ctx context.Context, sess *core.Session, plan *core.DropPlan, doc *core.LivingDocument, reason string) (*core.DropSummary, error) {
	ref := sess.Ref()
	if sess.State == core.StatePlanApproved {
		if err := e.transition(ctx, sess, core.StateExecuting); err != nil {
			return nil, err
		}
	}

	done, err := e.store.GetTasks(ref, plan.DropID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.WorkerTask, len(done))
	for _, t := range done {
		byID[t.ID] = t
	}
	now := e.clock().UTC()
	tasks := make([]core.WorkerTask, len(plan.Missions))
	for i, m := range plan.Missions {
		id := core.TaskID(i + 1)
		if t, ok := byID[id]; ok && t.Mission.ID == m.ID {
			tasks[i] = t
			continue
		}
		tasks[i] = core.WorkerTask{
			ID:         id,
			DropID:     plan.DropID,
			Mission:    m,
			Status:     core.TaskFailed,
			Failure:    &core.TaskFailure{Kind: core.FailureWorker, Message: reason},
			StartedAt:  now,
			FinishedAt: now,
		}
		if err := e.store.SaveTask(ref, &tasks[i]); err != nil {
			return nil, err
		}
	}

	// Nothing from an abandoned drop reaches the document, so every mission
	// counts as unanswered.
	summary := e.summarize(plan, tasks, doc, core.ChangeSet{})
	summary.Outcome = core.OutcomeAllFailed
	summary.Unanswered = summary.Unanswered[:0]
	for _, t := range tasks {
		gap := core.Gap{MissionID: t.Mission.ID, FocusQuestion: t.Mission.FocusQuestion, Kind: core.FailureWorker, Reason: reason}
		if t.Failure != nil {
			gap.Kind, gap.Reason = t.Failure.Kind, t.Failure.Message
		}
		summary.Unanswered = append(summary.Unanswered, gap)
	}
	summary.WorkerGaps = []string{}
	if err := e.store.SaveSummary(ref, summary); err != nil {
		return nil, err
	}

	sess.Drops = plan.Seq
	sess.CurrentDrop = ""
	if err := e.transition(ctx, sess, core.StateSynthesisComplete); err != nil {
		return nil, err
	}
	e.index(ref, sess, plan, summary, doc)
	e.observe(ctx, CallbackAfterDrop, &CallbackContext{Ref: ref, Plan: plan, Summary: summary})
	return summary, nil
}

// RecoverAll runs Recover over every stored session and returns the ones
// that were recovered.
func (e *Engine) RecoverAll(ctx context.Context) ([]core.SessionRef, error) {
	refs, err := e.store.ListSessions()
	if err != nil {
		return nil, err
	}
	var recovered []core.SessionRef
	for _, ref := range refs {
		ok, err := e.Recover(ctx, ref)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered = append(recovered, ref)
		}
	}
	return recovered, nil
}

// Reindex regenerates every metadata record from the session store alone and
// rebuilds the catalog. Records that changed are appended to the sessions'
// metadata indexes. It returns the number of records in the catalog.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	refs, err := e.store.ListSessions()
	if err != nil {
		return 0, err
	}
	if err := e.catalog.Reset(); err != nil {
		return 0, err
	}
	n := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		recs, err := e.reindexSession(ref)
		if err != nil {
			return n, err
		}
		for _, rec := range recs {
			if err := e.catalog.Put(rec); err != nil {
				return n, err
			}
			n++
		}
	}
	e.logger.Info("catalog rebuilt", "sessions", len(refs), "records", n)
	return n, nil
}

func (e *Engine) reindexSession(ref core.SessionRef) ([]core.MetadataRecord, error) {
	unlock := e.lock(ref)
	defer unlock()

	sess, err := e.store.GetSession(ref)
	if err != nil {
		return nil, err
	}
	summaries, err := e.summaries(ref)
	if err != nil {
		return nil, err
	}

	var recs []core.MetadataRecord
	for i := range summaries {
		s := &summaries[i]
		plan, err := e.store.GetPlan(ref, s.DropID)
		if err != nil {
			return nil, err
		}
		doc := core.NewLivingDocument(ref.ProjectID, ref.SessionID)
		if s.DocumentVersion > 0 {
			if doc, err = e.store.GetDocumentVersion(ref, s.DocumentVersion); err != nil {
				return nil, err
			}
		}
		rec, err := e.indexer.DropRecord(plan, s, doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	doc, err := e.store.GetLivingDocument(ref)
	if err != nil {
		return nil, err
	}
	rec, err := e.indexer.SessionRecord(sess, summaries, doc)
	if err != nil {
		return nil, err
	}
	recs = append(recs, rec)

	stored, err := e.store.Metadata(ref)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]core.MetadataRecord, len(stored))
	for _, r := range stored {
		latest[r.ID] = r
	}
	var changed []core.MetadataRecord
	for _, r := range recs {
		if old, ok := latest[r.ID]; !ok || !sameRecord(old, r) {
			changed = append(changed, r)
		}
	}
	if len(changed) > 0 {
		if err := e.store.AppendMetadata(ref, changed...); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Session returns a copy of the session record.
func (e *Engine) Session(_ context.Context, ref core.SessionRef) (*core.Session, error) {
	return e.loadSession(ref, false)
}

// CurrentPlan returns the proposed or approved plan of the session.
func (e *Engine) CurrentPlan(ctx context.Context, ref core.SessionRef) (*core.DropPlan, error) {
	sess, err := e.loadSession(ref, false)
	if err != nil {
		return nil, err
	}
	if sess.CurrentDrop == "" {
		return nil, fmt.Errorf("session %s has no open drop: %w", ref, core.ErrNotFound)
	}
	return e.store.GetPlan(ref, sess.CurrentDrop)
}

// Summary returns the summary of a completed drop.
func (e *Engine) Summary(_ context.Context, ref core.SessionRef, dropID string) (*core.DropSummary, error) {
	return e.store.GetSummary(ref, dropID)
}

// Analysis returns the critical analysis written for a drop.
func (e *Engine) Analysis(_ context.Context, ref core.SessionRef, dropID string) (*core.Analysis, error) {
	return e.store.GetAnalysis(ref, dropID)
}

// GetLivingDocument returns the session's current living document.
func (e *Engine) GetLivingDocument(_ context.Context, ref core.SessionRef) (*core.LivingDocument, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return e.store.GetLivingDocument(ref)
}

// FindRelated returns catalog records sharing tags, best match first.
func (e *Engine) FindRelated(_ context.Context, tags []string, limit int) ([]core.MetadataRecord, error) {
	return e.catalog.FindRelated(tags, limit)
}

// Sessions lists every stored session.
func (e *Engine) Sessions(_ context.Context) ([]core.SessionRef, error) {
	refs, err := e.store.ListSessions()
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key() < refs[j].Key() })
	return refs, nil
}

func sameRecord(a, b core.MetadataRecord) bool {
	return a.ID == b.ID && a.Summary == b.Summary && a.Pointer == b.Pointer &&
		a.Claims == b.Claims && a.Tokens == b.Tokens && a.Drops == b.Drops &&
		a.Outcome == b.Outcome && a.CreatedAt.Equal(b.CreatedAt) && equalTags(a.Tags, b.Tags)
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seqOf(dropID string) int {
	var n int
	_, _ = fmt.Sscanf(dropID, "drop-%d", &n)
	return n
}

func (e *Engine) logDrop(ref core.SessionRef, plan *core.DropPlan, summary *core.DropSummary, tasks int, dur time.Duration) {
	if dl, ok := e.logger.(logging.DropLogger); ok {
		dl.LogDrop(ref.Key(), plan.DropID, string(summary.Outcome), tasks, len(summary.Unanswered), summary.TotalTokens, dur)
		return
	}
	e.logger.Info("drop completed",
		"session", ref.Key(),
		"drop", plan.DropID,
		"outcome", summary.Outcome,
		"tasks", tasks,
		"unanswered", len(summary.Unanswered),
		"needs_review", len(summary.NeedsReview),
		"tokens", summary.TotalTokens,
		"duration", dur)
}
