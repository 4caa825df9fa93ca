package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/analyst"
	"github.com/milehighfry405/gtm-factory-sub000/artifact"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/dispatch"
	"github.com/milehighfry405/gtm-factory-sub000/index"
	"github.com/milehighfry405/gtm-factory-sub000/internal/testutil"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
	"github.com/milehighfry405/gtm-factory-sub000/planner"
	"github.com/milehighfry405/gtm-factory-sub000/session"
	"github.com/milehighfry405/gtm-factory-sub000/synthesis"
)

const (
	src   = "https://example.com/report"
	brief = "I want to research ACME's pricing. We need to decide whether to enter the mid-market segment. " +
		"Budget is limited to public sources only. Success means I know their price range."
)

var ref = core.SessionRef{ProjectID: "acme", SessionID: "s1"}

type fixture struct {
	blobs  *artifact.InMemoryStore
	store  *session.Store
	worker *testutil.ScriptedWorker
	engine *Engine
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	blobs := artifact.NewInMemoryStore()
	store := session.New(blobs)
	worker := testutil.NewScriptedWorker()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	catalog := memory.NewInMemoryStore()
	indexer := index.New()
	base := []func(o *Options){func(o *Options) {
		o.Clock = clock
		o.Catalog = catalog
		o.Indexer = indexer
		o.Planner = planner.New(func(p *planner.Options) {
			p.Catalog = catalog
			p.Indexer = indexer
			p.Clock = clock
			p.Timeout = 100 * time.Millisecond
		})
		o.Dispatcher = dispatch.New(worker, func(d *dispatch.Options) {
			d.Backoff = time.Millisecond
		})
	}}
	return &fixture{blobs: blobs, store: store, worker: worker, engine: New(store, worker, append(base, optFns...)...)}
}

func user(s string) core.Turn { return core.Turn{Role: core.RoleUser, Content: s} }

// runDrop converses (optionally), plans, approves and executes one drop.
func (f *fixture) runDrop(t *testing.T, msg string) *core.DropSummary {
	t.Helper()
	ctx := context.Background()
	if msg != "" {
		_, err := f.engine.Converse(ctx, ref, user(msg))
		require.NoError(t, err)
	}
	_, err := f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))
	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)
	return summary
}

func (f *fixture) state(t *testing.T) core.SessionState {
	t.Helper()
	sess, err := f.engine.Session(context.Background(), ref)
	require.NoError(t, err)
	return sess.State
}

func medium(text string) testutil.Step {
	return testutil.Step{Findings: testutil.NewFindingsBuilder("").Claim(text, core.ConfidenceMedium, src).Tokens(100).Build()}
}

func high(text string) testutil.Step {
	return testutil.Step{Findings: testutil.NewFindingsBuilder("").Claim(text, core.ConfidenceHigh, src).Tokens(100).Build()}
}

func TestEngine_SingleDrop(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Sales cycle: 6-9 months for enterprise"))
	ctx := context.Background()

	res, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	assert.True(t, res.Result.Complete())
	assert.Equal(t, core.StateAwaitingClarification, res.Session.State)

	plan, err := f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "drop-1", plan.DropID)
	assert.Equal(t, core.StatePlanProposed, f.state(t))

	require.NoError(t, f.engine.Approve(ctx, ref))
	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSuccess, summary.Outcome)
	assert.Len(t, summary.Changes.Added, 1)
	assert.Equal(t, core.ClaimCounts{Total: 1, Active: 1}, summary.Counts)
	assert.Equal(t, 1, summary.DocumentVersion)
	assert.Equal(t, 100, summary.TotalTokens)
	assert.Equal(t, core.ExitOK, core.SummaryExitCode(summary))
	assert.Equal(t, core.StateSynthesisComplete, f.state(t))

	doc, err := f.engine.GetLivingDocument(ctx, ref)
	require.NoError(t, err)
	require.Len(t, doc.Claims, 1)
	assert.Equal(t, core.ConfidenceMedium, doc.Claims[0].Confidence)

	tasks, err := f.store.GetTasks(ref, "drop-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	recs, err := f.store.Metadata(ref)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "acme/s1/drop-1", recs[0].ID)
	assert.Equal(t, "acme/s1", recs[1].ID)

	related, err := f.engine.FindRelated(ctx, []string{"pricing"}, 10)
	require.NoError(t, err)
	assert.Len(t, related, 2)

	sess, err := f.engine.Session(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Drops)
	assert.Empty(t, sess.CurrentDrop)
}

func TestEngine_SecondDropSupersedes(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Sales cycle: 6-9 months for enterprise"), high("Sales cycle: 3-6 months for partnerships"))

	f.runDrop(t, brief)
	summary := f.runDrop(t, "")

	assert.Equal(t, "drop-2", summary.DropID)
	assert.Len(t, summary.Changes.Invalidated, 1)
	assert.Equal(t, core.ClaimCounts{Total: 2, Active: 1, Invalidated: 1}, summary.Counts)
	assert.Equal(t, 2, summary.DocumentVersion)
}

func TestEngine_TimedOutWorkerIsAGap(t *testing.T) {
	f := newFixture(t)
	f.worker.
		On("m1", medium("Pricing: $50 per seat")).
		On("m2", testutil.Step{Block: true})

	summary := f.runDrop(t, brief+"\n- pricing tiers\n- sales cycle length")

	assert.Equal(t, core.OutcomePartial, summary.Outcome)
	require.Len(t, summary.Unanswered, 1)
	assert.Equal(t, "m2", summary.Unanswered[0].MissionID)
	assert.Equal(t, core.FailureTimeout, summary.Unanswered[0].Kind)
	assert.Equal(t, 2, summary.Tasks[1].Attempts)
	assert.Equal(t, core.ClaimCounts{Total: 1, Active: 1}, summary.Counts)
	assert.Equal(t, core.ExitWorker, core.SummaryExitCode(summary))
}

func TestEngine_AllFailedDropIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", testutil.Step{Err: errors.New("boom")})

	summary := f.runDrop(t, brief)
	assert.Equal(t, core.OutcomeAllFailed, summary.Outcome)
	assert.Equal(t, 0, summary.DocumentVersion)
	assert.True(t, summary.Changes.Empty())
	assert.Equal(t, core.StateSynthesisComplete, f.state(t))
}

func TestEngine_ContestedClaimsNeedReview(t *testing.T) {
	f := newFixture(t)
	f.worker.
		On("m1", medium("Pricing: $50 per seat")).
		On("m2", medium("Pricing: $80 per seat"))

	summary := f.runDrop(t, brief+"\n- pricing tiers\n- discounts")
	require.Len(t, summary.NeedsReview, 2)
	assert.Equal(t, core.ExitContested, core.SummaryExitCode(summary))

	winner := synthesis.ClaimID("drop-1", "Pricing: $80 per seat")
	doc, err := f.engine.Resolve(context.Background(), ref, winner)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimCounts{Total: 2, Active: 1, Invalidated: 1}, doc.Counts())

	stored, err := f.engine.GetLivingDocument(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestEngine_PlanNeedsContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Converse(ctx, ref, user("hi there"))
	require.NoError(t, err)
	assert.Len(t, res.Result.Questions, 4)

	_, err = f.engine.Plan(ctx, ref)
	require.ErrorIs(t, err, core.ErrInsufficientContext)
	assert.Equal(t, core.ExitPlanning, core.ExitCode(err))

	sess, err := f.engine.Session(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.StateAwaitingClarification, sess.State)
	assert.NotEmpty(t, sess.Questions)
}

func TestEngine_WorkflowGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Plan(ctx, ref)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)

	_, err = f.engine.Execute(ctx, ref)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.ErrorIs(t, f.engine.Approve(ctx, ref), core.ErrInvalidTransition)

	_, err = f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))
	_, err = f.engine.Converse(ctx, ref, user("more"))
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "approved plans must run or be closed")

	require.NoError(t, f.engine.Close(ctx, ref))
	_, err = f.engine.Converse(ctx, ref, user("more"))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestEngine_RejectReplansSameDrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	first, err := f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.Len(t, first.Missions, 1)

	require.NoError(t, f.engine.Reject(ctx, ref, "- competitor pricing\n- channel discounts"))
	assert.Equal(t, core.StateAwaitingClarification, f.state(t))

	second, err := f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.DropID, second.DropID)
	assert.Len(t, second.Missions, 2)

	stored, err := f.engine.CurrentPlan(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, second.Missions, stored.Missions)
}

func TestEngine_RecoverInterruptedDrop(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Pricing: $50 per seat"))
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	_, err = f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))

	// Simulate a crash after the session entered executing.
	sess, err := f.store.GetSession(ref)
	require.NoError(t, err)
	require.NoError(t, sess.Transition(core.StateExecuting, time.Now()))
	require.NoError(t, f.store.SaveSession(sess))

	recovered, err := f.engine.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.SessionRef{ref}, recovered)
	assert.Equal(t, core.StatePlanApproved, f.state(t))

	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, summary.Outcome)

	ok, err := f.engine.Recover(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_ReexecuteAfterSynthesisCrash(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Pricing: $50 per seat"))
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	plan, err := f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))

	// The document was synthesized but the summary never landed.
	doc, _ := synthesis.New().Apply(core.NewLivingDocument("acme", "s1"), synthesis.Drop{ID: plan.DropID, Seq: plan.Seq},
		[]core.Findings{*testutil.NewFindingsBuilder("m1").Claim("Pricing: $50 per seat", core.ConfidenceMedium, src).Tokens(100).Build()})
	require.NoError(t, f.store.SaveDocument(ref, doc))

	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentVersion)
	assert.Len(t, summary.Changes.Added, 1)
	assert.Equal(t, core.ClaimCounts{Total: 1, Active: 1}, summary.Counts)
}

func TestEngine_PersistenceFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Pricing: $50 per seat"))
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	_, err = f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))

	f.blobs.FailWrites(func(_, artifactID string) error {
		if artifactID == "drop-1/summary.json" {
			return errors.New("disk full")
		}
		return nil
	})
	_, err = f.engine.Execute(ctx, ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.Equal(t, core.ExitPersistence, core.ExitCode(err))
	assert.Equal(t, core.StateExecuting, f.state(t))
	_, err = f.store.GetSummary(ref, "drop-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	f.blobs.FailWrites(nil)
	ok, err := f.engine.Recover(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentVersion)
	assert.Equal(t, core.ClaimCounts{Total: 1, Active: 1}, summary.Counts)
}

func TestEngine_ResumeKeepsPersistedResults(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Pricing: $50 per seat"), medium("Pricing: $55 per seat"))
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	_, err = f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))

	// The document lands, the summary does not.
	f.blobs.FailWrites(func(_, artifactID string) error {
		if artifactID == "drop-1/summary.json" {
			return errors.New("disk full")
		}
		return nil
	})
	_, err = f.engine.Execute(ctx, ref)
	require.ErrorIs(t, err, core.ErrPersistence)
	before, err := f.store.GetTasks(ref, "drop-1")
	require.NoError(t, err)
	require.Len(t, before, 1)

	f.blobs.FailWrites(nil)
	ok, err := f.engine.Recover(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := f.engine.Execute(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentVersion)
	assert.Len(t, summary.Changes.Added, 1)
	assert.Equal(t, core.StateSynthesisComplete, f.state(t))
	assert.Equal(t, 1, f.worker.Calls("m1"), "persisted results are not dispatched again")

	after, err := f.store.GetTasks(ref, "drop-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	doc, err := f.engine.GetLivingDocument(ctx, ref)
	require.NoError(t, err)
	require.Len(t, doc.Claims, 1)
	assert.Equal(t, "Pricing: $50 per seat", doc.Claims[0].Text)
}

func TestEngine_Abandon(t *testing.T) {
	ctx := context.Background()
	openDrop := func(t *testing.T, f *fixture) *core.DropPlan {
		t.Helper()
		_, err := f.engine.Converse(ctx, ref, user(brief+"\n- pricing tiers\n- discounts"))
		require.NoError(t, err)
		plan, err := f.engine.Plan(ctx, ref)
		require.NoError(t, err)
		require.Len(t, plan.Missions, 2)
		require.NoError(t, f.engine.Approve(ctx, ref))
		return plan
	}

	t.Run("interrupted drop", func(t *testing.T) {
		f := newFixture(t)
		plan := openDrop(t, f)

		// Crash after the first task landed.
		done := &core.WorkerTask{
			ID:         "task-1",
			DropID:     plan.DropID,
			Mission:    plan.Missions[0],
			Status:     core.TaskSucceeded,
			Attempts:   1,
			TokensUsed: 100,
			Findings:   testutil.NewFindingsBuilder("m1").Claim("Pricing: $50 per seat", core.ConfidenceMedium, src).Tokens(100).Build(),
		}
		require.NoError(t, f.store.SaveTask(ref, done))
		sess, err := f.store.GetSession(ref)
		require.NoError(t, err)
		require.NoError(t, sess.Transition(core.StateExecuting, time.Now()))
		require.NoError(t, f.store.SaveSession(sess))

		summary, err := f.engine.Abandon(ctx, ref, "operator cancelled")
		require.NoError(t, err)

		assert.Equal(t, core.OutcomeAllFailed, summary.Outcome)
		assert.Equal(t, core.ExitWorker, core.SummaryExitCode(summary))
		require.Len(t, summary.Unanswered, 2)
		assert.Equal(t, "operator cancelled", summary.Unanswered[0].Reason)
		assert.Equal(t, "operator cancelled", summary.Unanswered[1].Reason)
		assert.True(t, summary.Changes.Empty())
		assert.Equal(t, 0, summary.DocumentVersion)
		assert.Equal(t, 100, summary.TotalTokens)
		assert.Equal(t, 0, f.worker.Calls("m1")+f.worker.Calls("m2"))

		tasks, err := f.store.GetTasks(ref, plan.DropID)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, core.TaskSucceeded, tasks[0].Status, "persisted results are kept as they are")
		assert.Equal(t, core.TaskFailed, tasks[1].Status)

		assert.Equal(t, core.StateSynthesisComplete, f.state(t))
		next, err := f.engine.Plan(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "drop-2", next.DropID)
	})

	t.Run("already synthesized", func(t *testing.T) {
		f := newFixture(t)
		f.worker.On("m1", medium("Pricing: $50 per seat"))
		openDrop(t, f)
		f.blobs.FailWrites(func(_, artifactID string) error {
			if artifactID == "drop-1/summary.json" {
				return errors.New("disk full")
			}
			return nil
		})
		_, err := f.engine.Execute(ctx, ref)
		require.Error(t, err)
		f.blobs.FailWrites(nil)

		_, err = f.engine.Abandon(ctx, ref, "")
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
		assert.Equal(t, core.StateExecuting, f.state(t))
	})

	t.Run("no open drop", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Converse(ctx, ref, user(brief))
		require.NoError(t, err)

		_, err = f.engine.Abandon(ctx, ref, "")
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func TestEngine_Reindex(t *testing.T) {
	f := newFixture(t)
	f.worker.On("m1", medium("Pricing: $50 per seat"), high("Pricing: $45 per seat"))
	f.runDrop(t, brief)
	f.runDrop(t, "")

	catalog := memory.NewInMemoryStore()
	fresh := New(f.store, f.worker, func(o *Options) { o.Catalog = catalog })
	n, err := fresh.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, catalog.Len())

	before, err := f.store.Metadata(ref)
	require.NoError(t, err)
	_, err = fresh.Reindex(context.Background())
	require.NoError(t, err)
	after, err := f.store.Metadata(ref)
	require.NoError(t, err)
	assert.Equal(t, before, after, "regenerated records are identical")
}

func TestEngine_Callbacks(t *testing.T) {
	cm := NewCallbackManager()
	var tasks, drops int
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterTask, func(_ context.Context, c *CallbackContext) error {
		tasks++
		return nil
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterDrop, func(_ context.Context, c *CallbackContext) error {
		drops++
		return errors.New("ignored")
	}))
	var logged []string
	cm.RegisterCallback(NewLoggingCallback(CallbackOnStateChange, func(msg string) { logged = append(logged, msg) }))

	f := newFixture(t, func(o *Options) { o.Callbacks = cm })
	f.runDrop(t, brief+"\n- pricing tiers\n- discounts")

	assert.Equal(t, 2, tasks)
	assert.Equal(t, 1, drops)
	assert.Contains(t, logged, "[on_state_change] session=acme/s1 plan_approved -> executing")
}

func TestEngine_TransitionGuardVetoes(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewTransitionGuard(func(from, to core.SessionState) error {
		if to == core.StateExecuting {
			return errors.New("frozen")
		}
		return nil
	}))
	f := newFixture(t, func(o *Options) { o.Callbacks = cm })
	ctx := context.Background()

	_, err := f.engine.Converse(ctx, ref, user(brief))
	require.NoError(t, err)
	_, err = f.engine.Plan(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, ref))

	_, err = f.engine.Execute(ctx, ref)
	assert.ErrorContains(t, err, "frozen")
	assert.Equal(t, core.StatePlanApproved, f.state(t))
	assert.Equal(t, 0, f.worker.Calls("m1"))
}

type failingAnalyst struct{}

func (failingAnalyst) Analyze(context.Context, analyst.Input) (*core.Analysis, error) {
	return nil, errors.New("critic unavailable")
}

func TestEngine_CriticalAnalysis(t *testing.T) {
	t.Run("written next to the drop", func(t *testing.T) {
		f := newFixture(t)
		f.worker.On("m1", testutil.Step{Findings: testutil.NewFindingsBuilder("").
			Claim("Pricing: $50 per seat", core.ConfidenceMedium).Gap("no enterprise tiers").Build()})

		summary := f.runDrop(t, brief)
		assert.Equal(t, "drop-1/analysis.json", summary.Analysis)

		a, err := f.engine.Analysis(context.Background(), ref, "drop-1")
		require.NoError(t, err)
		assert.Equal(t, "drop-1", a.DropID)
		assert.False(t, a.CreatedAt.IsZero())
		require.Len(t, a.Concerns, 1)
		assert.Equal(t, "Claim cites no source", a.Concerns[0].Issue)
		assert.Equal(t, []string{"no enterprise tiers"}, a.Questions)

		doc, err := f.engine.GetLivingDocument(context.Background(), ref)
		require.NoError(t, err)
		require.Len(t, doc.Claims, 1)
		assert.Equal(t, core.ClaimActive, doc.Claims[0].Status, "the analysis never changes claims")
	})

	t.Run("analyst failure keeps the drop", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Analyst = failingAnalyst{} })
		f.worker.On("m1", medium("Pricing: $50 per seat"))

		summary := f.runDrop(t, brief)
		assert.Equal(t, core.OutcomeSuccess, summary.Outcome)
		assert.Empty(t, summary.Analysis)
		_, err := f.engine.Analysis(context.Background(), ref, "drop-1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("write failure is a persistence error", func(t *testing.T) {
		f := newFixture(t)
		f.worker.On("m1", medium("Pricing: $50 per seat"))
		f.blobs.FailWrites(func(_, artifactID string) error {
			if artifactID == "drop-1/analysis.json" {
				return errors.New("disk full")
			}
			return nil
		})
		ctx := context.Background()
		_, err := f.engine.Converse(ctx, ref, user(brief))
		require.NoError(t, err)
		_, err = f.engine.Plan(ctx, ref)
		require.NoError(t, err)
		require.NoError(t, f.engine.Approve(ctx, ref))

		_, err = f.engine.Execute(ctx, ref)
		assert.ErrorIs(t, err, core.ErrPersistence)
		_, err = f.store.GetSummary(ref, "drop-1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}
