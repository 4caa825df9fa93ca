package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
)

var (
	ref   = core.SessionRef{ProjectID: "acme", SessionID: "s1"}
	fixed = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func fullBrief(angles ...string) core.StrategicBrief {
	return core.StrategicBrief{
		Goal:            "Understand competitor pricing",
		Constraints:     []string{"North America only"},
		SuccessCriteria: "A price range per competitor",
		DecisionContext: "Set our launch price",
		Angles:          angles,
	}
}

func newPlanner(optFns ...func(o *Options)) *Planner {
	return New(append([]func(o *Options){func(o *Options) { o.Clock = func() time.Time { return fixed } }}, optFns...)...)
}

func TestPlan_SingleMissionWithoutAngles(t *testing.T) {
	plan, err := newPlanner().Plan(context.Background(), ref, 1, fullBrief())
	require.NoError(t, err)

	require.Len(t, plan.Missions, 1)
	m := plan.Missions[0]
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "Understand competitor pricing", m.FocusQuestion)
	assert.Equal(t, 4000, m.TokenBudget)
	assert.Equal(t, "A price range per competitor", m.SuccessCriteria)
	assert.Equal(t, 5*time.Minute, m.Timeout)
	assert.Equal(t, "drop-1", plan.DropID)
	assert.Equal(t, fixed, plan.CreatedAt)
	assert.Equal(t, 4, plan.MaxWorkers)
	assert.Equal(t, "Understand competitor pricing", plan.Brief.Goal)
}

func TestPlan_OneMissionPerAngle(t *testing.T) {
	plan, err := newPlanner().Plan(context.Background(), ref, 2, fullBrief("Acme pricing", "What does Globex charge?", "acme pricing."))
	require.NoError(t, err)

	require.Len(t, plan.Missions, 2)
	assert.Equal(t, "What does the evidence show about Acme pricing, for the goal: Understand competitor pricing?", plan.Missions[0].FocusQuestion)
	assert.Equal(t, "What does Globex charge?", plan.Missions[1].FocusQuestion)
	assert.NoError(t, plan.Validate())
}

func TestPlan_CapsAtMaxWorkersAndDefersRest(t *testing.T) {
	p := newPlanner(func(o *Options) { o.MaxWorkers = 2 })
	plan, err := p.Plan(context.Background(), ref, 1, fullBrief("a?", "b?", "c?", "d?"))
	require.NoError(t, err)

	assert.Len(t, plan.Missions, 2)
	assert.Equal(t, []string{"c?", "d?"}, plan.Deferred)
	assert.Equal(t, 4, Complexity(plan.Brief))
}

func TestPlan_InsufficientContext(t *testing.T) {
	tests := []struct {
		name  string
		brief core.StrategicBrief
	}{
		{"unknown goal", core.StrategicBrief{Constraints: []string{"x"}, SuccessCriteria: "y", DecisionContext: "z"}},
		{"too many unknowns", core.StrategicBrief{Goal: "Understand pricing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newPlanner().Plan(context.Background(), ref, 1, tt.brief)
			require.ErrorIs(t, err, core.ErrInsufficientContext)

			var pe *core.PlanningError
			require.True(t, errors.As(err, &pe))
			assert.NotEmpty(t, pe.Unknown)
			assert.Len(t, pe.Questions, len(pe.Unknown))
			assert.Equal(t, core.ExitPlanning, core.ExitCode(err))
		})
	}
}

func TestPlan_TwoUnknownsAllowed(t *testing.T) {
	brief := core.StrategicBrief{Goal: "Understand pricing", Constraints: []string{"EU"}}
	_, err := newPlanner().Plan(context.Background(), ref, 1, brief)
	assert.NoError(t, err)
}

func TestPlan_BriefingIsSelfContained(t *testing.T) {
	brief := fullBrief("What does Globex charge?", "Who buys from Initech?")
	brief.Hypothesis = "Globex undercuts everyone"
	brief.MentalModels = []string{"Price anchors on seats"}

	plan, err := newPlanner().Plan(context.Background(), ref, 1, brief)
	require.NoError(t, err)

	ctx := plan.Missions[0].StrategicContext
	for _, want := range []string{
		"# RESEARCH MISSION\nWhat does Globex charge?",
		"## Overall Goal\nUnderstand competitor pricing",
		"## Decision Impact\nSet our launch price",
		"## Success Threshold\nA price range per competitor",
		"- Price anchors on seats",
		"# HYPOTHESIS BEING TESTED\nGlobex undercuts everyone",
		"Target: 4000 tokens.",
		"- North America only",
		"- Who buys from Initech?",
		"- High: multiple authoritative sources",
	} {
		assert.Contains(t, ctx, want)
	}
	assert.NotContains(t, ctx, "# PRIOR WORK")
	assert.NotContains(t, ctx, "&#39;")
}

func TestPlan_QuotesRelatedPriorWork(t *testing.T) {
	catalog := memory.NewInMemoryStore()
	require.NoError(t, catalog.Put(core.MetadataRecord{
		ID:        "acme/s0/drop-1",
		Kind:      core.MetadataDrop,
		Tags:      []string{"pricing"},
		Summary:   "Globex lists $40 per seat.",
		Pointer:   "acme/s0/drop-1/summary.json",
		CreatedAt: fixed,
	}))
	require.NoError(t, catalog.Put(core.MetadataRecord{
		ID:      "acme/s0/drop-2",
		Tags:    []string{"hiring"},
		Pointer: "acme/s0/drop-2/summary.json",
	}))

	plan, err := newPlanner(func(o *Options) { o.Catalog = catalog }).Plan(context.Background(), ref, 1, fullBrief())
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/s0/drop-1"}, plan.Related)
	assert.Contains(t, plan.Missions[0].StrategicContext, "# PRIOR WORK\n- acme/s0/drop-1 [pricing]: Globex lists $40 per seat.")
}

func TestPlan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPlanner().Plan(ctx, ref, 1, fullBrief())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlan_Deterministic(t *testing.T) {
	brief := fullBrief("a?", "b?")
	a, err := newPlanner().Plan(context.Background(), ref, 1, brief)
	require.NoError(t, err)
	b, err := newPlanner().Plan(context.Background(), ref, 1, brief)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
