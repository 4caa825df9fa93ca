package index

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var completed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDrop() (*core.DropPlan, *core.DropSummary, *core.LivingDocument) {
	plan := &core.DropPlan{
		ProjectID: "acme",
		SessionID: "s1",
		DropID:    "drop-1",
		Seq:       1,
		Brief: core.StrategicBrief{
			Goal:            "Understand competitor pricing for mid-market buyers",
			DecisionContext: "Choose our launch price",
		},
		Missions: []core.WorkerMission{
			{ID: "m1", FocusQuestion: "What do competitors charge per seat?", TokenBudget: 100},
			{ID: "m2", FocusQuestion: "How long is the typical sales cycle?", TokenBudget: 100},
		},
	}
	summary := &core.DropSummary{
		ProjectID: "acme",
		SessionID: "s1",
		DropID:    "drop-1",
		Seq:       1,
		Outcome:   core.OutcomePartial,
		Tasks: []core.TaskOutcome{
			{TaskID: "task-1", MissionID: "m1", Status: core.TaskSucceeded},
			{TaskID: "task-2", MissionID: "m2", Status: core.TaskTimedOut},
		},
		Unanswered:  []core.Gap{{MissionID: "m2", FocusQuestion: "How long is the typical sales cycle?", Kind: core.FailureTimeout}},
		Counts:      core.ClaimCounts{Total: 1, Active: 1},
		TotalTokens: 420,
		CompletedAt: completed,
	}
	doc := &core.LivingDocument{
		ProjectID: "acme",
		SessionID: "s1",
		Version:   1,
		Claims: []core.Claim{
			{ID: "c1", Text: "Competitor X charges $50 per seat.", Confidence: core.ConfidenceMedium, DropID: "drop-1", DropSeq: 1, Status: core.ClaimActive},
		},
	}
	return plan, summary, doc
}

func TestVocabularyTags(t *testing.T) {
	tags := DefaultVocabulary.Tags("Competitor pricing in EMEA", "What is the TAM?")
	assert.Equal(t, []string{"competitors", "geography", "market-size", "pricing"}, tags)

	assert.Empty(t, DefaultVocabulary.Tags("nothing relevant here"))
	assert.NotContains(t, DefaultVocabulary.Tags("said fairly"), "technology", "short triggers match whole words only")
}

func TestVocabularyTagsCapped(t *testing.T) {
	text := "pricing sales cycle competitor icp market size partner funding hiring product customer api gdpr europe gtm risk"
	tags := DefaultVocabulary.Tags(text)
	assert.Len(t, tags, MaxTags)
	assert.IsNonDecreasing(t, tags)
	for _, tag := range tags {
		assert.True(t, DefaultVocabulary.Contains(tag))
	}
}

func TestDropRecord(t *testing.T) {
	ix := New()
	plan, summary, doc := testDrop()

	rec, err := ix.DropRecord(plan, summary, doc)
	require.NoError(t, err)

	assert.Equal(t, "acme/s1/drop-1", rec.ID)
	assert.Equal(t, core.MetadataDrop, rec.Kind)
	assert.Equal(t, "acme/s1/drop-1/summary.json", rec.Pointer)
	assert.Equal(t, completed, rec.CreatedAt)
	assert.Equal(t, core.OutcomePartial, rec.Outcome)
	assert.Equal(t, 420, rec.Tokens)
	assert.Contains(t, rec.Tags, "pricing")
	assert.Contains(t, rec.Tags, "competitors")
	assert.Contains(t, rec.Tags, "sales-cycle")
	assert.Contains(t, rec.Summary, "answered 1 of 2 missions")
	assert.Contains(t, rec.Summary, "Key findings: Competitor X charges $50 per seat.")
	assert.Contains(t, rec.Summary, "Unanswered: How long is the typical sales cycle.")
	assert.NotContains(t, rec.Summary, "\n")
	assert.Less(t, rec.Size(), core.MaxMetadataBytes)
}

func TestDropRecordDeterministic(t *testing.T) {
	plan, summary, doc := testDrop()
	a, err := New().DropRecord(plan, summary, doc)
	require.NoError(t, err)
	b, err := New().DropRecord(plan, summary, doc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDropRecordStaysUnderLimit(t *testing.T) {
	plan, summary, doc := testDrop()
	long := strings.Repeat("pricing competitor europe funding hiring ", 200)
	plan.Brief.Goal = long
	doc.Claims[0].Text = long

	rec, err := New().DropRecord(plan, summary, doc)
	require.NoError(t, err)
	assert.Less(t, rec.Size(), core.MaxMetadataBytes)
	assert.True(t, strings.HasSuffix(rec.Summary, "…"))
	assert.NotEmpty(t, rec.Tags)
}

func TestDropRecordRequiresInputs(t *testing.T) {
	_, err := New().DropRecord(nil, nil, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSessionRecord(t *testing.T) {
	_, summary, doc := testDrop()
	sess := core.NewSession(core.SessionRef{ProjectID: "acme", SessionID: "s1"}, completed.Add(-time.Hour))
	brief := core.StrategicBrief{Goal: "Understand competitor pricing"}
	sess.Brief = &brief

	second := *summary
	second.DropID, second.Seq = "drop-2", 2
	second.TotalTokens = 80
	second.CompletedAt = completed.Add(time.Hour)

	rec, err := New().SessionRecord(sess, []core.DropSummary{*summary, second}, doc)
	require.NoError(t, err)

	assert.Equal(t, "acme/s1", rec.ID)
	assert.Equal(t, core.MetadataSession, rec.Kind)
	assert.Equal(t, "acme/s1/living-document.json", rec.Pointer)
	assert.Equal(t, 2, rec.Drops)
	assert.Equal(t, 500, rec.Tokens)
	assert.Equal(t, second.CompletedAt, rec.CreatedAt)
	assert.Equal(t, core.ClaimCounts{Total: 1, Active: 1}, rec.Claims)
	assert.Contains(t, rec.Summary, "2 drops produced 1 active, 0 invalidated and 0 contested claims (document v1).")
	assert.Contains(t, rec.Tags, "pricing")
}

func TestSessionRecordWithoutDrops(t *testing.T) {
	sess := core.NewSession(core.SessionRef{ProjectID: "acme", SessionID: "s2"}, completed)
	rec, err := New().SessionRecord(sess, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, completed, rec.CreatedAt)
	assert.Contains(t, rec.Summary, "Session on: unknown.")
	assert.Empty(t, rec.Tags)
}
