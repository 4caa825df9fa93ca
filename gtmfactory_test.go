package gtmfactory

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/config"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/testutil"
	"github.com/milehighfry405/gtm-factory-sub000/synthesis"
)

const goal = "I want to research ACME's pricing. We need to decide whether to enter the mid-market segment. " +
	"Budget is limited to public sources only. Success means I know their price range."

var ref = core.SessionRef{ProjectID: "acme", SessionID: "pricing"}

func TestFactory_DropLifecycle(t *testing.T) {
	w := testutil.NewScriptedWorker().On("m1",
		testutil.Step{Findings: testutil.NewFindingsBuilder("m1").Claim("Pricing: $50 per seat", core.ConfidenceMedium, "https://acme.example/pricing").Build()},
		testutil.Step{Findings: testutil.NewFindingsBuilder("m1").Claim("Pricing: $45 per seat", core.ConfidenceHigh, "https://acme.example/pricing-2026").Build()},
	)
	f := New(w)
	ctx := context.Background()

	for range 2 {
		_, err := f.PlanGoal(ctx, ref, goal)
		require.NoError(t, err)
		require.NoError(t, f.Approve(ctx, ref))
		summary, err := f.Execute(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, core.OutcomeSuccess, summary.Outcome)
	}

	doc, err := f.GetLivingDocument(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimCounts{Total: 2, Active: 1, Invalidated: 1}, doc.Counts())

	var page bytes.Buffer
	require.NoError(t, f.ExportHTML(ctx, ref, &page))
	assert.Contains(t, page.String(), "<title>Living Document: acme/pricing</title>")
	assert.Contains(t, page.String(), "<del>Pricing: $50 per seat</del>")

	related, err := f.FindRelated(ctx, []string{"pricing"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, related)
	assert.Equal(t, "acme/pricing", related[0].ID)
}

func TestFactory_PlanGoalNeedsClarification(t *testing.T) {
	f := New(testutil.NewScriptedWorker())

	_, err := f.PlanGoal(context.Background(), ref, "hello")
	var pe *core.PlanningError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.Questions)
}

func TestNewFromConfig_MockProviderWithSQLiteCatalog(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Store.Root = root
	cfg.Index.Catalog = config.CatalogSQLite
	cfg.Index.Path = filepath.Join(root, "catalog.db")
	cfg.Model.Provider = config.ProviderMock
	cfg.Logging.File = filepath.Join(root, "logs", "gtm.log")
	ctx := context.Background()

	f, err := NewFromConfig(cfg)
	require.NoError(t, err)
	_, err = f.PlanGoal(ctx, ref, goal)
	require.NoError(t, err)
	require.NoError(t, f.Approve(ctx, ref))
	summary, err := f.Execute(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, summary.Outcome)
	assert.Equal(t, []string{"m1: mock provider: no research was performed"}, summary.WorkerGaps)
	require.NoError(t, f.Close())

	reopened, err := NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	n, err := reopened.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	related, err := reopened.FindRelated(ctx, []string{"pricing"}, 5)
	require.NoError(t, err)
	assert.Len(t, related, 2)

	sess, err := reopened.Session(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.StateSynthesisComplete, sess.State)
	assert.Equal(t, 1, sess.Drops)
}

func TestRater(t *testing.T) {
	assert.Equal(t, core.ConfidenceHigh, Rater(config.SourcePolicyReported).Rate("internal wiki"))
	assert.Equal(t, core.ConfidenceLow, Rater(config.SourcePolicyURL).Rate("internal wiki"))
	assert.Equal(t, core.ConfidenceMedium, synthesis.Effective(core.ConfidenceMedium, []string{"internal wiki"}, Rater(config.SourcePolicyReported)))
}

func TestWriteHTML_EscapesTitle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "<acme>", "# Heading\n\n- ~~old~~ new\n"))
	assert.Contains(t, buf.String(), "<title>&lt;acme&gt;</title>")
	assert.Contains(t, buf.String(), "<h1>Heading</h1>")
	assert.Contains(t, buf.String(), "<del>old</del>")
}
