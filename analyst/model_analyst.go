package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/model"
	"github.com/milehighfry405/gtm-factory-sub000/worker"
)

const systemPrompt = `You are a critical analyst. AI researchers tend to agree with the question they were given; you are the counterbalance.
Review the raw researcher outputs against the user's strategic context. Flag weak evidence (single or missing sources, cherry-picked or outdated data), logical gaps, unstated assumptions and the unanswered questions that matter most for the user's decision.
Be constructive: every concern carries a recommendation. Separate critical flaws from minor issues.
Reply with one JSON object and nothing else:
{"concerns":[{"severity":"major|minor","mission_id":"","issue":"","evidence":"","recommendation":""}],"assumptions":[],"questions":[],"next_steps":[]}`

// ModelOptions configures a Model analyst.
type ModelOptions struct {
	MaxTokens int
	Logger    logging.Logger
}

// Model critiques drops with a language model.
type Model struct {
	model    model.Model
	opts     ModelOptions
	logger   logging.Logger
	fallback Heuristic
}

// Compile-time assertion.
var _ Analyst = (*Model)(nil)

// NewModel creates a model-backed analyst.
func NewModel(m model.Model, optFns ...func(o *ModelOptions)) *Model {
	opts := ModelOptions{MaxTokens: 3000}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{model: m, opts: opts, logger: logging.Component(opts.Logger, "analyst")}
}

// Analyze implements Analyst. A drop without findings has nothing to read
// and is left to the heuristic, as are unparseable replies. Model errors are
// returned.
func (a *Model) Analyze(ctx context.Context, in Input) (*core.Analysis, error) {
	answered := 0
	for i := range in.Tasks {
		if in.Tasks[i].Succeeded() {
			answered++
		}
	}
	if answered == 0 {
		return a.fallback.Analyze(ctx, in)
	}

	res, err := model.Collect(ctx, a.model, model.Request{
		System:    systemPrompt,
		Messages:  []model.Message{{Role: model.RoleUser, Text: Prompt(in)}},
		MaxTokens: a.opts.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", in.DropID, err)
	}

	out := newAnalysis(in.DropID, a.model.Info().Name)
	var raw core.Analysis
	obj := worker.ExtractJSON(res.Text)
	if obj == "" || json.Unmarshal([]byte(obj), &raw) != nil {
		a.logger.Warn("Unparseable analysis reply, using heuristic", "drop", in.DropID, "model", a.model.Info().Name)
		return a.fallback.Analyze(ctx, in)
	}
	for _, c := range raw.Concerns {
		c.Issue = strings.TrimSpace(c.Issue)
		if c.Issue == "" {
			continue
		}
		if core.Severity(strings.ToLower(string(c.Severity))) == core.SeverityMajor {
			c.Severity = core.SeverityMajor
		} else {
			c.Severity = core.SeverityMinor
		}
		out.Concerns = append(out.Concerns, c)
	}
	out.Assumptions = append(out.Assumptions, trimmed(raw.Assumptions)...)
	out.Questions = append(out.Questions, trimmed(raw.Questions)...)
	out.NextSteps = append(out.NextSteps, trimmed(raw.NextSteps)...)
	return out, nil
}

// Prompt renders the user message for a drop: the strategic context, then
// each researcher's output.
func Prompt(in Input) string {
	var b strings.Builder
	b.WriteString("<user_context>\n")
	fmt.Fprintf(&b, "Goal: %s\n", in.Brief.Goal)
	if !core.IsUnknown(in.Brief.StrategicWhy) {
		fmt.Fprintf(&b, "Why: %s\n", in.Brief.StrategicWhy)
	}
	if !core.IsUnknown(in.Brief.DecisionContext) {
		fmt.Fprintf(&b, "Decision: %s\n", in.Brief.DecisionContext)
	}
	if !core.IsUnknown(in.Brief.Hypothesis) {
		fmt.Fprintf(&b, "Hypothesis: %s\n", in.Brief.Hypothesis)
	}
	b.WriteString("</user_context>\n\n<researcher_outputs>\n")
	for _, t := range in.Tasks {
		fmt.Fprintf(&b, "### %s: %s\n", t.Mission.ID, t.Mission.FocusQuestion)
		if !t.Succeeded() {
			b.WriteString("No result.\n\n")
			continue
		}
		for _, c := range t.Findings.Claims {
			fmt.Fprintf(&b, "- [%s] %s", c.Confidence, c.Text)
			if len(c.Sources) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(c.Sources, ", "))
			}
			b.WriteString("\n")
		}
		for _, g := range t.Findings.Gaps {
			fmt.Fprintf(&b, "- gap: %s\n", g)
		}
		b.WriteString("\n")
	}
	b.WriteString("</researcher_outputs>\n")
	return b.String()
}

func trimmed(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
