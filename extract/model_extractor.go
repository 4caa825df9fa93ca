package extract

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

const systemPrompt = `You are a context extraction specialist. Read the research conversation and extract the user's strategic brief.
Reply with one JSON object and nothing else, using exactly these keys:
{"goal":"","constraints":[],"success_criteria":"","decision_context":"","strategic_why":"","hypothesis":"","mental_models":[],"priorities":{"must_have":[],"nice_to_have":[]},"angles":[]}
"angles" lists the distinct sub-questions or entities the research should cover.
Use "unknown" for any field the conversation does not establish. Never guess.`

// ModelOptions configures a Model extractor.
type ModelOptions struct {
	MaxTokens int
	Logger    logging.Logger
}

// Model extracts briefs with a language model.
type Model struct {
	model    model.Model
	opts     ModelOptions
	logger   logging.Logger
	fallback Heuristic
}

// Compile-time assertion.
var _ Extractor = (*Model)(nil)

// NewModel creates a model-backed extractor.
func NewModel(m model.Model, optFns ...func(o *ModelOptions)) *Model {
	opts := ModelOptions{MaxTokens: 2048}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{model: m, opts: opts, logger: logging.Component(opts.Logger, "extractor")}
}

// Extract implements Extractor. Model errors are returned; unparseable
// replies fall back to the heuristic.
func (e *Model) Extract(ctx context.Context, turns []core.Turn) (*Result, error) {
	res, err := model.Collect(ctx, e.model, model.Request{
		System:    systemPrompt,
		Messages:  []model.Message{{Role: model.RoleUser, Text: Transcript(turns)}},
		MaxTokens: e.opts.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract brief: %w", err)
	}

	var b core.StrategicBrief
	obj := worker.ExtractJSON(res.Text)
	if obj == "" || json.Unmarshal([]byte(obj), &b) != nil {
		e.logger.Warn("Unparseable extraction reply, using heuristic", "model", e.model.Info().Name)
		return e.fallback.Extract(ctx, turns)
	}
	b.Constraints = dropUnknown(b.Constraints)
	b.MentalModels = dropUnknown(b.MentalModels)
	b.Angles = Dedupe(dropUnknown(b.Angles))
	b.Priorities.MustHave = dropUnknown(b.Priorities.MustHave)
	b.Priorities.NiceToHave = dropUnknown(b.Priorities.NiceToHave)
	if core.IsUnknown(b.Hypothesis) {
		b.Hypothesis = ""
	}
	if core.IsUnknown(b.StrategicWhy) {
		b.StrategicWhy = ""
	}
	return newResult(b), nil
}

// Transcript renders turns as "role: content" lines.
func Transcript(turns []core.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, strings.TrimSpace(t.Content))
	}
	return sb.String()
}

func dropUnknown(items []string) []string {
	var out []string
	for _, it := range items {
		if !core.IsUnknown(it) {
			out = append(out, strings.TrimSpace(it))
		}
	}
	return out
}
