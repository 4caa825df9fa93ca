package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/model"
)

// DefaultSystemPrompt instructs the model to answer with machine readable findings.
const DefaultSystemPrompt = `You are a focused research worker. Answer only the mission you are given.
Reply with a single JSON object and nothing else:
{"claims":[{"topic":"short topic","text":"one factual assertion","confidence":"High|Medium|Low","sources":["https://..."]}],"gaps":["what you could not determine"]}
Confidence: High means multiple authoritative sources, Medium means limited but credible sources, Low means a single source or contradictory signals.
Never invent sources. Put anything you could not verify in gaps.`

// Options configures a ModelWorker. CostPer1KTokens converts token usage
// into USD.
type Options struct {
	SystemPrompt    string
	CostPer1KTokens float64
	Logger          logging.Logger
}

// ModelWorker executes missions against a language model.
type ModelWorker struct {
	model  model.Model
	opts   Options
	logger logging.Logger
}

// Compile-time assertion.
var _ core.Worker = (*ModelWorker)(nil)

// NewModelWorker creates a worker backed by m.
func NewModelWorker(m model.Model, optFns ...func(o *Options)) *ModelWorker {
	opts := Options{SystemPrompt: DefaultSystemPrompt}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelWorker{model: m, opts: opts, logger: logging.Component(opts.Logger, "worker")}
}

// Execute implements core.Worker. Token usage and cost are charged to the
// meter carried by ctx, if any, so the dispatcher can enforce the mission
// budget. The completion is capped at what the budget leaves after the
// prompt; when nothing is left the model is not called.
func (w *ModelWorker) Execute(ctx context.Context, mission core.WorkerMission) (*core.Findings, error) {
	prompt := Prompt(mission)
	meter, metered := core.MeterFromContext(ctx)

	maxTokens, err := w.completionBudget(mission, prompt, meter)
	if err != nil {
		return nil, err
	}
	req := model.Request{
		System:    w.opts.SystemPrompt,
		Messages:  []model.Message{{Role: model.RoleUser, Text: prompt}},
		MaxTokens: maxTokens,
		JSON:      true,
	}

	start := time.Now()
	res, err := model.Collect(ctx, w.model, req)
	if err != nil {
		return nil, classify(ctx, err)
	}

	tokens := res.Usage.TotalTokens
	if tokens == 0 {
		tokens = core.EstimateTokens(w.opts.SystemPrompt+prompt) + core.EstimateTokens(res.Text)
	}
	cost := float64(tokens) / 1000 * w.opts.CostPer1KTokens
	if metered {
		meter.AddCost(cost)
		if err := meter.Charge(tokens); err != nil {
			return nil, core.NewWorkerError(core.FailureBudgetExceeded, err)
		}
	}

	findings, err := ParseFindings(res.Text)
	if err != nil {
		return nil, core.NewWorkerError(core.FailureWorker, err)
	}
	findings.MissionID = mission.ID
	findings.Usage = core.Usage{Tokens: tokens, CostUSD: cost}

	w.logger.Debug("Mission answered", "mission_id", mission.ID, "claims", len(findings.Claims),
		"gaps", len(findings.Gaps), "tokens", tokens, "model", w.model.Info().Name, "duration", time.Since(start))
	return findings, nil
}

// completionBudget returns the completion token cap: the mission budget, or
// what the meter has left, minus the estimated prompt size. Zero leaves the
// provider default.
func (w *ModelWorker) completionBudget(mission core.WorkerMission, prompt string, meter *core.TokenMeter) (int, error) {
	if mission.TokenBudget <= 0 {
		return 0, nil
	}
	budget := mission.TokenBudget
	if meter != nil {
		if r := meter.Remaining(); r >= 0 {
			budget = r
		}
	}
	input := core.EstimateTokens(w.opts.SystemPrompt + prompt)
	if budget-input <= 0 {
		return 0, core.NewWorkerError(core.FailureBudgetExceeded,
			fmt.Errorf("%w: prompt needs about %d tokens, %d left", core.ErrBudgetExceeded, input, budget))
	}
	return budget - input, nil
}

// Prompt renders the user message for a mission.
func Prompt(m core.WorkerMission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MISSION: %s\n\n", m.FocusQuestion)
	if m.StrategicContext != "" {
		b.WriteString(m.StrategicContext)
		b.WriteString("\n\n")
	}
	if m.SuccessCriteria != "" {
		fmt.Fprintf(&b, "SUCCESS CRITERIA: %s\n", m.SuccessCriteria)
	}
	fmt.Fprintf(&b, "TOKEN BUDGET: %d tokens. Stay within it.\n", m.TokenBudget)
	return b.String()
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return core.NewWorkerError(core.FailureTimeout, err)
	case errors.Is(err, core.ErrTransport):
		return core.NewWorkerError(core.FailureTransport, err)
	case errors.Is(err, core.ErrBudgetExceeded):
		return core.NewWorkerError(core.FailureBudgetExceeded, err)
	default:
		return core.NewWorkerError(core.FailureWorker, err)
	}
}

type rawClaim struct {
	Text       string   `json:"text"`
	Topic      string   `json:"topic"`
	Confidence string   `json:"confidence"`
	Sources    []string `json:"sources"`
}

type rawFindings struct {
	Claims []rawClaim `json:"claims"`
	Gaps   []string   `json:"gaps"`
}

// ParseFindings extracts the JSON findings object from a model reply. Code
// fences and surrounding prose are tolerated.
func ParseFindings(text string) (*core.Findings, error) {
	obj := ExtractJSON(text)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}
	var raw rawFindings
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}

	f := &core.Findings{Claims: make([]core.FindingClaim, 0, len(raw.Claims)), Gaps: []string{}}
	for _, c := range raw.Claims {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		sources := make([]string, 0, len(c.Sources))
		for _, s := range c.Sources {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		f.Claims = append(f.Claims, core.FindingClaim{
			Text:       text,
			Topic:      strings.TrimSpace(c.Topic),
			Confidence: core.ParseConfidence(c.Confidence),
			Sources:    sources,
		})
	}
	for _, g := range raw.Gaps {
		if g = strings.TrimSpace(g); g != "" {
			f.Gaps = append(f.Gaps, g)
		}
	}
	return f, nil
}

// ExtractJSON returns the outermost {...} span of text, or "" if none.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
