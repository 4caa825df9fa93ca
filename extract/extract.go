package extract

import (
	"context"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Result is the outcome of an extraction.
type Result struct {
	Brief     core.StrategicBrief `json:"brief"`
	Unknown   []string            `json:"unknown"`
	Questions []string            `json:"questions"`
}

// Complete reports whether every core field was established.
func (r *Result) Complete() bool { return len(r.Unknown) == 0 }

// Extractor produces a brief from ordered conversation turns.
type Extractor interface {
	Extract(ctx context.Context, turns []core.Turn) (*Result, error)
}

// clarifying maps an unknown field to the question that would establish it.
var clarifying = map[string]string{
	"goal":             "What exactly do you want to learn? Name the company, market or question this research should answer.",
	"constraints":      "Are there constraints I should respect, such as budget, timeline, geography or sources to avoid?",
	"success_criteria": "What would make this research useful? What do you need to know when it is done?",
	"decision_context": "What decision will this research inform, for example which segment to target or whether to build or buy?",
}

// Questions returns one clarifying question per unknown field, in field order.
func Questions(unknown []string) []string {
	out := make([]string, 0, len(unknown))
	for _, f := range unknown {
		if q, ok := clarifying[f]; ok {
			out = append(out, q)
		}
	}
	return out
}

func newResult(b core.StrategicBrief) *Result {
	b = b.Normalize()
	unknown := b.UnknownFields()
	return &Result{Brief: b, Unknown: unknown, Questions: Questions(unknown)}
}
