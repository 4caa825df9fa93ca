package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// cue lists are matched against lowercased sentences.
var (
	goalCues       = []string{"research", "find out", "understand", "learn about", "investigate", "analyze", "analyse", "figure out", "want to know", "look into", "identify", "map out", "compare"}
	reframeCues    = []string{"actually", "what i mean is", "to be clear", "more precisely"}
	constraintCues = []string{"must not", "only ", "budget", "within", "deadline", "exclude", "limit", "can't", "cannot", "no more than", "focus on", "avoid"}
	successCues    = []string{"success", "i need to know", "so that i", "useful if", "valuable if", "should tell me", "good outcome", "at the end"}
	decisionCues   = []string{"decide", "decision", "whether to", "choose", "choosing", "go/no-go", "invest in", "build or buy", "prioritize"}
	hypothesisCues = []string{"hypothesis", "i think", "we suspect", "i suspect", "i believe", "my guess", "we believe"}
	whyCues        = []string{"because", "this matters", "so we can", "the reason", "in order to"}
	modelCues      = []string{"similar to", "framework", "think of it as", "analogy", "playbook"}
	mustCues       = []string{"most important", "must have", "critical", "above all"}
	niceCues       = []string{"nice to have", "bonus", "if possible", "optional"}
)

var (
	listItem  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	sentences = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// Heuristic is the deterministic rule based extractor.
type Heuristic struct{}

// Compile-time assertion.
var _ Extractor = Heuristic{}

// Extract implements Extractor.
func (Heuristic) Extract(_ context.Context, turns []core.Turn) (*Result, error) {
	return newResult(HeuristicBrief(turns)), nil
}

// HeuristicBrief scans user turns and fills the fields whose cues appear.
// Later reframings replace an earlier goal.
func HeuristicBrief(turns []core.Turn) core.StrategicBrief {
	var (
		b         core.StrategicBrief
		questions []string
		angles    []string
	)
	for _, t := range turns {
		if t.Role != core.RoleUser {
			continue
		}
		for _, line := range strings.Split(t.Content, "\n") {
			if m := listItem.FindStringSubmatch(line); m != nil {
				angles = append(angles, clean(m[1]))
			}
		}
		for _, s := range split(t.Content) {
			lower := strings.ToLower(s)
			isQuestion := strings.HasSuffix(s, "?")
			switch {
			case has(lower, goalCues) && (core.IsUnknown(b.Goal) || has(lower, reframeCues)):
				b.Goal = s
			case isQuestion && core.IsUnknown(b.Goal):
				b.Goal = s
			}
			if isQuestion {
				questions = append(questions, s)
			}
			if has(lower, constraintCues) {
				b.Constraints = append(b.Constraints, s)
			}
			if has(lower, successCues) && core.IsUnknown(b.SuccessCriteria) {
				b.SuccessCriteria = s
			}
			if has(lower, decisionCues) && core.IsUnknown(b.DecisionContext) {
				b.DecisionContext = s
			}
			if has(lower, hypothesisCues) && b.Hypothesis == "" {
				b.Hypothesis = s
			}
			if has(lower, whyCues) && b.StrategicWhy == "" {
				b.StrategicWhy = s
			}
			if has(lower, modelCues) {
				b.MentalModels = append(b.MentalModels, s)
			}
			switch {
			case has(lower, niceCues):
				b.Priorities.NiceToHave = append(b.Priorities.NiceToHave, s)
			case has(lower, mustCues):
				b.Priorities.MustHave = append(b.Priorities.MustHave, s)
			}
		}
	}

	// Questions other than the goal itself are distinct angles.
	goal := core.NormalizeText(b.Goal)
	for _, q := range questions {
		if core.NormalizeText(q) != goal {
			angles = append(angles, q)
		}
	}
	b.Angles = Dedupe(angles)
	b.Constraints = Dedupe(b.Constraints)
	b.MentalModels = Dedupe(b.MentalModels)
	return b
}

// Dedupe drops empty and repeated entries by normalized text, keeping order.
func Dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		k := core.NormalizeText(it)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(it))
	}
	return out
}

func split(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m := listItem.FindStringSubmatch(line); m != nil {
			line = m[1]
		}
		for _, s := range sentences.FindAllString(line, -1) {
			if s = clean(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func clean(s string) string { return strings.TrimSpace(s) }

func has(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}
