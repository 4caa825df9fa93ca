package core

import (
	"strings"
	"time"
)

// Unknown marks a StrategicBrief field the conversation did not establish.
// Extractors must use it instead of inventing an answer.
const Unknown = "unknown"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the planning conversation.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// Priorities separates what the research must answer from what is merely useful.
type Priorities struct {
	MustHave   []string `json:"must_have,omitempty"`
	NiceToHave []string `json:"nice_to_have,omitempty"`
}

// StrategicBrief is the structured form of a research conversation. Core
// fields (Goal, Constraints, SuccessCriteria, DecisionContext) hold Unknown
// when the conversation did not establish them. Angles are the distinct
// sub-questions or entities named in the conversation; the planner scores
// complexity from them.
type StrategicBrief struct {
	Goal            string     `json:"goal"`
	Constraints     []string   `json:"constraints"`
	SuccessCriteria string     `json:"success_criteria"`
	DecisionContext string     `json:"decision_context"`
	StrategicWhy    string     `json:"strategic_why,omitempty"`
	Hypothesis      string     `json:"hypothesis,omitempty"`
	MentalModels    []string   `json:"mental_models,omitempty"`
	Priorities      Priorities `json:"priorities,omitempty"`
	Angles          []string   `json:"angles,omitempty"`
}

// IsUnknown reports whether a brief field value carries no information.
func IsUnknown(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, Unknown)
}

// UnknownFields lists the core fields the brief could not establish, in a
// fixed order.
func (b StrategicBrief) UnknownFields() []string {
	var out []string
	if IsUnknown(b.Goal) {
		out = append(out, "goal")
	}
	if len(b.Constraints) == 0 {
		out = append(out, "constraints")
	}
	if IsUnknown(b.SuccessCriteria) {
		out = append(out, "success_criteria")
	}
	if IsUnknown(b.DecisionContext) {
		out = append(out, "decision_context")
	}
	return out
}

// Normalize fills empty core fields with Unknown so persisted briefs are explicit.
func (b StrategicBrief) Normalize() StrategicBrief {
	if IsUnknown(b.Goal) {
		b.Goal = Unknown
	}
	if IsUnknown(b.SuccessCriteria) {
		b.SuccessCriteria = Unknown
	}
	if IsUnknown(b.DecisionContext) {
		b.DecisionContext = Unknown
	}
	if b.Constraints == nil {
		b.Constraints = []string{}
	}
	return b
}

// Clone returns a deep copy of the brief.
func (b StrategicBrief) Clone() StrategicBrief {
	b.Constraints = cloneStrings(b.Constraints)
	b.MentalModels = cloneStrings(b.MentalModels)
	b.Angles = cloneStrings(b.Angles)
	b.Priorities.MustHave = cloneStrings(b.Priorities.MustHave)
	b.Priorities.NiceToHave = cloneStrings(b.Priorities.NiceToHave)
	return b
}
