package core

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// WorkerMission is the self-contained brief handed to a single worker. A
// worker has no memory and no access to the conversation, so
// StrategicContext must carry everything needed to prioritize.
type WorkerMission struct {
	ID               string        `json:"id"`
	FocusQuestion    string        `json:"focus_question"`
	StrategicContext string        `json:"strategic_context"`
	TokenBudget      int           `json:"token_budget"`
	SuccessCriteria  string        `json:"success_criteria"`
	Timeout          time.Duration `json:"timeout"`
}

// DropPlan is one planning decision: the missions to fan out for a Drop plus
// the brief snapshot they were derived from. Related lists the MetadataRecord
// ids consulted while planning.
type DropPlan struct {
	ProjectID  string          `json:"project_id"`
	SessionID  string          `json:"session_id"`
	DropID     string          `json:"drop_id"`
	Seq        int             `json:"seq"`
	Brief      StrategicBrief  `json:"brief"`
	Missions   []WorkerMission `json:"missions"`
	Deferred   []string        `json:"deferred,omitempty"`
	MaxWorkers int             `json:"max_workers"`
	Related    []string        `json:"related,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DropID formats the identifier of the n-th drop in a session.
func DropID(seq int) string { return fmt.Sprintf("drop-%d", seq) }

// TaskID formats the identifier of the k-th task within a drop.
func TaskID(k int) string { return fmt.Sprintf("task-%d", k) }

// Validate enforces the plan invariants: 1..MaxWorkers missions, each with a
// focus question and a positive budget, and no two sharing a focus question.
func (p *DropPlan) Validate() error {
	if p.DropID == "" {
		return fmt.Errorf("%w: plan has no drop id", ErrValidation)
	}
	if len(p.Missions) == 0 {
		return fmt.Errorf("%w: plan %s has no missions", ErrValidation, p.DropID)
	}
	if p.MaxWorkers > 0 && len(p.Missions) > p.MaxWorkers {
		return fmt.Errorf("%w: plan %s has %d missions, max %d", ErrValidation, p.DropID, len(p.Missions), p.MaxWorkers)
	}
	seen := make(map[string]string, len(p.Missions))
	ids := make(map[string]bool, len(p.Missions))
	for _, m := range p.Missions {
		if m.ID == "" || ids[m.ID] {
			return fmt.Errorf("%w: mission id %q missing or duplicated", ErrValidation, m.ID)
		}
		ids[m.ID] = true
		q := NormalizeText(m.FocusQuestion)
		if q == "" {
			return fmt.Errorf("%w: mission %s has no focus question", ErrValidation, m.ID)
		}
		if other, dup := seen[q]; dup {
			return fmt.Errorf("%w: missions %s and %s share focus question %q", ErrValidation, other, m.ID, m.FocusQuestion)
		}
		seen[q] = m.ID
		if m.TokenBudget <= 0 {
			return fmt.Errorf("%w: mission %s has no token budget", ErrValidation, m.ID)
		}
	}
	return nil
}

// Mission returns the mission with the given id.
func (p *DropPlan) Mission(id string) (WorkerMission, bool) {
	for _, m := range p.Missions {
		if m.ID == id {
			return m, true
		}
	}
	return WorkerMission{}, false
}

// NormalizeText lowercases s, collapses whitespace and trims surrounding
// punctuation. It is the equality used for focus questions and claim text.
func NormalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace)
	out := strings.Join(fields, " ")
	return strings.TrimFunc(out, func(r rune) bool {
		return unicode.IsPunct(r) && r != '%' && r != '$'
	})
}
