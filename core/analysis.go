package core

import (
	"fmt"
	"time"
)

// Severity ranks a concern raised by a critical analysis.
type Severity string

const (
	SeverityMajor Severity = "major"
	SeverityMinor Severity = "minor"
)

// Concern is one weakness found in a drop's raw findings.
type Concern struct {
	Severity       Severity `json:"severity"`
	MissionID      string   `json:"mission_id,omitempty"`
	Issue          string   `json:"issue"`
	Evidence       string   `json:"evidence"`
	Recommendation string   `json:"recommendation"`
}

// Analysis is the critical review of one drop. It reads the workers' raw
// findings, not the living document, and is advisory only: it never changes
// claims.
type Analysis struct {
	DropID      string    `json:"drop_id"`
	Concerns    []Concern `json:"concerns"`
	Assumptions []string  `json:"assumptions"`
	Questions   []string  `json:"questions"`
	NextSteps   []string  `json:"next_steps"`
	Analyst     string    `json:"analyst"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks identity and that every concern is graded and stated.
func (a *Analysis) Validate() error {
	if a.DropID == "" {
		return fmt.Errorf("%w: analysis has no drop id", ErrValidation)
	}
	for i, c := range a.Concerns {
		if c.Issue == "" {
			return fmt.Errorf("%w: analysis %s concern %d has no issue", ErrValidation, a.DropID, i)
		}
		switch c.Severity {
		case SeverityMajor, SeverityMinor:
		default:
			return fmt.Errorf("%w: analysis %s concern %d has unknown severity %q", ErrValidation, a.DropID, i, c.Severity)
		}
	}
	return nil
}
