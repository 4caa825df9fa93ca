package analyst

import (
	"context"
	"fmt"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Analyst reviews one drop.
type Analyst interface {
	Analyze(ctx context.Context, in Input) (*core.Analysis, error)
}

// Input is what an analyst sees of a drop: the brief it was planned from and
// every task result, failed ones included.
type Input struct {
	DropID string
	Brief  core.StrategicBrief
	Tasks  []core.WorkerTask
}

// Heuristic flags unsourced and single-source claims, failed missions and
// worker gaps.
type Heuristic struct{}

// Compile-time assertion.
var _ Analyst = Heuristic{}

// Analyze implements Analyst.
func (Heuristic) Analyze(_ context.Context, in Input) (*core.Analysis, error) {
	a := newAnalysis(in.DropID, "heuristic")
	thin := false
	for _, t := range in.Tasks {
		if !t.Succeeded() {
			reason := "no result"
			if t.Failure != nil {
				reason = string(t.Failure.Kind) + ": " + t.Failure.Message
			}
			a.Concerns = append(a.Concerns, core.Concern{
				Severity:       core.SeverityMajor,
				MissionID:      t.Mission.ID,
				Issue:          "Mission left unanswered",
				Evidence:       reason,
				Recommendation: "Plan it again in the next drop",
			})
			a.Questions = append(a.Questions, t.Mission.FocusQuestion)
			continue
		}
		for _, c := range t.Findings.Claims {
			switch {
			case len(c.Sources) == 0:
				a.Concerns = append(a.Concerns, core.Concern{
					Severity:       core.SeverityMajor,
					MissionID:      t.Mission.ID,
					Issue:          "Claim cites no source",
					Evidence:       c.Text,
					Recommendation: "Find a verifiable source or treat it as a lead",
				})
				thin = true
			case len(c.Sources) == 1 && c.Confidence == core.ConfidenceHigh:
				a.Concerns = append(a.Concerns, core.Concern{
					Severity:       core.SeverityMinor,
					MissionID:      t.Mission.ID,
					Issue:          "High confidence rests on a single source",
					Evidence:       fmt.Sprintf("%s (%s)", c.Text, c.Sources[0]),
					Recommendation: "Corroborate with an independent source",
				})
				thin = true
			}
		}
		for _, g := range t.Findings.Gaps {
			a.Questions = append(a.Questions, g)
		}
	}

	if h := in.Brief.Hypothesis; !core.IsUnknown(h) {
		a.Assumptions = append(a.Assumptions, "The working hypothesis holds: "+h)
	}
	for _, c := range in.Brief.Constraints {
		if !core.IsUnknown(c) {
			a.Assumptions = append(a.Assumptions, "The constraint does not hide the answer: "+c)
		}
	}

	if thin {
		a.NextSteps = append(a.NextSteps, "Verify weakly sourced claims before relying on them")
	}
	if len(a.Questions) > 0 {
		a.NextSteps = append(a.NextSteps, "Cover the open questions in the next drop")
	}
	return a, nil
}

func newAnalysis(dropID, by string) *core.Analysis {
	return &core.Analysis{
		DropID:      dropID,
		Concerns:    []core.Concern{},
		Assumptions: []string{},
		Questions:   []string{},
		NextSteps:   []string{},
		Analyst:     by,
	}
}
