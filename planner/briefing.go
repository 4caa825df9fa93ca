package planner

import (
	"fmt"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/util"
)

var briefingTemplate = util.MustParseTemplate("briefing", `# RESEARCH MISSION
{{.FocusQuestion}}

# STRATEGIC CONTEXT

## Overall Goal
{{.Brief.Goal}}

## Why This Matters
{{default "unknown" .Brief.StrategicWhy}}

## Decision Impact
{{.Brief.DecisionContext}}

## Success Threshold
{{.Brief.SuccessCriteria}}

## User's Mental Models
{{if .Brief.MentalModels}}{{bullets .Brief.MentalModels}}{{else}}- (None specified){{end}}

## User's Priorities
{{if .Brief.Priorities.MustHave}}Must have:
{{bullets .Brief.Priorities.MustHave}}
{{end}}{{if .Brief.Priorities.NiceToHave}}Nice to have:
{{bullets .Brief.Priorities.NiceToHave}}
{{end}}{{if not (or .Brief.Priorities.MustHave .Brief.Priorities.NiceToHave)}}- (None specified)
{{end}}
# HYPOTHESIS BEING TESTED
{{default "None stated. Report what the evidence shows." .Brief.Hypothesis}}

# TOKEN BUDGET
Target: {{.TokenBudget}} tokens. Work stops when the budget is exhausted.

Prioritization:
1. Direct answer to the research mission (50% of output)
2. Evidence and source citations (25% of output)
3. Confidence levels and gaps (15% of output)
4. Additional context (10% of output)

Answer the core question deeply rather than covering everything superficially.

# CONSTRAINTS
{{if .Brief.Constraints}}{{bullets .Brief.Constraints}}{{else}}- (None specified){{end}}
- Public information only. Do not speculate on private metrics.
- Include a URL for every factual claim. Claims without sources are graded Low.
- Stay on the focus question. Other angles are covered by other missions{{if .Siblings}}:
{{bullets .Siblings}}{{else}}.{{end}}
{{if .Related}}
# PRIOR WORK
{{range .Related}}- {{.ID}} [{{join ", " .Tags}}]: {{.Summary}}
{{end}}{{end}}
# OUTPUT FORMAT
Report claims with a confidence tier:
- High: multiple authoritative sources
- Medium: limited but credible sources
- Low: single source or contradictory signals

List research gaps: what could not be determined from public information.
`)

type briefingData struct {
	FocusQuestion string
	Brief         core.StrategicBrief
	TokenBudget   int
	Siblings      []string
	Related       []core.MetadataRecord
}

// Briefing renders the strategic context of one mission.
func Briefing(focus string, brief core.StrategicBrief, budget int, siblings []string, related []core.MetadataRecord) (string, error) {
	out, err := util.Execute(briefingTemplate, briefingData{
		FocusQuestion: focus,
		Brief:         brief.Normalize(),
		TokenBudget:   budget,
		Siblings:      siblings,
		Related:       related,
	})
	if err != nil {
		return "", fmt.Errorf("render briefing: %w", err)
	}
	return out, nil
}
