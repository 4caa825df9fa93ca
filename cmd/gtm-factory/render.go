package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	muted   = color.New(color.FgHiBlack)
)

func stateColor(s core.SessionState) *color.Color {
	switch s {
	case core.StateSynthesisComplete, core.StatePlanApproved:
		return success
	case core.StateAwaitingClarification, core.StatePlanProposed:
		return warn
	case core.StateExecuting:
		return failure
	default:
		return muted
	}
}

func printBrief(w io.Writer, b core.StrategicBrief, questions []string) {
	heading.Fprintln(w, "Strategic brief")
	field := func(name, value string) {
		if core.IsUnknown(value) {
			fmt.Fprintf(w, "  %-18s %s\n", name+":", warn.Sprint(core.Unknown))
			return
		}
		fmt.Fprintf(w, "  %-18s %s\n", name+":", value)
	}
	field("Goal", b.Goal)
	field("Decision", b.DecisionContext)
	field("Success", b.SuccessCriteria)
	field("Constraints", strings.Join(b.Constraints, "; "))
	if b.Hypothesis != "" {
		field("Hypothesis", b.Hypothesis)
	}
	for _, a := range b.Angles {
		fmt.Fprintf(w, "  - %s\n", a)
	}
	if len(questions) == 0 {
		success.Fprintln(w, "Brief complete. Run `plan` to propose a drop.")
		return
	}
	printQuestions(w, nil, questions)
}

func printQuestions(w io.Writer, unknown, questions []string) {
	if len(unknown) > 0 {
		warn.Fprintf(w, "Not enough context to plan (unknown: %s).\n", strings.Join(unknown, ", "))
	}
	warn.Fprintln(w, "Clarifying questions:")
	for i, q := range questions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
}

func printPlan(w io.Writer, plan *core.DropPlan) {
	heading.Fprintf(w, "Proposed %s (%d missions)\n", plan.DropID, len(plan.Missions))
	for _, m := range plan.Missions {
		fmt.Fprintf(w, "  [%s] %s\n", m.ID, m.FocusQuestion)
		muted.Fprintf(w, "       budget %d tokens, timeout %s\n", m.TokenBudget, m.Timeout)
	}
	if len(plan.Deferred) > 0 {
		warn.Fprintln(w, "Deferred to a later drop:")
		for _, d := range plan.Deferred {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if len(plan.Related) > 0 {
		muted.Fprintf(w, "  building on: %s\n", strings.Join(plan.Related, ", "))
	}
	fmt.Fprintln(w, "Approve with `approve` or reject with feedback.")
}

func printSummary(w io.Writer, s *core.DropSummary) {
	outcome := success
	if s.Outcome != core.OutcomeSuccess {
		outcome = failure
	}
	heading.Fprintf(w, "%s ", s.DropID)
	outcome.Fprintf(w, "%s\n", s.Outcome)
	for _, t := range s.Tasks {
		status := success
		if t.Status != core.TaskSucceeded {
			status = failure
		}
		fmt.Fprintf(w, "  [%s] %s  %s  %d/%d tokens, %d claims, %d attempt(s)\n",
			t.MissionID, status.Sprint(t.Status), t.Latency.Round(time.Millisecond), t.TokensUsed, t.TokenBudget, t.Claims, t.Attempts)
	}
	if len(s.Unanswered) > 0 {
		failure.Fprintln(w, "Unanswered:")
		for _, g := range s.Unanswered {
			fmt.Fprintf(w, "  - %s (%s: %s)\n", g.FocusQuestion, g.Kind, g.Reason)
		}
	}
	for _, g := range s.WorkerGaps {
		muted.Fprintf(w, "  gap %s\n", g)
	}
	c := s.Changes
	fmt.Fprintf(w, "Changes: %d added, %d invalidated, %d contested, %d corroborated\n",
		len(c.Added), len(c.Invalidated), len(c.Contested), len(c.Corroborated))
	fmt.Fprintf(w, "Document v%d: %d active, %d invalidated, %d contested\n",
		s.DocumentVersion, s.Counts.Active, s.Counts.Invalidated, s.Counts.Contested)
	if len(s.NeedsReview) > 0 {
		warn.Fprintf(w, "Needs review: %s\n", strings.Join(s.NeedsReview, ", "))
	}
	muted.Fprintf(w, "Total: %d tokens, $%.4f\n", s.TotalTokens, s.TotalCostUSD)
	if s.Analysis != "" {
		muted.Fprintf(w, "Critical analysis: %s (see `critique`)\n", s.Analysis)
	}
}

func printAnalysis(w io.Writer, a *core.Analysis) {
	heading.Fprintf(w, "Critical analysis of %s ", a.DropID)
	muted.Fprintf(w, "(%s)\n", a.Analyst)
	if len(a.Concerns) == 0 {
		success.Fprintln(w, "No concerns.")
	}
	for _, c := range a.Concerns {
		sev := warn
		if c.Severity == core.SeverityMajor {
			sev = failure
		}
		sev.Fprintf(w, "  [%s] ", c.Severity)
		fmt.Fprint(w, c.Issue)
		if c.MissionID != "" {
			muted.Fprintf(w, " (%s)", c.MissionID)
		}
		fmt.Fprintln(w)
		if c.Evidence != "" {
			muted.Fprintf(w, "      %s\n", c.Evidence)
		}
		if c.Recommendation != "" {
			fmt.Fprintf(w, "      -> %s\n", c.Recommendation)
		}
	}
	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		heading.Fprintln(w, title)
		for i, it := range items {
			fmt.Fprintf(w, "  %d. %s\n", i+1, it)
		}
	}
	list("Unstated assumptions", a.Assumptions)
	list("Open questions", a.Questions)
	list("Next steps", a.NextSteps)
}

// printMarkdown highlights headings and struck-through lines.
func printMarkdown(w io.Writer, md string) {
	for _, line := range strings.Split(strings.TrimRight(md, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "#"):
			heading.Fprintln(w, line)
		case strings.Contains(line, "~~"):
			muted.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func printRecords(w io.Writer, recs []core.MetadataRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No related records.")
		return
	}
	for _, r := range recs {
		heading.Fprintf(w, "%s ", r.ID)
		muted.Fprintf(w, "[%s] %s\n", strings.Join(r.Tags, ", "), r.CreatedAt.Format("2006-01-02"))
		fmt.Fprintf(w, "  %s\n", r.Summary)
		muted.Fprintf(w, "  -> %s\n", r.Pointer)
	}
}
