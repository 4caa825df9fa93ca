package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/extract"
	"github.com/milehighfry405/gtm-factory-sub000/index"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
)

// Options configures a Planner. MaxUnknown is the number of unknown core brief
// fields tolerated; an unknown goal is never tolerated. Catalog, when set, is
// consulted for up to RelatedLimit records of prior work that are quoted in
// every briefing.
type Options struct {
	MaxWorkers   int
	MaxUnknown   int
	TokenBudget  int
	Timeout      time.Duration
	RelatedLimit int
	Catalog      core.Catalog
	Indexer      *index.Indexer
	Clock        func() time.Time
	Logger       logging.Logger
}

// DefaultOptions returns the planner defaults.
func DefaultOptions() Options {
	return Options{
		MaxWorkers:   4,
		MaxUnknown:   2,
		TokenBudget:  4000,
		Timeout:      5 * time.Minute,
		RelatedLimit: 3,
		Clock:        time.Now,
	}
}

// Planner decides the missions of a drop.
type Planner struct {
	opts   Options
	logger logging.Logger
}

// New creates a Planner.
func New(optFns ...func(o *Options)) *Planner {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.TokenBudget < 1 {
		opts.TokenBudget = DefaultOptions().TokenBudget
	}
	if opts.Indexer == nil {
		opts.Indexer = index.New()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Planner{opts: opts, logger: logging.Component(opts.Logger, "planner")}
}

// MaxWorkers returns the configured fan-out cap.
func (p *Planner) MaxWorkers() int { return p.opts.MaxWorkers }

// Complexity scores a brief: the number of distinct angles, at least one.
func Complexity(b core.StrategicBrief) int {
	if n := len(extract.Dedupe(b.Angles)); n > 1 {
		return n
	}
	return 1
}

// Plan builds the plan of the seq-th drop of a session. It returns a
// *core.PlanningError wrapping core.ErrInsufficientContext when the brief
// cannot be planned against.
func (p *Planner) Plan(ctx context.Context, ref core.SessionRef, seq int, brief core.StrategicBrief) (*core.DropPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	brief = brief.Normalize()

	unknown := brief.UnknownFields()
	if core.IsUnknown(brief.Goal) || len(unknown) > p.opts.MaxUnknown {
		p.logger.Info("brief too thin to plan", "session", ref.Key(), "unknown", unknown)
		return nil, &core.PlanningError{
			Unknown:   unknown,
			Questions: extract.Questions(unknown),
			Err:       core.ErrInsufficientContext,
		}
	}

	focus, deferred := p.focusQuestions(brief)
	related := p.related(brief)

	plan := &core.DropPlan{
		ProjectID:  ref.ProjectID,
		SessionID:  ref.SessionID,
		DropID:     core.DropID(seq),
		Seq:        seq,
		Brief:      brief.Clone(),
		Deferred:   deferred,
		MaxWorkers: p.opts.MaxWorkers,
		CreatedAt:  p.opts.Clock().UTC(),
	}
	for _, r := range related {
		plan.Related = append(plan.Related, r.ID)
	}

	criteria := brief.SuccessCriteria
	if core.IsUnknown(criteria) {
		criteria = "Answer the focus question with sourced claims and list what could not be determined."
	}
	for i, q := range focus {
		siblings := make([]string, 0, len(focus)-1)
		for j, other := range focus {
			if j != i {
				siblings = append(siblings, other)
			}
		}
		briefing, err := Briefing(q, brief, p.opts.TokenBudget, siblings, related)
		if err != nil {
			return nil, err
		}
		plan.Missions = append(plan.Missions, core.WorkerMission{
			ID:               fmt.Sprintf("m%d", i+1),
			FocusQuestion:    q,
			StrategicContext: briefing,
			TokenBudget:      p.opts.TokenBudget,
			SuccessCriteria:  criteria,
			Timeout:          p.opts.Timeout,
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", plan.DropID, err)
	}
	p.logger.Info("drop planned",
		"session", ref.Key(),
		"drop", plan.DropID,
		"missions", len(plan.Missions),
		"deferred", len(deferred),
		"related", len(plan.Related))
	return plan, nil
}

// focusQuestions derives one non-overlapping question per angle. Angles
// beyond MaxWorkers are returned as deferred.
func (p *Planner) focusQuestions(b core.StrategicBrief) (focus, deferred []string) {
	angles := extract.Dedupe(b.Angles)
	if len(angles) == 0 {
		return []string{b.Goal}, nil
	}

	seen := make(map[string]bool, len(angles))
	for _, a := range angles {
		q := focusQuestion(a, b.Goal)
		key := core.NormalizeText(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(focus) < p.opts.MaxWorkers {
			focus = append(focus, q)
		} else {
			deferred = append(deferred, a)
		}
	}
	return focus, deferred
}

// focusQuestion phrases an angle as a question scoped to the goal. Angles that
// already are questions stand on their own.
func focusQuestion(angle, goal string) string {
	angle = strings.TrimSpace(angle)
	if strings.HasSuffix(angle, "?") {
		return angle
	}
	angle = strings.TrimRight(angle, ".;:! ")
	return fmt.Sprintf("What does the evidence show about %s, for the goal: %s?", angle, strings.TrimRight(goal, ".?! "))
}

func (p *Planner) related(b core.StrategicBrief) []core.MetadataRecord {
	if p.opts.Catalog == nil || p.opts.RelatedLimit <= 0 {
		return nil
	}
	tags := p.opts.Indexer.BriefTags(b)
	if len(tags) == 0 {
		return nil
	}
	recs, err := p.opts.Catalog.FindRelated(tags, p.opts.RelatedLimit)
	if err != nil {
		// Prior work is an enrichment; planning proceeds without it.
		p.logger.Warn("related lookup failed", "error", err)
		return nil
	}
	return recs
}
