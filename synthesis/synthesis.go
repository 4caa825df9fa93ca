package synthesis

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/util"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
)

// claimNamespace scopes claim ids derived with util.StableID.
var claimNamespace = uuid.MustParse("6f1c1d0e-3c6a-5b8e-9a43-2f7d51c0a9b4")

// ClaimID returns the stable id of a claim first reported in dropID.
func ClaimID(dropID, text string) string {
	return util.StableID(claimNamespace, dropID, core.NormalizeText(text))
}

// Options configures a Synthesizer.
type Options struct {
	Matcher Matcher
	Rater   SourceRater
	Logger  logging.Logger
}

// Synthesizer applies findings to living documents.
type Synthesizer struct {
	matcher Matcher
	rater   SourceRater
	logger  logging.Logger
}

// New creates a Synthesizer with the topic matcher and URL source rater.
func New(optFns ...func(o *Options)) *Synthesizer {
	opts := Options{
		Matcher: TopicMatcher{},
		Rater:   URLRater,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Matcher == nil {
		opts.Matcher = TopicMatcher{}
	}
	if opts.Rater == nil {
		opts.Rater = URLRater
	}
	return &Synthesizer{matcher: opts.Matcher, rater: opts.Rater, logger: logging.Component(opts.Logger, "synthesis")}
}

// Drop identifies the drop whose findings are being applied.
type Drop struct {
	ID  string
	Seq int
}

// Apply merges findings of one drop into doc and returns the new document and
// the changes made. doc is not modified. A claim repeating the text of a live
// claim from an earlier drop corroborates it instead of being added again.
// The version only advances when something changed, so applying the same
// findings twice is a no-op.
func (s *Synthesizer) Apply(doc *core.LivingDocument, drop Drop, findings []core.Findings) (*core.LivingDocument, core.ChangeSet) {
	next := doc.Clone()
	if next == nil {
		next = core.NewLivingDocument("", "")
	}
	changes := core.ChangeSet{Added: []string{}, Invalidated: []string{}, Contested: []string{}}

	// Corroborate first so every new claim is judged against the updated
	// confidence of the claims it contradicts.
	var fresh []core.Claim
	for _, c := range s.collect(next, drop, findings) {
		i := corroborates(next, c)
		if i < 0 {
			fresh = append(fresh, c)
			continue
		}
		if s.corroborate(&next.Claims[i], c) {
			changes.Corroborated = append(changes.Corroborated, next.Claims[i].ID)
		}
	}

	invalidated := map[string]bool{}
	contested := map[string]bool{}
	for _, c := range fresh {
		s.merge(next, c, invalidated, contested)
		changes.Added = append(changes.Added, c.ID)
	}
	if changes.Empty() {
		return next, changes
	}

	for id := range invalidated {
		changes.Invalidated = append(changes.Invalidated, id)
	}
	for id := range contested {
		if cl, ok := next.Claim(id); ok && cl.Status == core.ClaimContested {
			changes.Contested = append(changes.Contested, id)
		}
	}
	sort.Strings(changes.Invalidated)
	sort.Strings(changes.Contested)
	sort.Strings(changes.Corroborated)

	sortClaims(next.Claims)
	next.Version++
	next.LastDropID = drop.ID

	s.logger.Debug("synthesis applied",
		"drop", drop.ID,
		"version", next.Version,
		"added", len(changes.Added),
		"invalidated", len(changes.Invalidated),
		"contested", len(changes.Contested),
		"corroborated", len(changes.Corroborated))
	return next, changes
}

// corroborates returns the index of the live claim from another drop that
// asserts the same normalized text as c, or -1.
func corroborates(doc *core.LivingDocument, c core.Claim) int {
	text := core.NormalizeText(c.Text)
	found := -1
	for i, e := range doc.Claims {
		if e.Status == core.ClaimInvalidated || e.DropID == c.DropID || core.NormalizeText(e.Text) != text {
			continue
		}
		if found < 0 || e.ID < doc.Claims[found].ID {
			found = i
		}
	}
	return found
}

// corroborate folds the sources and reported confidence of c into e and
// records c's drop. It reports whether e changed. Status is left alone: a
// contested claim stays contested until it is resolved.
func (s *Synthesizer) corroborate(e *core.Claim, c core.Claim) bool {
	before := e.Clone()
	e.Sources = union(e.Sources, c.Sources)
	e.CorroboratedBy = union(e.CorroboratedBy, []string{c.DropID})
	e.Reported = core.MaxConfidence(e.Reported, c.Reported)
	e.Confidence = Effective(e.Reported, e.Sources, s.rater)
	return e.Confidence != before.Confidence || e.Reported != before.Reported ||
		len(e.Sources) != len(before.Sources) || len(e.CorroboratedBy) != len(before.CorroboratedBy)
}

// collect turns findings into candidate claims: one per distinct normalized
// text, sources and missions merged, confidence capped by the weakest
// source, sorted by id. Claims already in doc are skipped.
func (s *Synthesizer) collect(doc *core.LivingDocument, drop Drop, findings []core.Findings) []core.Claim {
	byID := map[string]*core.Claim{}
	for _, f := range findings {
		for _, fc := range f.Claims {
			text := strings.TrimSpace(fc.Text)
			if core.NormalizeText(text) == "" {
				continue
			}
			id := ClaimID(drop.ID, text)
			if _, exists := doc.Claim(id); exists {
				continue
			}
			reported := fc.Confidence
			if reported.Rank() == 0 {
				reported = core.ConfidenceLow
			}
			c, ok := byID[id]
			if !ok {
				c = &core.Claim{
					ID:       id,
					Text:     text,
					Topic:    strings.TrimSpace(fc.Topic),
					Reported: reported,
					DropID:   drop.ID,
					DropSeq:  drop.Seq,
					Status:   core.ClaimActive,
				}
				byID[id] = c
			} else {
				// Pick the same representative regardless of arrival order.
				if text < c.Text {
					c.Text = text
				}
				if t := strings.TrimSpace(fc.Topic); t != "" && (c.Topic == "" || t < c.Topic) {
					c.Topic = t
				}
				c.Reported = core.MaxConfidence(c.Reported, reported)
			}
			c.Sources = union(c.Sources, fc.Sources)
			if f.MissionID != "" {
				c.MissionIDs = union(c.MissionIDs, []string{f.MissionID})
			}
		}
	}

	out := make([]core.Claim, 0, len(byID))
	for _, c := range byID {
		c.Topic = s.matcher.Topic(*c)
		c.Confidence = Effective(c.Reported, c.Sources, s.rater)
		if c.Sources == nil {
			c.Sources = []string{}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type verdict int

const (
	newWins verdict = iota
	tie
	oldWins
)

// judge ranks a new claim against an existing rival. Higher confidence wins.
// Equal confidence cannot be settled. A weaker claim from a later drop cannot
// overturn a stronger earlier one, so that is unsettled as well; within one
// drop the stronger claim simply wins.
func judge(n, e core.Claim) verdict {
	switch rn, re := n.Confidence.Rank(), e.Confidence.Rank(); {
	case rn > re:
		return newWins
	case rn == re:
		return tie
	case n.DropSeq == e.DropSeq:
		return oldWins
	default:
		return tie
	}
}

// merge appends c to doc and settles its conflicts with active and contested
// claims.
func (s *Synthesizer) merge(doc *core.LivingDocument, c core.Claim, invalidated, contested map[string]bool) {
	var beaten, tied []int
	winner := -1
	for i, e := range doc.Claims {
		if e.Status == core.ClaimInvalidated || !s.matcher.Contradicts(c, e) {
			continue
		}
		switch judge(c, e) {
		case newWins:
			beaten = append(beaten, i)
		case tie:
			tied = append(tied, i)
		case oldWins:
			if winner < 0 || e.ID < doc.Claims[winner].ID {
				winner = i
			}
		}
	}

	switch {
	case winner >= 0:
		c.Status = core.ClaimInvalidated
		c.SupersededBy = doc.Claims[winner].ID
		invalidated[c.ID] = true
	case len(tied) > 0:
		c.Status = core.ClaimContested
		for _, i := range tied {
			e := &doc.Claims[i]
			e.Status = core.ClaimContested
			e.ContestedWith = union(e.ContestedWith, []string{c.ID})
			c.ContestedWith = union(c.ContestedWith, []string{e.ID})
			contested[e.ID] = true
		}
		contested[c.ID] = true
		fallthrough
	default:
		for _, i := range beaten {
			e := &doc.Claims[i]
			e.Status = core.ClaimInvalidated
			e.SupersededBy = c.ID
			invalidated[e.ID] = true
		}
	}
	doc.Claims = append(doc.Claims, c)
}

// sortClaims orders the log canonically: by originating drop, then id.
func sortClaims(claims []core.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		if claims[i].DropSeq != claims[j].DropSeq {
			return claims[i].DropSeq < claims[j].DropSeq
		}
		return claims[i].ID < claims[j].ID
	})
}

// union returns the sorted, deduplicated union of a and b.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NeedsReview lists the contested claims of doc awaiting human resolution.
func NeedsReview(doc *core.LivingDocument) []string {
	ids := []string{}
	for _, c := range doc.WithStatus(core.ClaimContested) {
		ids = append(ids, c.ID)
	}
	return ids
}
