package index

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
)

// Options configures an Indexer.
type Options struct {
	// Vocabulary is the controlled tag set. Defaults to DefaultVocabulary.
	Vocabulary Vocabulary

	// MaxFindings is the number of key findings quoted in a summary.
	MaxFindings int

	Logger logging.Logger
}

// Indexer turns drops and sessions into MetadataRecords. It is pure: the same
// inputs always produce the same record.
type Indexer struct {
	vocab       Vocabulary
	maxFindings int
	logger      logging.Logger
}

// New creates an Indexer.
func New(optFns ...func(o *Options)) *Indexer {
	opts := Options{
		Vocabulary:  DefaultVocabulary,
		MaxFindings: 2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxFindings < 1 {
		opts.MaxFindings = 1
	}
	return &Indexer{
		vocab:       opts.Vocabulary,
		maxFindings: opts.MaxFindings,
		logger:      logging.Component(opts.Logger, "indexer"),
	}
}

// Tags returns the vocabulary tags for texts.
func (ix *Indexer) Tags(texts ...string) []string { return ix.vocab.Tags(texts...) }

// BriefTags returns the tags of a brief's goal, angles and decision context.
func (ix *Indexer) BriefTags(b core.StrategicBrief) []string {
	return ix.vocab.Tags(briefTexts(b)...)
}

// DropRecordID returns the id of the record describing one drop.
func DropRecordID(ref core.SessionRef, dropID string) string {
	return ref.Key() + "/" + dropID
}

// SessionRecordID returns the id of the record describing a whole session.
func SessionRecordID(ref core.SessionRef) string { return ref.Key() }

// DropRecord summarizes a completed drop. doc is the living document as of
// the drop; only claims originating in the drop are quoted.
func (ix *Indexer) DropRecord(plan *core.DropPlan, summary *core.DropSummary, doc *core.LivingDocument) (core.MetadataRecord, error) {
	if plan == nil || summary == nil {
		return core.MetadataRecord{}, fmt.Errorf("%w: drop record needs plan and summary", core.ErrValidation)
	}
	ref := core.SessionRef{ProjectID: summary.ProjectID, SessionID: summary.SessionID}

	var claims []core.Claim
	if doc != nil {
		for _, c := range doc.Claims {
			if c.DropID == summary.DropID {
				claims = append(claims, c)
			}
		}
	}

	texts := briefTexts(plan.Brief)
	for _, m := range plan.Missions {
		texts = append(texts, m.FocusQuestion)
	}
	for _, c := range claims {
		texts = append(texts, c.Topic, c.Text)
	}

	ok := 0
	for _, t := range summary.Tasks {
		if t.Status == core.TaskSucceeded {
			ok++
		}
	}
	sentences := []string{
		fmt.Sprintf("Drop %d (%s) answered %d of %d missions on: %s.", summary.Seq, summary.Outcome, ok, len(summary.Tasks), trimSentence(plan.Brief.Goal)),
	}
	if f := ix.findings(claims); f != "" {
		sentences = append(sentences, f)
	}
	switch {
	case len(summary.NeedsReview) > 0:
		sentences = append(sentences, fmt.Sprintf("%d contested claims need review.", len(summary.NeedsReview)))
	case len(summary.Unanswered) > 0:
		qs := make([]string, len(summary.Unanswered))
		for i, g := range summary.Unanswered {
			qs[i] = trimSentence(g.FocusQuestion)
		}
		sentences = append(sentences, fmt.Sprintf("Unanswered: %s.", strings.Join(qs, "; ")))
	}

	rec := core.MetadataRecord{
		ID:        DropRecordID(ref, summary.DropID),
		Kind:      core.MetadataDrop,
		ProjectID: ref.ProjectID,
		SessionID: ref.SessionID,
		DropID:    summary.DropID,
		Tags:      ix.vocab.Tags(texts...),
		Summary:   strings.Join(sentences, " "),
		Pointer:   ref.Key() + "/" + summary.DropID + "/summary.json",
		Outcome:   summary.Outcome,
		Claims:    summary.Counts,
		Tokens:    summary.TotalTokens,
		CostUSD:   summary.TotalCostUSD,
		CreatedAt: summary.CompletedAt,
	}
	return ix.fit(rec)
}

// SessionRecord summarizes a whole session from its drop summaries (in drop
// order) and current living document.
func (ix *Indexer) SessionRecord(sess *core.Session, summaries []core.DropSummary, doc *core.LivingDocument) (core.MetadataRecord, error) {
	if sess == nil {
		return core.MetadataRecord{}, fmt.Errorf("%w: session record needs a session", core.ErrValidation)
	}
	ref := sess.Ref()
	if doc == nil {
		doc = core.NewLivingDocument(ref.ProjectID, ref.SessionID)
	}

	var texts []string
	goal := core.Unknown
	if sess.Brief != nil {
		texts = briefTexts(*sess.Brief)
		goal = sess.Brief.Goal
	}
	active := doc.WithStatus(core.ClaimActive)
	for _, c := range active {
		texts = append(texts, c.Topic, c.Text)
	}

	rec := core.MetadataRecord{
		ID:        SessionRecordID(ref),
		Kind:      core.MetadataSession,
		ProjectID: ref.ProjectID,
		SessionID: ref.SessionID,
		Pointer:   ref.Key() + "/living-document.json",
		Claims:    doc.Counts(),
		Drops:     len(summaries),
		CreatedAt: sess.CreatedAt,
	}
	for _, s := range summaries {
		rec.Tokens += s.TotalTokens
		rec.CostUSD += s.TotalCostUSD
		if s.CompletedAt.After(rec.CreatedAt) {
			rec.CreatedAt = s.CompletedAt
		}
	}
	rec.Tags = ix.vocab.Tags(texts...)

	cc := rec.Claims
	sentences := []string{
		fmt.Sprintf("Session on: %s.", trimSentence(goal)),
		fmt.Sprintf("%d drops produced %d active, %d invalidated and %d contested claims (document v%d).",
			len(summaries), cc.Active, cc.Invalidated, cc.Contested, doc.Version),
	}
	if f := ix.findings(active); f != "" {
		sentences = append(sentences, f)
	}
	rec.Summary = strings.Join(sentences, " ")
	return ix.fit(rec)
}

// findings quotes the strongest active claims as one sentence.
func (ix *Indexer) findings(claims []core.Claim) string {
	var top []core.Claim
	for _, c := range claims {
		if c.Status == core.ClaimActive {
			top = append(top, c)
		}
	}
	if len(top) == 0 {
		return ""
	}
	sort.SliceStable(top, func(i, j int) bool {
		if r1, r2 := top[i].Confidence.Rank(), top[j].Confidence.Rank(); r1 != r2 {
			return r1 > r2
		}
		if top[i].DropSeq != top[j].DropSeq {
			return top[i].DropSeq > top[j].DropSeq
		}
		return top[i].ID < top[j].ID
	})
	if len(top) > ix.maxFindings {
		top = top[:ix.maxFindings]
	}
	parts := make([]string, len(top))
	for i, c := range top {
		parts[i] = trimSentence(c.Text)
	}
	return "Key findings: " + strings.Join(parts, "; ") + "."
}

// fit shrinks rec until it serializes below core.MaxMetadataBytes: first the
// summary is truncated, then tags are dropped from the end.
func (ix *Indexer) fit(rec core.MetadataRecord) (core.MetadataRecord, error) {
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	for rec.Size() >= core.MaxMetadataBytes && utf8.RuneCountInString(rec.Summary) > minSummary {
		over := rec.Size() - core.MaxMetadataBytes + 1
		rec.Summary = truncate(rec.Summary, utf8.RuneCountInString(rec.Summary)-over-1)
	}
	for rec.Size() >= core.MaxMetadataBytes && len(rec.Tags) > 0 {
		rec.Tags = rec.Tags[:len(rec.Tags)-1]
	}
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	if rec.Size() > core.MaxMetadataBytes*3/4 {
		ix.logger.Debug("metadata record near size limit", "id", rec.ID, "bytes", rec.Size())
	}
	return rec, nil
}

const minSummary = 40

// truncate cuts s to at most n runes, ending with an ellipsis.
func truncate(s string, n int) string {
	if n < minSummary {
		n = minSummary
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func trimSentence(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".?! ")
}

func briefTexts(b core.StrategicBrief) []string {
	texts := []string{b.Goal, b.DecisionContext, b.Hypothesis}
	texts = append(texts, b.Angles...)
	return texts
}
