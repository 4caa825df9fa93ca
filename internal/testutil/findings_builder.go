package testutil

import (
	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// FindingsBuilder provides a fluent helper for constructing findings in tests.
// Example:
//
//	f := NewFindingsBuilder("m1").Claim("ARR: $10M", core.ConfidenceHigh, "https://a.example").Tokens(120).Build()
type FindingsBuilder struct {
	f core.Findings
}

// NewFindingsBuilder creates a builder for the given mission.
func NewFindingsBuilder(missionID string) *FindingsBuilder {
	return &FindingsBuilder{f: core.Findings{MissionID: missionID, Claims: []core.FindingClaim{}, Gaps: []string{}}}
}

// Claim appends a claim (chainable).
func (b *FindingsBuilder) Claim(text string, conf core.Confidence, sources ...string) *FindingsBuilder {
	b.f.Claims = append(b.f.Claims, core.FindingClaim{Text: text, Confidence: conf, Sources: sources})
	return b
}

// TopicClaim appends a claim with an explicit topic (chainable).
func (b *FindingsBuilder) TopicClaim(topic, text string, conf core.Confidence, sources ...string) *FindingsBuilder {
	b.f.Claims = append(b.f.Claims, core.FindingClaim{Topic: topic, Text: text, Confidence: conf, Sources: sources})
	return b
}

// Gap appends an unanswered question (chainable).
func (b *FindingsBuilder) Gap(g string) *FindingsBuilder {
	b.f.Gaps = append(b.f.Gaps, g)
	return b
}

// Tokens sets the reported token usage (chainable).
func (b *FindingsBuilder) Tokens(n int) *FindingsBuilder {
	b.f.Usage.Tokens = n
	return b
}

// Build returns the findings.
func (b *FindingsBuilder) Build() *core.Findings {
	f := b.f
	return &f
}
