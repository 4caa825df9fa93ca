package core

import (
	"fmt"
	"strings"
)

// Confidence grades how well a claim is supported.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// ParseConfidence maps free text ("high", "MEDIUM", "med") to a Confidence.
// Anything unrecognized is Low.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "h":
		return ConfidenceHigh
	case "medium", "med", "m", "moderate":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Rank orders confidences: Low < Medium < High.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// MinConfidence returns the weaker of a and b.
func MinConfidence(a, b Confidence) Confidence {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// MaxConfidence returns the stronger of a and b.
func MaxConfidence(a, b Confidence) Confidence {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ClaimStatus is the state of a claim in the living document.
type ClaimStatus string

const (
	ClaimActive      ClaimStatus = "active"
	ClaimInvalidated ClaimStatus = "invalidated"
	ClaimContested   ClaimStatus = "contested"
)

// Claim is one entry of the living document's claim log. Every claim traces
// to exactly one originating drop. Invalidated claims keep their text and
// point at the claim that superseded them through SupersededBy. Later drops
// that report the same text are listed in CorroboratedBy.
type Claim struct {
	ID             string      `json:"id"`
	Text           string      `json:"text"`
	Topic          string      `json:"topic"`
	Confidence     Confidence  `json:"confidence"`
	Reported       Confidence  `json:"reported_confidence"`
	Sources        []string    `json:"sources"`
	DropID         string      `json:"drop_id"`
	DropSeq        int         `json:"drop_seq"`
	MissionIDs     []string    `json:"mission_ids"`
	Status         ClaimStatus `json:"status"`
	SupersededBy   string      `json:"superseded_by,omitempty"`
	ContestedWith  []string    `json:"contested_with,omitempty"`
	CorroboratedBy []string    `json:"corroborated_by,omitempty"`
}

// Clone returns a deep copy of the claim.
func (c Claim) Clone() Claim {
	c.Sources = cloneStrings(c.Sources)
	c.MissionIDs = cloneStrings(c.MissionIDs)
	c.ContestedWith = cloneStrings(c.ContestedWith)
	c.CorroboratedBy = cloneStrings(c.CorroboratedBy)
	return c
}

// cloneStrings copies s, preserving the nil/empty distinction.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

// ClaimCounts tallies claims by status. Total always equals
// Active + Invalidated + Contested.
type ClaimCounts struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Invalidated int `json:"invalidated"`
	Contested   int `json:"contested"`
}

// LivingDocument is a session's single current synthesis: the materialized
// view of an append-only claim log. Version increases by one for every
// synthesis that changed it.
type LivingDocument struct {
	ProjectID  string  `json:"project_id"`
	SessionID  string  `json:"session_id"`
	Version    int     `json:"version"`
	LastDropID string  `json:"last_drop_id"`
	Claims     []Claim `json:"claims"`
}

// NewLivingDocument returns the empty document a session starts with.
func NewLivingDocument(projectID, sessionID string) *LivingDocument {
	return &LivingDocument{ProjectID: projectID, SessionID: sessionID, Claims: []Claim{}}
}

// Clone returns a deep copy safe for independent mutation.
func (d *LivingDocument) Clone() *LivingDocument {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Claims = make([]Claim, len(d.Claims))
	for i, c := range d.Claims {
		clone.Claims[i] = c.Clone()
	}
	return &clone
}

// Claim returns the claim with the given id.
func (d *LivingDocument) Claim(id string) (Claim, bool) {
	for _, c := range d.Claims {
		if c.ID == id {
			return c, true
		}
	}
	return Claim{}, false
}

// WithStatus returns the claims currently in the given status, in log order.
func (d *LivingDocument) WithStatus(status ClaimStatus) []Claim {
	var out []Claim
	for _, c := range d.Claims {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// Counts tallies the claims by status.
func (d *LivingDocument) Counts() ClaimCounts {
	var cc ClaimCounts
	for _, c := range d.Claims {
		cc.Total++
		switch c.Status {
		case ClaimActive:
			cc.Active++
		case ClaimInvalidated:
			cc.Invalidated++
		case ClaimContested:
			cc.Contested++
		}
	}
	return cc
}

// Validate checks provenance and successor references.
func (d *LivingDocument) Validate() error {
	ids := make(map[string]bool, len(d.Claims))
	for _, c := range d.Claims {
		if c.ID == "" || ids[c.ID] {
			return fmt.Errorf("%w: claim id %q missing or duplicated", ErrValidation, c.ID)
		}
		ids[c.ID] = true
		if c.DropID == "" {
			return fmt.Errorf("%w: claim %s has no originating drop", ErrValidation, c.ID)
		}
		switch c.Status {
		case ClaimActive, ClaimContested:
		case ClaimInvalidated:
			if c.SupersededBy == "" {
				return fmt.Errorf("%w: invalidated claim %s has no successor", ErrValidation, c.ID)
			}
		default:
			return fmt.Errorf("%w: claim %s has unknown status %q", ErrValidation, c.ID, c.Status)
		}
	}
	for _, c := range d.Claims {
		if c.SupersededBy != "" && !ids[c.SupersededBy] {
			return fmt.Errorf("%w: claim %s superseded by unknown claim %s", ErrValidation, c.ID, c.SupersededBy)
		}
	}
	return nil
}

// Retains reports whether every claim of prev is still present in d. Saving
// a document that does not retain its predecessor would delete claims.
func (d *LivingDocument) Retains(prev *LivingDocument) error {
	if prev == nil {
		return nil
	}
	ids := make(map[string]bool, len(d.Claims))
	for _, c := range d.Claims {
		ids[c.ID] = true
	}
	for _, c := range prev.Claims {
		if !ids[c.ID] {
			return fmt.Errorf("%w: claim %s would be deleted", ErrValidation, c.ID)
		}
	}
	return nil
}
