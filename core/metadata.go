package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxMetadataBytes is the exclusive upper bound of a serialized MetadataRecord.
const MaxMetadataBytes = 2048

// MetadataKind distinguishes drop records from session records.
type MetadataKind string

const (
	MetadataDrop    MetadataKind = "drop"
	MetadataSession MetadataKind = "session"
)

// MetadataRecord is a small, immutable discovery summary of a drop or a
// session. It points at the full content instead of inlining it.
type MetadataRecord struct {
	ID        string       `json:"id"`
	Kind      MetadataKind `json:"kind"`
	ProjectID string       `json:"project_id"`
	SessionID string       `json:"session_id"`
	DropID    string       `json:"drop_id,omitempty"`
	Tags      []string     `json:"tags"`
	Summary   string       `json:"summary"`
	Pointer   string       `json:"pointer"`
	Outcome   DropOutcome  `json:"outcome,omitempty"`
	Claims    ClaimCounts  `json:"claims"`
	Drops     int          `json:"drops,omitempty"`
	Tokens    int          `json:"tokens"`
	CostUSD   float64      `json:"cost_usd"`
	CreatedAt time.Time    `json:"created_at"`
}

// Size returns the serialized size of the record in bytes.
func (r MetadataRecord) Size() int {
	b, err := json.Marshal(r)
	if err != nil {
		return MaxMetadataBytes
	}
	return len(b)
}

// Validate enforces identity, pointer and the size ceiling.
func (r MetadataRecord) Validate() error {
	if r.ID == "" || r.Pointer == "" {
		return fmt.Errorf("%w: metadata record needs id and pointer", ErrValidation)
	}
	if n := r.Size(); n >= MaxMetadataBytes {
		return fmt.Errorf("%w: metadata record %s is %d bytes (limit %d)", ErrValidation, r.ID, n, MaxMetadataBytes)
	}
	return nil
}
