package core

import (
	"fmt"
	"strings"
	"time"
)

// SessionState is the human-in-the-loop workflow position of a session.
type SessionState string

const (
	StateAwaitingClarification SessionState = "awaiting_clarification"
	StatePlanProposed          SessionState = "plan_proposed"
	StatePlanApproved          SessionState = "plan_approved"
	StateExecuting             SessionState = "executing"
	StateSynthesisComplete     SessionState = "synthesis_complete"
	StateClosed                SessionState = "closed"
)

var transitions = map[SessionState][]SessionState{
	StateAwaitingClarification: {StateAwaitingClarification, StatePlanProposed, StateClosed},
	StatePlanProposed:          {StateAwaitingClarification, StatePlanProposed, StatePlanApproved, StateClosed},
	StatePlanApproved:          {StateExecuting, StateClosed},
	StateExecuting:             {StateSynthesisComplete, StatePlanApproved},
	StateSynthesisComplete:     {StateAwaitingClarification, StatePlanProposed, StateSynthesisComplete, StateClosed},
	StateClosed:                nil,
}

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the workflow may move from s to next.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// SessionRef addresses one session inside a project.
type SessionRef struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
}

// ParseSessionRef parses "project/session".
func ParseSessionRef(key string) (SessionRef, error) {
	project, session, ok := strings.Cut(key, "/")
	ref := SessionRef{ProjectID: project, SessionID: session}
	if !ok {
		return ref, fmt.Errorf("%w: session key %q must be project/session", ErrValidation, key)
	}
	return ref, ref.Validate()
}

// Key returns the store scope of the session.
func (r SessionRef) Key() string { return r.ProjectID + "/" + r.SessionID }

func (r SessionRef) String() string { return r.Key() }

// Validate rejects ids that would escape their directory.
func (r SessionRef) Validate() error {
	for _, id := range []string{r.ProjectID, r.SessionID} {
		if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return fmt.Errorf("%w: invalid id %q in session ref", ErrValidation, id)
		}
	}
	return nil
}

// Session is the persisted record of one investigation thread.
type Session struct {
	ProjectID   string          `json:"project_id"`
	SessionID   string          `json:"session_id"`
	State       SessionState    `json:"state"`
	Drops       int             `json:"drops"`
	CurrentDrop string          `json:"current_drop,omitempty"`
	Brief       *StrategicBrief `json:"brief,omitempty"`
	Questions   []string        `json:"questions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}

// NewSession creates a session awaiting clarification.
func NewSession(ref SessionRef, now time.Time) *Session {
	return &Session{
		ProjectID: ref.ProjectID,
		SessionID: ref.SessionID,
		State:     StateAwaitingClarification,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ref returns the session's address.
func (s *Session) Ref() SessionRef {
	return SessionRef{ProjectID: s.ProjectID, SessionID: s.SessionID}
}

// Transition moves the session to next or returns ErrInvalidTransition.
func (s *Session) Transition(next SessionState, now time.Time) error {
	if !s.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, next)
	}
	s.State = next
	s.UpdatedAt = now
	if next == StateClosed {
		s.ClosedAt = &now
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.Brief != nil {
		b := s.Brief.Clone()
		c.Brief = &b
	}
	c.Questions = cloneStrings(s.Questions)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// Validate checks identity and state.
func (s *Session) Validate() error {
	if err := s.Ref().Validate(); err != nil {
		return err
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown session state %q", ErrValidation, s.State)
	}
	return nil
}

// SessionStore is the only shared mutable resource of the system. All writes
// are validated before they land and are append-only: drops are immutable once
// their summary exists and living document versions only grow.
type SessionStore interface {
	SaveSession(s *Session) error
	GetSession(ref SessionRef) (*Session, error)
	ListSessions() ([]SessionRef, error)

	AppendTurns(ref SessionRef, turns ...Turn) error
	Conversation(ref SessionRef) ([]Turn, error)

	SavePlan(ref SessionRef, plan *DropPlan) error
	GetPlan(ref SessionRef, dropID string) (*DropPlan, error)
	SaveTask(ref SessionRef, task *WorkerTask) error
	GetTasks(ref SessionRef, dropID string) ([]WorkerTask, error)
	SaveSummary(ref SessionRef, summary *DropSummary) error
	GetSummary(ref SessionRef, dropID string) (*DropSummary, error)
	SaveAnalysis(ref SessionRef, analysis *Analysis) (string, error)
	GetAnalysis(ref SessionRef, dropID string) (*Analysis, error)
	ListDrops(ref SessionRef) ([]string, error)

	SaveDocument(ref SessionRef, doc *LivingDocument) error
	GetLivingDocument(ref SessionRef) (*LivingDocument, error)
	GetDocumentVersion(ref SessionRef, version int) (*LivingDocument, error)

	AppendMetadata(ref SessionRef, recs ...MetadataRecord) error
	Metadata(ref SessionRef) ([]MetadataRecord, error)
}
