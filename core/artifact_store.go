package core

// ArtifactStore defines the blob persistence underneath the SessionStore.
// Keys are slash separated paths relative to a session directory. Save must be
// atomic: a reader sees either the previous bytes or the new bytes, never a
// torn write. There is no Delete; the research record is append-only.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	// Scopes lists every session id that holds at least one artifact.
	Scopes() ([]string, error)
}
