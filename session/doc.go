// Package session implements core.SessionStore on top of a core.ArtifactStore.
//
// Every payload is validated twice before it lands: structurally against the
// JSON schema derived from its Go type, and semantically through the type's
// own Validate method. Writes then go through the ArtifactStore, which is
// responsible for atomicity. The store enforces the append-only rules of the
// research record:
//
//   - a drop is immutable once its summary exists
//   - living document versions only grow and never lose a claim
//   - every document version is also kept in versions/
//   - conversation turns and metadata records are only appended
//
// Layout inside a session scope ("<project>/<session>"):
//
//	session.json
//	conversation.json
//	drop-{n}/plan.json
//	drop-{n}/task-{k}-result.json
//	drop-{n}/summary.json
//	living-document.json
//	versions/living-document-v{n}.json
//	metadata-index.json
package session
