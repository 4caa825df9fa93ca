// Package artifact contains concrete implementations of core.ArtifactStore.
//
// The canonical interface lives in the core package to avoid dependency
// cycles and keep domain contracts central. Two backends are provided:
//
//   - InMemoryStore for tests and single process prototypes
//   - FileStore, a directory tree where every Save is an atomic
//     write-to-temp, fsync and rename
//
// Callers should depend on the core interface rather than concrete types so
// they can substitute alternative persistence layers in tests or production.
package artifact
