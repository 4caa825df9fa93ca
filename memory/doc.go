// Package memory contains core.Catalog implementations: the discovery index of
// MetadataRecords used for progressive disclosure across sessions. The
// interface resides in the core package; select an implementation (the
// in-memory catalog below or memory/sqlite) at wiring time.
//
// Catalogs hold derived data only. Everything in them can be rebuilt from the
// session store, so implementations favor simplicity over durability.
package memory
