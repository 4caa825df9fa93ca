// Package index builds MetadataRecords: small, deterministic discovery
// summaries of drops and sessions. A record carries tags from a controlled
// vocabulary, a one to three sentence summary and a pointer to the full
// content in the session store. Records are regenerated, never edited, and
// always serialize to less than core.MaxMetadataBytes.
package index
