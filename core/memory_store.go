package core

// Catalog indexes MetadataRecords for cross-session discovery. Catalogs hold
// derived data only and can be rebuilt from the session store at any time, so
// Put replaces a record with the same id instead of failing.
type Catalog interface {
	Put(rec MetadataRecord) error
	FindRelated(tags []string, limit int) ([]MetadataRecord, error)
	Reset() error
}
