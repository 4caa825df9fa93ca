// Package sqlite provides a core.Catalog backed by SQLite (modernc.org/sqlite,
// no cgo). Records are stored as JSON next to a tag table so FindRelated can
// rank by tag overlap inside the database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
)

// timeLayout is fixed width so created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Options configures a Store.
type Options struct {
	Logger logging.Logger
}

// Store implements core.Catalog using SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Compile-time assertion.
var _ core.Catalog = (*Store)(nil)

// New opens (or creates) the catalog database at path. Use ":memory:" for an
// ephemeral catalog.
func New(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.Component(opts.Logger, "catalog")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite catalog initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			project_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			data TEXT NOT NULL,
			CHECK (kind IN ('drop', 'session'))
		);

		CREATE TABLE IF NOT EXISTS record_tags (
			record_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			PRIMARY KEY (record_id, tag),
			FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_record_tags_tag ON record_tags(tag);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record and its tags.
func (s *Store) Put(rec core.MetadataRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("replacing record: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, kind, project_id, session_id, created_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.ProjectID, rec.SessionID, rec.CreatedAt.UTC().Format(timeLayout), string(data))
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	for _, tag := range memory.NormalizeTags(rec.Tags) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO record_tags (record_id, tag) VALUES (?, ?)`, rec.ID, tag); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}
	return tx.Commit()
}

// FindRelated returns up to limit records sharing at least one tag, ranked by
// overlap, then newest first, then id.
func (s *Store) FindRelated(tags []string, limit int) ([]core.MetadataRecord, error) {
	tags = memory.NormalizeTags(tags)
	if len(tags) == 0 {
		return []core.MetadataRecord{}, nil
	}
	if limit <= 0 {
		limit = -1 // no limit
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tags)), ", ")
	query := `
		SELECT r.data
		FROM records r
		JOIN record_tags t ON t.record_id = r.id
		WHERE t.tag IN (` + placeholders + `)
		GROUP BY r.id
		ORDER BY COUNT(*) DESC, r.created_at DESC, r.id ASC
		LIMIT ?`
	args := make([]any, 0, len(tags)+1)
	for _, t := range tags {
		args = append(args, t)
	}
	args = append(args, limit)

	start := time.Now()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying related records: %w", err)
	}
	defer rows.Close()

	out := []core.MetadataRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec core.MetadataRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("Related records found", "tags", tags, "count", len(out), "duration", time.Since(start))
	return out, nil
}

// Reset drops every record.
func (s *Store) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("resetting catalog: %w", err)
	}
	return nil
}
