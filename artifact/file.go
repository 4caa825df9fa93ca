package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps artifacts as files under Root:
//
//	<root>/<sessionID>/<artifactID>
//
// Session and artifact ids may contain slashes (for example
// "acme/s1" and "drop-1/plan.json"). Save writes to a temporary file in the
// destination directory, syncs it and renames it into place, so a failed
// write never leaves a partial file behind.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at root. The directory is created lazily.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the directory the store writes into.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(sessionID, artifactID string) string {
	return filepath.Join(s.root, filepath.FromSlash(sessionID), filepath.FromSlash(artifactID))
}

// Save atomically writes data to the artifact.
func (s *FileStore) Save(sessionID, artifactID string, data []byte) (err error) {
	if err := checkKey(sessionID, artifactID); err != nil {
		return err
	}
	dst := s.path(sessionID, artifactID)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name()) // clean up
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Get returns the artifact bytes or ErrNotFound.
func (s *FileStore) Get(sessionID, artifactID string) ([]byte, error) {
	if err := checkKey(sessionID, artifactID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(sessionID, artifactID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the sorted slash separated artifact ids of a session.
func (s *FileStore) List(sessionID string) ([]string, error) {
	base := filepath.Join(s.root, filepath.FromSlash(sessionID))
	var ids []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isTemp(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Scopes returns the sorted session ids, assumed to be two levels deep
// ("project/session"), that contain at least one file.
func (s *FileStore) Scopes() ([]string, error) {
	projects, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var scopes []string
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		sessions, err := os.ReadDir(filepath.Join(s.root, p.Name()))
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if sess.IsDir() {
				scopes = append(scopes, path.Join(p.Name(), sess.Name()))
			}
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// checkKey rejects empty, absolute or parent-relative ids.
func checkKey(ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, `\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, id)
		}
		for _, part := range strings.Split(id, "/") {
			if part == "" || part == "." || part == ".." {
				return fmt.Errorf("%w: %q", ErrInvalidKey, id)
			}
		}
	}
	return nil
}
