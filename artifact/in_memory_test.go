package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Interface compliance (compile-time assertions)
var (
	_ core.ArtifactStore = (*InMemoryStore)(nil)
	_ core.ArtifactStore = (*FileStore)(nil)
)

func stores(t *testing.T) map[string]core.ArtifactStore {
	return map[string]core.ArtifactStore{
		"memory": NewInMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
	}
}

func TestArtifactStore_SaveGetIsolation(t *testing.T) {
	for name, svc := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("hello")
			require.NoError(t, svc.Save("acme/s1", "drop-1/plan.json", data))

			data[0] = 'H'
			out, err := svc.Get("acme/s1", "drop-1/plan.json")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(out))

			out[0] = 'x'
			out2, err := svc.Get("acme/s1", "drop-1/plan.json")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(out2))
		})
	}
}

func TestArtifactStore_Overwrite(t *testing.T) {
	for name, svc := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, svc.Save("acme/s1", "living-document.json", []byte("v1")))
			require.NoError(t, svc.Save("acme/s1", "living-document.json", []byte("v2")))

			out, err := svc.Get("acme/s1", "living-document.json")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(out))
		})
	}
}

func TestArtifactStore_ListAndScopes(t *testing.T) {
	for name, svc := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, svc.Save("acme/s1", "session.json", []byte("1")))
			require.NoError(t, svc.Save("acme/s1", "drop-1/plan.json", []byte("2")))
			require.NoError(t, svc.Save("beta/s9", "session.json", []byte("3")))

			ids, err := svc.List("acme/s1")
			require.NoError(t, err)
			assert.Equal(t, []string{"drop-1/plan.json", "session.json"}, ids)

			empty, err := svc.List("nope/none")
			require.NoError(t, err)
			assert.Empty(t, empty)

			scopes, err := svc.Scopes()
			require.NoError(t, err)
			assert.Equal(t, []string{"acme/s1", "beta/s9"}, scopes)
		})
	}
}

func TestArtifactStore_NotFound(t *testing.T) {
	for name, svc := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Get("acme/s1", "missing.json")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.True(t, errors.Is(err, core.ErrNotFound))
		})
	}
}

func TestArtifactStore_RejectsEscapingKeys(t *testing.T) {
	for name, svc := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../x", "/abs", "a//b", "a/./b"} {
				assert.ErrorIs(t, svc.Save("acme/s1", id, []byte("x")), ErrInvalidKey, id)
			}
		})
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	svc := NewFileStore(root)
	require.NoError(t, svc.Save("acme/s1", "summary.json", []byte("{}")))

	entries, err := os.ReadDir(filepath.Join(root, "acme", "s1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "summary.json", entries[0].Name())
}

func TestFileStore_FailedWriteDoesNotLand(t *testing.T) {
	root := t.TempDir()
	svc := NewFileStore(root)
	// A regular file where a directory is expected makes MkdirAll fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, "acme"), []byte("x"), 0o644))

	assert.Error(t, svc.Save("acme/s1", "plan.json", []byte("{}")))
	_, err := svc.Get("acme/s1", "plan.json")
	assert.Error(t, err)
}

func TestInMemoryArtifactStore_Concurrency(t *testing.T) {
	svc := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = svc.Save("acme/s1", fmt.Sprintf("a%d", i), []byte("x"))
		}(i)
	}
	wg.Wait()
	ids, err := svc.List("acme/s1")
	require.NoError(t, err)
	assert.Len(t, ids, 50)
}

func TestInMemoryArtifactStore_FailWrites(t *testing.T) {
	svc := NewInMemoryStore()
	require.NoError(t, svc.Save("acme/s1", "summary.json", []byte("v1")))

	diskFull := errors.New("disk full")
	svc.FailWrites(func(_, artifactID string) error {
		if artifactID == "summary.json" {
			return diskFull
		}
		return nil
	})

	assert.ErrorIs(t, svc.Save("acme/s1", "summary.json", []byte("v2")), diskFull)
	assert.NoError(t, svc.Save("acme/s1", "plan.json", []byte("p")))

	out, err := svc.Get("acme/s1", "summary.json")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(out))

	svc.FailWrites(nil)
	assert.NoError(t, svc.Save("acme/s1", "summary.json", []byte("v2")))
}
