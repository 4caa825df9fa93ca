package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, age time.Duration, tags ...string) core.MetadataRecord {
	return core.MetadataRecord{ID: id, Kind: core.MetadataDrop, ProjectID: "acme", SessionID: "s1", Pointer: id + "/summary.json", Tags: tags, CreatedAt: t0.Add(-age)}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"pricing", "icp"}, NormalizeTags([]string{" Pricing", "icp", "PRICING", ""}))
}

func TestRank(t *testing.T) {
	recs := []core.MetadataRecord{
		rec("old-two", 2*time.Hour, "pricing", "icp"),
		rec("new-one", 0, "pricing"),
		rec("old-one", time.Hour, "icp"),
		rec("b-two", 2*time.Hour, "pricing", "icp"),
		rec("none", 0, "hiring"),
	}

	got := Rank(recs, []string{"pricing", "icp"}, 0)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"b-two", "old-two", "new-one", "old-one"}, ids)

	assert.Len(t, Rank(recs, []string{"pricing"}, 1), 1)
	assert.Empty(t, Rank(recs, nil, 5))
}

func TestInMemoryStore(t *testing.T) {
	m := NewInMemoryStore()
	require.NoError(t, m.Put(rec("a", 0, "pricing")))
	require.NoError(t, m.Put(rec("b", time.Hour, "pricing", "icp")))

	got, err := m.FindRelated([]string{"icp", "pricing"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, m.Put(rec("b", time.Hour, "hiring")))
		got, err := m.FindRelated([]string{"icp"}, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 2, m.Len())
	})

	t.Run("invalid record", func(t *testing.T) {
		assert.ErrorIs(t, m.Put(core.MetadataRecord{ID: "x"}), core.ErrValidation)
	})

	require.NoError(t, m.Reset())
	assert.Zero(t, m.Len())
}
