package memory

import (
	"sort"
	"strings"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// NormalizeTags lowercases, trims and dedupes tags, preserving order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Rank orders records by tag overlap (descending), then creation time
// (newest first), then id. Records sharing no tag are dropped. A limit <= 0
// returns every match.
func Rank(recs []core.MetadataRecord, tags []string, limit int) []core.MetadataRecord {
	want := make(map[string]bool, len(tags))
	for _, t := range NormalizeTags(tags) {
		want[t] = true
	}
	type scored struct {
		rec     core.MetadataRecord
		overlap int
	}
	var hits []scored
	for _, r := range recs {
		n := 0
		for _, t := range NormalizeTags(r.Tags) {
			if want[t] {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{rec: r, overlap: n})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.rec.ID < b.rec.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]core.MetadataRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}
