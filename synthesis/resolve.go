package synthesis

import (
	"fmt"
	"sort"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Resolve settles a contested claim in favour of winnerID: the winner becomes
// active and every contested rival on its topic is invalidated with the
// winner as successor. doc is not modified.
func (s *Synthesizer) Resolve(doc *core.LivingDocument, winnerID string) (*core.LivingDocument, core.ChangeSet, error) {
	changes := core.ChangeSet{Added: []string{}, Invalidated: []string{}, Contested: []string{}}
	winner, ok := doc.Claim(winnerID)
	if !ok {
		return nil, changes, fmt.Errorf("claim %s: %w", winnerID, core.ErrNotFound)
	}
	if winner.Status != core.ClaimContested {
		return nil, changes, fmt.Errorf("%w: claim %s is %s, not contested", core.ErrValidation, winnerID, winner.Status)
	}

	rivals := make(map[string]bool, len(winner.ContestedWith))
	for _, id := range winner.ContestedWith {
		rivals[id] = true
	}

	next := doc.Clone()
	for i := range next.Claims {
		c := &next.Claims[i]
		switch {
		case c.ID == winnerID:
			c.Status = core.ClaimActive
		case c.Status != core.ClaimContested:
		case rivals[c.ID] || s.matcher.Contradicts(winner, *c):
			c.Status = core.ClaimInvalidated
			c.SupersededBy = winnerID
			changes.Invalidated = append(changes.Invalidated, c.ID)
		}
	}
	sort.Strings(changes.Invalidated)
	next.Version++

	s.logger.Info("contested claim resolved", "winner", winnerID, "invalidated", len(changes.Invalidated), "version", next.Version)
	return next, changes, nil
}
