package session

import (
	"fmt"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var (
	// ErrDropComplete is returned for writes into a drop whose summary exists.
	ErrDropComplete = fmt.Errorf("drop is complete and immutable: %w", core.ErrValidation)
	// ErrStaleVersion is returned when a living document would not advance the version log.
	ErrStaleVersion = fmt.Errorf("living document version does not advance: %w", core.ErrValidation)
	// ErrTaskFinal is returned when a stored terminal task would be replaced by a different result.
	ErrTaskFinal = fmt.Errorf("task result is final: %w", core.ErrValidation)
	// ErrNoPlan is returned when tasks or summaries are written for an unplanned drop.
	ErrNoPlan = fmt.Errorf("drop has no plan: %w", core.ErrNotFound)
)
