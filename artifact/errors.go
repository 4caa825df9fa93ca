package artifact

import (
	"fmt"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var (
	// ErrNotFound is returned when an artifact for the given session / id pair
	// does not exist in the underlying store. It matches core.ErrNotFound.
	ErrNotFound = fmt.Errorf("artifact %w", core.ErrNotFound)
	// ErrInvalidKey is returned for ids that would escape the store root.
	ErrInvalidKey = fmt.Errorf("artifact key %w", core.ErrValidation)
)
