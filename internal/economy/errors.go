package economy

import "errors"

// ErrExclusiveLocked is returned when a consumption targets an exclusive
// content unit the owner has no grant for. Exclusive units can never be
// entered with passes.
var ErrExclusiveLocked = errors.New("content unit is exclusive and not owned")
