package period

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the rating store.
	ErrStoreUnavailable = errors.New("rating store unavailable")
	// ErrInconsistentState means the store disagreed with the period snapshot,
	// for example a player vanished between snapshot and commit. It needs
	// manual intervention.
	ErrInconsistentState = errors.New("rating store in inconsistent state")
	// ErrEmptyPeriod is returned for a period without an id.
	ErrEmptyPeriod = errors.New("period id is empty")
)
