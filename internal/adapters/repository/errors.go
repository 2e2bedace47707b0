package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("player already exists")
	ErrPeriodApplied  = errors.New("period already applied")
	ErrConflict       = errors.New("concurrent modification")
	ErrInvalidName    = errors.New("invalid name")
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrClosed         = errors.New("store closed")
)

func isSentinel(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrPlayerExists) ||
		errors.Is(err, ErrPeriodApplied) ||
		errors.Is(err, ErrInvalidName)
}
