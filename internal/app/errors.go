package service

import (
	"errors"

	"github.com/okian/periodrank/internal/adapters/repository"
)

// Sentinel errors returned by Service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrInvalidPeriod = errors.New("invalid period")
	ErrBackpressure  = errors.New("period queue full")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
)

// ErrPlayerNotFound is returned by Player for unknown names.
var ErrPlayerNotFound = repository.ErrPlayerNotFound
