package testevents

import "time"

// HTTP status code constants.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Submission and polling constants.
const (
	MaxSubmitAttempts = 20
	RetryBackoff      = 100 * time.Millisecond
	PollInterval      = 50 * time.Millisecond
)

// Generator constants.
const (
	BaseStrength    = 1500.0
	StrengthSpread  = 400.0
	DrawShare       = 0.25
	EloScale        = 400.0
	PointsTolerance = 1e-9
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)
