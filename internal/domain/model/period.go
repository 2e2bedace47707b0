package model

import "time"

// Period is the batch of games in one log, applied at most once.
type Period struct {
	ID      string
	Results []GameResult
	Players []string
}

// ApplyStatus reports what happened when a period was applied.
type ApplyStatus int

const (
	// Applied means the period was committed by this call.
	Applied ApplyStatus = iota + 1
	// AlreadyApplied means the ledger already held the period; nothing was written.
	AlreadyApplied
)

func (s ApplyStatus) String() string {
	switch s {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already_applied"
	default:
		return "unknown"
	}
}

// Summary describes one period application.
type Summary struct {
	PeriodID string      `json:"period_id"`
	Status   ApplyStatus `json:"-"`
	Players  int         `json:"players"`
	Games    int         `json:"games"`
	Created  []string    `json:"created,omitempty"`
	Skipped  int         `json:"skipped"`
}

// PeriodJob is a submitted period waiting in the queue.
type PeriodJob struct {
	ID       string
	Source   []byte
	Received time.Time
}
