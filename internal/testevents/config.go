package testevents

import "time"

// Config holds configuration for a load run against a periodrank server.
type Config struct {
	BaseURL     string        // Base URL of the service
	RunID       string        // Prefix of every period id; random when empty
	Periods     int           // Number of rating periods to submit
	Players     int           // Players in the round robin
	TopN        int           // Number of leaderboard rows to fetch
	Workers     int           // Concurrent player lookups
	Seed        int64         // Seed for hidden strengths and results
	Timeout     time.Duration // HTTP request timeout
	WaitTimeout time.Duration // How long to wait for all periods to be applied
	OutputDir   string        // Directory for the generated PGN logs; skipped when empty
	LogFile     string        // Log file for test output
	Verbose     bool          // Enable verbose logging
}

// Period is one generated rating period.
type Period struct {
	ID     string
	Source string
	Games  int
}

// Entry is a leaderboard row as served by GET /leaderboard.
type Entry struct {
	Rank       int     `json:"rank"`
	Name       string  `json:"name"`
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
	Games      int     `json:"games"`
	Points     float64 `json:"pts"`
}

// AckResponse is the body of POST /periods/{id}.
type AckResponse struct {
	PeriodID  string `json:"period_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// PeriodState is the body of GET /periods/{id}.
type PeriodState struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
}

// Stats holds run statistics.
type Stats struct {
	PeriodsGenerated   int
	GamesGenerated     int
	PeriodsAccepted    int
	PeriodsDuplicate   int
	PeriodsRetried     int
	PeriodsFailed      int
	PeriodsApplied     int
	PlayersRetrieved   int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
