// Package model contains domain models passed between layers.
package model

// Default values for a player seen for the first time.
const (
	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06
)

// PlayerRating is the persisted Glicko-2 state of one player.
type PlayerRating struct {
	Name         string  `json:"name"`
	Rating       float64 `json:"rating"`
	Deviation    float64 `json:"deviation"`
	Volatility   float64 `json:"volatility"`
	GamesPlayed  int     `json:"games"`
	PointsScored float64 `json:"points"`
}

// NewPlayerRating returns a rating with the given starting values and no games.
func NewPlayerRating(name string, rating, deviation, volatility float64) PlayerRating {
	return PlayerRating{
		Name:       name,
		Rating:     rating,
		Deviation:  deviation,
		Volatility: volatility,
	}
}

// Apply returns a copy of p with the update written over it.
// Rating, deviation and volatility are replaced; counters are added.
func (p PlayerRating) Apply(u RatingUpdate) PlayerRating {
	p.Rating = u.Rating
	p.Deviation = u.Deviation
	p.Volatility = u.Volatility
	p.GamesPlayed += u.GamesDelta
	p.PointsScored += u.PointsDelta
	return p
}

// RatingUpdate is the staged write computed for one player in one period.
type RatingUpdate struct {
	Name        string
	Rating      float64
	Deviation   float64
	Volatility  float64
	GamesDelta  int
	PointsDelta float64
}

// Score values a game result may carry.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// GameResult is one side of a finished game, seen from Subject.
type GameResult struct {
	Subject  string
	Opponent string
	Score    float64
}
