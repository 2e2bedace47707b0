// Package report turns stored ratings into ranked rows for display.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/okian/periodrank/internal/domain/model"
)

// Row is one ranked line of the rating list.
type Row struct {
	Rank       int     `json:"rank"`
	Name       string  `json:"name"`
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
	Games      int     `json:"games"`
	Points     float64 `json:"pts"`
	PointsRate float64 `json:"pts_rate"`
	MinRating  float64 `json:"min_rating"`
	MaxRating  float64 `json:"max_rating"`
}

// Build ranks players by rating desc, deviation asc, name asc.
func Build(players []model.PlayerRating) []Row {
	sorted := append([]model.PlayerRating(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.Deviation != b.Deviation {
			return a.Deviation < b.Deviation
		}
		return a.Name < b.Name
	})

	rows := make([]Row, len(sorted))
	for i, p := range sorted {
		rows[i] = Row{
			Rank:       i + 1,
			Name:       p.Name,
			Rating:     p.Rating,
			Deviation:  p.Deviation,
			Volatility: p.Volatility,
			Games:      p.GamesPlayed,
			Points:     p.PointsScored,
			PointsRate: pointsRate(p.PointsScored, p.GamesPlayed),
			MinRating:  p.Rating - 2*p.Deviation,
			MaxRating:  p.Rating + 2*p.Deviation,
		}
	}
	return rows
}

// Top returns at most n rows. n < 1 returns all rows.
func Top(rows []Row, n int) []Row {
	if n < 1 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

// Find returns the row of name.
func Find(rows []Row, name string) (Row, bool) {
	for _, r := range rows {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// WriteTable renders rows as an aligned text table. Ratings are rounded to
// whole points for display only.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tName\tRating\tRD\tVolatility\tGames\tPts\tPtsRate\tMinRating\tMaxRating\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.0f\t%.0f\t%.6f\t%d\t%g\t%.3f\t%.0f\t%.0f\t\n",
			r.Rank, r.Name, r.Rating, r.Deviation, r.Volatility, r.Games, r.Points, r.PointsRate, r.MinRating, r.MaxRating)
	}
	return tw.Flush()
}

func pointsRate(points float64, games int) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(points/float64(games)*1000) / 1000
}
