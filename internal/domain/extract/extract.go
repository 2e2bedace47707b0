// Package extract turns a stream of game-log tags into per-player results.
package extract

import (
	"fmt"
	"strings"

	"github.com/okian/periodrank/internal/domain/model"
)

// Significant tag keys.
const (
	TagWhite  = "White"
	TagBlack  = "Black"
	TagResult = "Result"
)

// Result codes.
const (
	WhiteWins = "1-0"
	BlackWins = "0-1"
	Drawn     = "1/2-1/2"
)

// Tag is one key/value header pair from a game log. Err is set when the line
// looked like a tag but did not parse; Value then holds the raw text.
type Tag struct {
	Key   string
	Value string
	Line  int
	Err   error
}

// Warning describes a game that was skipped.
type Warning struct {
	Line  int
	White string
	Black string
	Code  string
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("line %d: %v", w.Line, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Extraction is the outcome of reading one log.
type Extraction struct {
	// Players lists every name seen in a White or Black tag, first-seen order.
	Players []string
	// Results holds two entries per valid game, white's perspective first.
	Results []model.GameResult
	// Warnings holds one entry per skipped game.
	Warnings []Warning
	// Games counts valid games.
	Games int
}

// Period builds the period for the given id from the extraction.
func (x Extraction) Period(id string) model.Period {
	return model.Period{ID: id, Results: x.Results, Players: x.Players}
}

// Extract walks tags in log order. A Result tag closes the current game.
func Extract(tags []Tag) Extraction {
	var (
		out          Extraction
		seen         = make(map[string]struct{})
		white, black string
	)

	addPlayer := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out.Players = append(out.Players, name)
	}

	warn := func(t Tag, code string, err error) {
		out.Warnings = append(out.Warnings, Warning{
			Line:  t.Line,
			White: white,
			Black: black,
			Code:  code,
			Err:   fmt.Errorf("%w: %w", ErrMalformedInput, err),
		})
	}

	// bad remembers a broken White or Black tag until the game's Result.
	var bad error
	for _, t := range tags {
		if t.Err != nil {
			switch t.Key {
			case TagWhite, TagBlack:
				if bad == nil {
					bad = fmt.Errorf("%w: %w", ErrMalformedTag, t.Err)
				}
			case TagResult:
				warn(t, strings.TrimSpace(t.Value), fmt.Errorf("%w: %w", ErrMalformedTag, t.Err))
				white, black, bad = "", "", nil
			}
			continue
		}

		switch t.Key {
		case TagWhite:
			white = strings.TrimSpace(t.Value)
			addPlayer(white)
		case TagBlack:
			black = strings.TrimSpace(t.Value)
			addPlayer(black)
		case TagResult:
			code := strings.TrimSpace(t.Value)
			if bad != nil {
				warn(t, code, bad)
			} else if pair, err := results(white, black, code); err != nil {
				warn(t, code, err)
			} else {
				out.Results = append(out.Results, pair[0], pair[1])
				out.Games++
			}
			white, black, bad = "", "", nil
		}
	}
	return out
}

func results(white, black, code string) ([2]model.GameResult, error) {
	if white == "" || black == "" {
		return [2]model.GameResult{}, ErrMissingPlayer
	}
	switch code {
	case WhiteWins:
		return [2]model.GameResult{
			{Subject: white, Opponent: black, Score: model.Win},
			{Subject: black, Opponent: white, Score: model.Loss},
		}, nil
	case BlackWins:
		return [2]model.GameResult{
			{Subject: white, Opponent: black, Score: model.Loss},
			{Subject: black, Opponent: white, Score: model.Win},
		}, nil
	case Drawn:
		return [2]model.GameResult{
			{Subject: white, Opponent: black, Score: model.Draw},
			{Subject: black, Opponent: white, Score: model.Draw},
		}, nil
	default:
		return [2]model.GameResult{}, fmt.Errorf("%w %q", ErrUnknownResult, code)
	}
}
