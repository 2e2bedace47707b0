// Package period applies rating periods: it snapshots every participant,
// computes all Glicko-2 updates from that snapshot and commits them together
// with the ledger mark.
package period

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/periodrank/internal/adapters/repository"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/pkg/logger"
	"github.com/okian/periodrank/pkg/metrics"
)

// Coordinator applies periods to a store. It assumes it is the only writer.
type Coordinator struct {
	store  repository.Store
	engine *glicko.Engine
	log    logger.Logger

	rating     float64
	deviation  float64
	volatility float64
}

// NewCoordinator creates a coordinator over store using engine.
func NewCoordinator(store repository.Store, engine *glicko.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		engine:     engine,
		log:        logger.Nop(),
		rating:     model.DefaultRating,
		deviation:  model.DefaultDeviation,
		volatility: model.DefaultVolatility,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// snapshot is the pre-period state of one participant.
type snapshot struct {
	rating model.PlayerRating
	isNew  bool
}

// Apply runs one period end to end. A period already in the ledger returns
// status AlreadyApplied and writes nothing.
func (c *Coordinator) Apply(ctx context.Context, p model.Period) (model.Summary, error) {
	start := time.Now()
	summary := model.Summary{PeriodID: p.ID}
	if p.ID == "" {
		return summary, ErrEmptyPeriod
	}

	applied, err := c.store.IsPeriodApplied(ctx, p.ID)
	if err != nil {
		return summary, c.fail(ctx, p.ID, "store_unavailable", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	if applied {
		return c.alreadyApplied(ctx, summary), nil
	}

	names := participants(p)
	snap, err := c.snapshot(ctx, names)
	if err != nil {
		return summary, c.fail(ctx, p.ID, "store_unavailable", err)
	}

	updates, err := c.compute(p.Results, names, snap)
	if err != nil {
		return summary, c.fail(ctx, p.ID, "numeric", err)
	}

	var created []string
	for _, name := range names {
		if snap[name].isNew {
			created = append(created, name)
		}
	}

	err = c.store.Atomically(ctx, func(ctx context.Context, w repository.Writer) error {
		for _, name := range created {
			if err := w.CreatePlayer(ctx, name, c.rating, c.deviation, c.volatility); err != nil {
				return err
			}
		}
		for _, u := range updates {
			if err := w.UpdatePlayer(ctx, u); err != nil {
				return err
			}
		}
		return w.MarkPeriodApplied(ctx, p.ID)
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrPeriodApplied):
		return c.alreadyApplied(ctx, summary), nil
	case errors.Is(err, repository.ErrPlayerNotFound), errors.Is(err, repository.ErrPlayerExists):
		return summary, c.fail(ctx, p.ID, "inconsistent_state", fmt.Errorf("%w: %w", ErrInconsistentState, err))
	default:
		return summary, c.fail(ctx, p.ID, "store_unavailable", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	summary.Status = model.Applied
	summary.Players = len(names)
	summary.Games = len(p.Results) / 2
	summary.Created = created

	metrics.RecordPeriodApplied(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordGamesIngested(summary.Games)
	metrics.RecordPlayersCreated(len(created))
	c.log.Info(ctx, "rating period applied",
		logger.String("period", p.ID),
		logger.Int("players", summary.Players),
		logger.Int("games", summary.Games),
		logger.Int("created", len(created)),
		logger.Duration("took", time.Since(start)),
	)
	return summary, nil
}

func (c *Coordinator) alreadyApplied(ctx context.Context, s model.Summary) model.Summary {
	metrics.RecordPeriodDuplicate()
	c.log.Warn(ctx, "rating period already applied, skipping", logger.String("period", s.PeriodID))
	s.Status = model.AlreadyApplied
	return s
}

func (c *Coordinator) fail(ctx context.Context, id, reason string, err error) error {
	metrics.RecordPeriodFailed(reason)
	metrics.RecordErrorByComponent("coordinator", reason)
	c.log.Error(ctx, "rating period aborted", logger.String("period", id), logger.Error(err))
	return err
}

// snapshot reads every participant before anything is written. Unknown names
// get the configured defaults and are marked for creation.
func (c *Coordinator) snapshot(ctx context.Context, names []string) (map[string]snapshot, error) {
	snap := make(map[string]snapshot, len(names))
	for _, name := range names {
		r, err := c.store.GetPlayer(ctx, name)
		switch {
		case err == nil:
			snap[name] = snapshot{rating: r}
		case errors.Is(err, repository.ErrPlayerNotFound):
			snap[name] = snapshot{
				rating: model.NewPlayerRating(name, c.rating, c.deviation, c.volatility),
				isNew:  true,
			}
		default:
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}
	return snap, nil
}

// compute rates every participant against pre-period opponent values only.
func (c *Coordinator) compute(results []model.GameResult, names []string, snap map[string]snapshot) ([]model.RatingUpdate, error) {
	type tally struct {
		opponents []glicko.Opponent
		points    float64
	}
	games := make(map[string]*tally, len(names))
	for _, r := range results {
		t, ok := games[r.Subject]
		if !ok {
			t = &tally{}
			games[r.Subject] = t
		}
		opp := snap[r.Opponent].rating
		t.opponents = append(t.opponents, glicko.Opponent{
			Rating:    opp.Rating,
			Deviation: opp.Deviation,
			Score:     r.Score,
		})
		t.points += r.Score
	}

	updates := make([]model.RatingUpdate, 0, len(names))
	for _, name := range names {
		cur := snap[name].rating
		var t tally
		if g, ok := games[name]; ok {
			t = *g
		}

		next, err := c.engine.Rate(glicko.Rating{
			Rating:     cur.Rating,
			Deviation:  cur.Deviation,
			Volatility: cur.Volatility,
		}, t.opponents)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", name, err)
		}

		updates = append(updates, model.RatingUpdate{
			Name:        name,
			Rating:      next.Rating,
			Deviation:   next.Deviation,
			Volatility:  next.Volatility,
			GamesDelta:  len(t.opponents),
			PointsDelta: t.points,
		})
	}
	return updates, nil
}

// participants lists the period's players followed by any name that only
// appears in its results, without duplicates.
func participants(p model.Period) []string {
	seen := make(map[string]struct{}, len(p.Players))
	out := make([]string, 0, len(p.Players))
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range p.Players {
		add(name)
	}
	for _, r := range p.Results {
		add(r.Subject)
		add(r.Opponent)
	}
	return out
}
