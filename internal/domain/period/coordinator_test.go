package period_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/periodrank/internal/adapters/repository"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/internal/domain/period"
	. "github.com/smartystreets/goconvey/convey"
)

func win(w, l string) []model.GameResult {
	return []model.GameResult{{Subject: w, Opponent: l, Score: 1}, {Subject: l, Opponent: w, Score: 0}}
}

func draw(a, b string) []model.GameResult {
	return []model.GameResult{{Subject: a, Opponent: b, Score: 0.5}, {Subject: b, Opponent: a, Score: 0.5}}
}

func games(parts ...[]model.GameResult) []model.GameResult {
	var out []model.GameResult
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newCoordinator(store repository.Store, opts ...glicko.Option) *period.Coordinator {
	engine, err := glicko.NewEngine(opts...)
	So(err, ShouldBeNil)
	return period.NewCoordinator(store, engine)
}

func mustGet(ctx context.Context, s repository.Store, name string) model.PlayerRating {
	p, err := s.GetPlayer(ctx, name)
	So(err, ShouldBeNil)
	return p
}

func TestApplyNewPlayers(t *testing.T) {
	Convey("Given an empty store and a period where A beats B", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		c := newCoordinator(store)

		sum, err := c.Apply(ctx, model.Period{ID: "r1", Players: []string{"A", "B"}, Results: win("A", "B")})

		Convey("Then both players are created and rated", func() {
			So(err, ShouldBeNil)
			So(sum.Status, ShouldEqual, model.Applied)
			So(sum.Created, ShouldResemble, []string{"A", "B"})
			So(sum.Players, ShouldEqual, 2)
			So(sum.Games, ShouldEqual, 1)

			a := mustGet(ctx, store, "A")
			b := mustGet(ctx, store, "B")
			So(a.Rating, ShouldAlmostEqual, 1662.3109, 1e-3)
			So(b.Rating, ShouldAlmostEqual, 1337.6891, 1e-3)
			So(a.Deviation, ShouldAlmostEqual, 290.3190, 1e-3)
			So(a.GamesPlayed, ShouldEqual, 1)
			So(a.PointsScored, ShouldEqual, 1.0)
			So(b.PointsScored, ShouldEqual, 0.0)
		})

		Convey("And the period is in the ledger", func() {
			applied, err := store.IsPeriodApplied(ctx, "r1")
			So(err, ShouldBeNil)
			So(applied, ShouldBeTrue)
		})
	})
}

func TestApplyUnratedBeatsEstablished(t *testing.T) {
	Convey("Given an established 1400/30 player", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		So(store.CreatePlayer(ctx, "veteran", 1400, 30, 0.06), ShouldBeNil)
		c := newCoordinator(store)

		Convey("When an unrated newcomer beats them", func() {
			_, err := c.Apply(ctx, model.Period{ID: "r1", Players: []string{"newcomer", "veteran"}, Results: win("newcomer", "veteran")})
			So(err, ShouldBeNil)

			n := mustGet(ctx, store, "newcomer")
			v := mustGet(ctx, store, "veteran")

			Convey("Then the newcomer's rating rises and deviation falls", func() {
				So(n.Rating, ShouldBeGreaterThan, 1500)
				So(n.Deviation, ShouldBeLessThan, 350)
				So(n.Rating, ShouldAlmostEqual, 1631.3689, 1e-3)
				So(n.Deviation, ShouldAlmostEqual, 252.1600, 1e-3)
			})

			Convey("And the veteran is rated against the newcomer's pre-period values", func() {
				So(v.Rating, ShouldAlmostEqual, 1398.4328, 1e-3)
				So(v.Deviation, ShouldAlmostEqual, 31.7019, 1e-3)
			})
		})
	})
}

func TestApplyIdempotent(t *testing.T) {
	Convey("Given an applied period", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		c := newCoordinator(store)

		p := model.Period{ID: "r1", Players: []string{"A", "B"}, Results: win("A", "B")}
		_, err := c.Apply(ctx, p)
		So(err, ShouldBeNil)
		before, err := store.ListPlayers(ctx)
		So(err, ShouldBeNil)

		Convey("When applying it again", func() {
			sum, err := c.Apply(ctx, p)

			Convey("Then nothing changes", func() {
				So(err, ShouldBeNil)
				So(sum.Status, ShouldEqual, model.AlreadyApplied)
				after, err := store.ListPlayers(ctx)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})
		})
	})
}

func TestApplyOrderIndependent(t *testing.T) {
	Convey("Given the same period with results in opposite order", t, func() {
		ctx := context.Background()
		results := games(win("A", "B"), draw("B", "C"), win("C", "A"))
		reversed := make([]model.GameResult, len(results))
		for i, r := range results {
			reversed[len(results)-1-i] = r
		}

		s1 := repository.NewMemoryStore(ctx)
		defer s1.Close()
		s2 := repository.NewMemoryStore(ctx)
		defer s2.Close()

		_, err := newCoordinator(s1).Apply(ctx, model.Period{ID: "r1", Players: []string{"A", "B", "C"}, Results: results})
		So(err, ShouldBeNil)
		_, err = newCoordinator(s2).Apply(ctx, model.Period{ID: "r1", Players: []string{"C", "B", "A"}, Results: reversed})
		So(err, ShouldBeNil)

		Convey("Then every player ends with identical values", func() {
			for _, name := range []string{"A", "B", "C"} {
				p1, p2 := mustGet(ctx, s1, name), mustGet(ctx, s2, name)
				So(p1.Rating, ShouldAlmostEqual, p2.Rating, 1e-9)
				So(p1.Deviation, ShouldAlmostEqual, p2.Deviation, 1e-9)
				So(p1.Volatility, ShouldAlmostEqual, p2.Volatility, 1e-12)
				So(p1.GamesPlayed, ShouldEqual, p2.GamesPlayed)
				So(p1.PointsScored, ShouldEqual, p2.PointsScored)
			}
		})
	})
}

func TestApplyZeroGames(t *testing.T) {
	Convey("Given a rated player listed in a period without valid games", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		So(store.CreatePlayer(ctx, "idle", 1700, 100, 0.06), ShouldBeNil)
		So(store.CreatePlayer(ctx, "absent", 1600, 80, 0.06), ShouldBeNil)
		c := newCoordinator(store)

		_, err := c.Apply(ctx, model.Period{ID: "r1", Players: []string{"idle", "A", "B"}, Results: win("A", "B")})
		So(err, ShouldBeNil)

		Convey("Then only their deviation grows", func() {
			p := mustGet(ctx, store, "idle")
			So(p.Rating, ShouldEqual, 1700.0)
			So(p.Volatility, ShouldEqual, 0.06)
			So(p.Deviation, ShouldBeGreaterThan, 100)
			So(p.GamesPlayed, ShouldEqual, 0)
		})

		Convey("And players outside the period are untouched", func() {
			p := mustGet(ctx, store, "absent")
			So(p, ShouldResemble, model.PlayerRating{Name: "absent", Rating: 1600, Deviation: 80, Volatility: 0.06})
		})
	})
}

func TestApplyAccountingAcrossPeriods(t *testing.T) {
	Convey("Given three periods with a player joining in the second", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		c := newCoordinator(store)

		periods := []model.Period{
			{ID: "r1", Players: []string{"A", "B"}, Results: games(win("A", "B"), draw("A", "B"))},
			{ID: "r2", Players: []string{"A", "C"}, Results: games(win("C", "A"))},
			{ID: "r3", Players: []string{"A", "B", "C"}, Results: games(draw("B", "C"), win("A", "C"), win("B", "A"))},
		}
		var created [][]string
		for _, p := range periods {
			sum, err := c.Apply(ctx, p)
			So(err, ShouldBeNil)
			created = append(created, sum.Created)
		}

		Convey("Then games and points are the sums over all periods", func() {
			a := mustGet(ctx, store, "A")
			b := mustGet(ctx, store, "B")
			cc := mustGet(ctx, store, "C")
			So(a.GamesPlayed, ShouldEqual, 5)
			So(a.PointsScored, ShouldEqual, 2.5)
			So(b.GamesPlayed, ShouldEqual, 4)
			So(b.PointsScored, ShouldEqual, 2.0)
			So(cc.GamesPlayed, ShouldEqual, 3)
			So(cc.PointsScored, ShouldEqual, 1.5)
		})

		Convey("And the newcomer was created with defaults in its first period", func() {
			So(created[0], ShouldResemble, []string{"A", "B"})
			So(created[1], ShouldResemble, []string{"C"})
			So(created[2], ShouldBeEmpty)
		})

		Convey("And the ledger lists every period in order", func() {
			ids, err := store.AppliedPeriods(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"r1", "r2", "r3"})
		})
	})
}

func TestApplyDefaults(t *testing.T) {
	Convey("Given a coordinator with custom starting values", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		engine, err := glicko.NewEngine()
		So(err, ShouldBeNil)
		c := period.NewCoordinator(store, engine, period.WithDefaults(2700, 50, 0.06))

		_, err = c.Apply(ctx, model.Period{ID: "r1", Players: []string{"solo"}})
		So(err, ShouldBeNil)

		Convey("Then new players start from them", func() {
			p := mustGet(ctx, store, "solo")
			So(p.Rating, ShouldEqual, 2700.0)
			So(p.Deviation, ShouldBeGreaterThan, 50)
		})
	})
}

// faultyStore injects failures around a real store.
type faultyStore struct {
	repository.Store
	ledgerErr   error
	hideLedger  bool
	hidePlayers bool
	commitErr   error
}

func (f *faultyStore) IsPeriodApplied(ctx context.Context, id string) (bool, error) {
	if f.ledgerErr != nil {
		return false, f.ledgerErr
	}
	if f.hideLedger {
		return false, nil
	}
	return f.Store.IsPeriodApplied(ctx, id)
}

func (f *faultyStore) GetPlayer(ctx context.Context, name string) (model.PlayerRating, error) {
	if f.hidePlayers {
		return model.PlayerRating{}, repository.ErrPlayerNotFound
	}
	return f.Store.GetPlayer(ctx, name)
}

func (f *faultyStore) Atomically(ctx context.Context, fn func(context.Context, repository.Writer) error) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.Store.Atomically(ctx, fn)
}

func TestApplyFailures(t *testing.T) {
	Convey("Given a store that fails", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore(ctx)
		defer mem.Close()
		p := model.Period{ID: "r1", Players: []string{"A", "B"}, Results: win("A", "B")}

		Convey("When the ledger cannot be read", func() {
			_, err := newCoordinator(&faultyStore{Store: mem, ledgerErr: errors.New("connection refused")}).Apply(ctx, p)
			So(errors.Is(err, period.ErrStoreUnavailable), ShouldBeTrue)
		})

		Convey("When the commit fails", func() {
			_, err := newCoordinator(&faultyStore{Store: mem, commitErr: errors.New("disk full")}).Apply(ctx, p)

			Convey("Then the error is surfaced and nothing is written", func() {
				So(errors.Is(err, period.ErrStoreUnavailable), ShouldBeTrue)
				n, _ := mem.CountPlayers(ctx)
				So(n, ShouldEqual, 0)
				applied, _ := mem.IsPeriodApplied(ctx, "r1")
				So(applied, ShouldBeFalse)
			})
		})

		Convey("When the snapshot misses a stored player", func() {
			So(mem.CreatePlayer(ctx, "A", 1500, 350, 0.06), ShouldBeNil)
			_, err := newCoordinator(&faultyStore{Store: mem, hidePlayers: true}).Apply(ctx, p)

			Convey("Then the state is reported as inconsistent", func() {
				So(errors.Is(err, period.ErrInconsistentState), ShouldBeTrue)
				applied, _ := mem.IsPeriodApplied(ctx, "r1")
				So(applied, ShouldBeFalse)
			})
		})

		Convey("When another commit marked the period after the ledger check", func() {
			So(mem.MarkPeriodApplied(ctx, "r1"), ShouldBeNil)
			sum, err := newCoordinator(&faultyStore{Store: mem, hideLedger: true}).Apply(ctx, p)

			Convey("Then the period counts as already applied", func() {
				So(err, ShouldBeNil)
				So(sum.Status, ShouldEqual, model.AlreadyApplied)
				n, _ := mem.CountPlayers(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the volatility solve cannot converge", func() {
			_, err := newCoordinator(mem, glicko.WithMaxIterations(1), glicko.WithTolerance(1e-15)).Apply(ctx, p)

			Convey("Then the period is aborted before any write", func() {
				So(errors.Is(err, glicko.ErrNumericDivergence), ShouldBeTrue)
				n, _ := mem.CountPlayers(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the period has no id", func() {
			_, err := newCoordinator(mem).Apply(ctx, model.Period{})
			So(errors.Is(err, period.ErrEmptyPeriod), ShouldBeTrue)
		})
	})
}
