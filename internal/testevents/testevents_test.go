package testevents

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/periodrank/internal/adapters/http/api"
	"github.com/okian/periodrank/internal/adapters/pgn"
	"github.com/okian/periodrank/internal/adapters/repository"
	service "github.com/okian/periodrank/internal/app"
	"github.com/okian/periodrank/internal/domain/extract"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func initLogger(t *testing.T) {
	t.Helper()
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		t.Fatalf("logger init: %v", err)
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	store := repository.NewMemoryStore(ctx)
	engine, err := glicko.NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	svc := service.New(store, engine, service.WithLogger(logger.Nop()))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc, svc.MaxLeaderboardLimit()).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
		cancel()
		_ = store.Close()
	})
	return srv
}

func TestGenerator(t *testing.T) {
	Convey("Given a field of players", t, func() {
		players := PlayerNames("run", 5)
		strengths := Strengths(5)

		Convey("Then names are prefixed and strengths descend", func() {
			So(players, ShouldResemble, []string{"run-p1", "run-p2", "run-p3", "run-p4", "run-p5"})
			So(strengths[0], ShouldEqual, BaseStrength+StrengthSpread)
			So(strengths[2], ShouldEqual, BaseStrength)
			So(strengths[4], ShouldEqual, BaseStrength-StrengthSpread)
			So(PlayerNames("x", 12)[0], ShouldEqual, "x-p01")
		})

		Convey("When a round robin is generated", func() {
			src, games := RoundRobin(rand.New(rand.NewSource(3)), 1, players, strengths)

			Convey("Then every pair meets once and the log parses cleanly", func() {
				So(games, ShouldEqual, 10)
				tags, err := pgn.Scan(strings.NewReader(src))
				So(err, ShouldBeNil)
				x := extract.Extract(tags)
				So(x.Games, ShouldEqual, 10)
				So(x.Warnings, ShouldBeEmpty)
				So(len(x.Players), ShouldEqual, 5)
			})

			Convey("Then the same seed gives the same log", func() {
				again, _ := RoundRobin(rand.New(rand.NewSource(3)), 1, players, strengths)
				So(again, ShouldEqual, src)
			})
		})

		Convey("When generating periods for a run", func() {
			initLogger(t)
			cfg := &Config{Periods: 3, Players: 4, Seed: 9}
			stats := &Stats{}
			periods, err := generatePeriods(context.Background(), cfg, stats)

			Convey("Then ids share a random run prefix", func() {
				So(err, ShouldBeNil)
				So(cfg.RunID, ShouldHaveLength, 8)
				So(periods, ShouldHaveLength, 3)
				So(periods[2].ID, ShouldEqual, cfg.RunID+"-0003")
				So(stats.GamesGenerated, ShouldEqual, 18)
			})
		})

		Convey("When the field is too small", func() {
			initLogger(t)
			_, err := generatePeriods(context.Background(), &Config{Periods: 1, Players: 1}, &Stats{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVerifyGames(t *testing.T) {
	Convey("Given a two period run of three players", t, func() {
		cfg := &Config{Periods: 2, Players: 3}
		players := []Entry{
			{Name: "a", Games: 4, Points: 3},
			{Name: "b", Games: 4, Points: 2},
			{Name: "c", Games: 4, Points: 1},
		}

		Convey("Then consistent counts pass", func() {
			So(verifyGames(cfg, players), ShouldBeNil)
		})

		Convey("Then a missing game fails", func() {
			players[1].Games = 3
			So(errors.Is(verifyGames(cfg, players), ErrVerification), ShouldBeTrue)
		})

		Convey("Then a lost point fails", func() {
			players[2].Points = 0.5
			So(errors.Is(verifyGames(cfg, players), ErrVerification), ShouldBeTrue)
		})

		Convey("Then an unsorted leaderboard fails", func() {
			board := []Entry{{Rank: 1, Name: "a", Rating: 1500}, {Rank: 2, Name: "b", Rating: 1600}}
			So(errors.Is(verifyLeaderboardOrder(board), ErrVerification), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running periodrank server", t, func() {
		initLogger(t)
		srv := newServer(t)
		out := filepath.Join(t.TempDir(), "logs")
		cfg := &Config{
			BaseURL:     srv.URL,
			RunID:       "t1",
			Periods:     3,
			Players:     5,
			TopN:        3,
			Workers:     2,
			Seed:        7,
			Timeout:     5 * time.Second,
			WaitTimeout: 10 * time.Second,
			OutputDir:   out,
		}

		Convey("When the load test runs", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then every period is applied and verified", func() {
				So(err, ShouldBeNil)
				So(stats.PeriodsAccepted, ShouldEqual, 3)
				So(stats.PeriodsApplied, ShouldEqual, 3)
				So(stats.PlayersRetrieved, ShouldEqual, 5)
				So(stats.LeaderboardEntries, ShouldEqual, 3)
				So(stats.GamesGenerated, ShouldEqual, 30)

				saved, err := os.ReadDir(out)
				So(err, ShouldBeNil)
				So(saved, ShouldHaveLength, 3)
			})

			Convey("And a replay of the same run is recognised as duplicate", func() {
				So(err, ShouldBeNil)
				again, err := Run(context.Background(), cfg)
				So(err, ShouldBeNil)
				So(again.PeriodsDuplicate, ShouldEqual, 3)
				So(again.PeriodsAccepted, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an unhealthy server", t, func() {
		initLogger(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := Run(context.Background(), &Config{BaseURL: srv.URL, Periods: 1, Players: 2, Timeout: time.Second})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}
