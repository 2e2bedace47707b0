package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/periodrank/internal/adapters/repository"
	service "github.com/okian/periodrank/internal/app"
	"github.com/okian/periodrank/internal/config"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const (
	janPGN = "[White \"alice\"]\n[Black \"bob\"]\n[Result \"1-0\"]\n\n[White \"bob\"]\n[Black \"carol\"]\n[Result \"*\"]\n"
	febPGN = "[White \"carol\"]\n[Black \"alice\"]\n[Result \"1/2-1/2\"]\n"
)

// isolateEnv keeps the developer's environment out of config.Load.
func isolateEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv(config.EnvEnvFile, filepath.Join(dir, "missing.env"))
	t.Setenv(config.EnvConfig, "")
	t.Setenv("PERIODRANK_STORE_DRIVER", "memory")
	return dir
}

func writeLog(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunWithFiles(t *testing.T) {
	convey.Convey("Given PGN logs on disk", t, func() {
		ctx := context.Background()
		dir := isolateEnv(t)
		jan := writeLog(t, dir, "jan.pgn", janPGN)
		feb := writeLog(t, dir, "feb.pgn", febPGN)
		var stdout, stderr bytes.Buffer

		convey.Convey("When they are passed as arguments", func() {
			code := run(ctx, []string{jan, feb}, &stdout, &stderr)

			convey.Convey("Then each is applied and the table is printed", func() {
				convey.So(code, convey.ShouldEqual, 0)
				out := stdout.String()
				convey.So(out, convey.ShouldContainSubstring, "jan.pgn: 1 games, 3 players (3 new), 1 skipped")
				convey.So(out, convey.ShouldContainSubstring, "feb.pgn: 1 games, 2 players (0 new), 0 skipped")
				convey.So(out, convey.ShouldContainSubstring, "Rating")
				convey.So(out, convey.ShouldContainSubstring, "alice")
				convey.So(out, convey.ShouldContainSubstring, "carol")
				convey.So(stderr.String(), convey.ShouldContainSubstring, "skipping game")
			})
		})

		convey.Convey("When the same file is passed twice", func() {
			code := run(ctx, []string{jan, jan}, &stdout, &stderr)

			convey.Convey("Then the second pass is reported as already applied", func() {
				convey.So(code, convey.ShouldEqual, 0)
				convey.So(stdout.String(), convey.ShouldContainSubstring, "jan.pgn: already applied")
			})
		})

		convey.Convey("When a file does not exist", func() {
			code := run(ctx, []string{filepath.Join(dir, "nope.pgn")}, &stdout, &stderr)

			convey.Convey("Then the run fails", func() {
				convey.So(code, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the ratings live in SQLite", func() {
			t.Setenv("PERIODRANK_STORE_DRIVER", "sqlite")
			t.Setenv("PERIODRANK_STORE_DSN", filepath.Join(dir, "ratings.db"))

			first := run(ctx, []string{jan}, &stdout, &stderr)
			var again bytes.Buffer
			second := run(ctx, []string{jan, feb}, &again, &stderr)

			convey.Convey("Then a later run sees the earlier periods", func() {
				convey.So(first, convey.ShouldEqual, 0)
				convey.So(second, convey.ShouldEqual, 0)
				convey.So(again.String(), convey.ShouldContainSubstring, "jan.pgn: already applied")
				convey.So(again.String(), convey.ShouldContainSubstring, "feb.pgn: 1 games")
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("PERIODRANK_TAU", "-1")
			code := run(ctx, []string{jan}, &stdout, &stderr)

			convey.Convey("Then the run exits with a usage error", func() {
				convey.So(code, convey.ShouldEqual, 2)
				convey.So(stderr.String(), convey.ShouldContainSubstring, "failed to load config")
			})
		})
	})
}

func TestRunDefaultStore(t *testing.T) {
	convey.Convey("Given no store settings at all", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		t.Setenv(config.EnvEnvFile, filepath.Join(dir, "missing.env"))
		t.Setenv(config.EnvConfig, "")
		t.Setenv("PERIODRANK_STORE_DRIVER", "")
		os.Unsetenv("PERIODRANK_STORE_DRIVER")
		t.Setenv("PERIODRANK_STORE_DSN", "")
		os.Unsetenv("PERIODRANK_STORE_DSN")
		t.Chdir(dir)
		jan := writeLog(t, dir, "jan.pgn", janPGN)

		convey.Convey("When the same log is applied in two runs", func() {
			var first, second, stderr bytes.Buffer
			code1 := run(ctx, []string{jan}, &first, &stderr)
			code2 := run(ctx, []string{jan}, &second, &stderr)

			convey.Convey("Then the second run finds it in the ledger", func() {
				convey.So(code1, convey.ShouldEqual, 0)
				convey.So(code2, convey.ShouldEqual, 0)
				convey.So(first.String(), convey.ShouldContainSubstring, "jan.pgn: 1 games, 3 players (3 new), 1 skipped")
				convey.So(second.String(), convey.ShouldContainSubstring, "jan.pgn: already applied")
				_, err := os.Stat(filepath.Join(dir, repository.DefaultSQLiteDSN))
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestServeRoutes(t *testing.T) {
	convey.Convey("Given the HTTP routes over a started service", t, func() {
		ctx := context.Background()
		isolateEnv(t)
		cfg := config.New(ctx)

		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		engine, err := glicko.NewEngine()
		convey.So(err, convey.ShouldBeNil)
		svc := service.New(store, engine, service.WithLogger(logger.Nop()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newMux(ctx, cfg, svc))
		defer srv.Close()

		convey.Convey("When a period is posted", func() {
			resp, err := http.Post(srv.URL+"/periods/jan.pgn", "application/x-chess-pgn", strings.NewReader(janPGN))
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()

			convey.Convey("Then it is accepted, applied and ranked", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)

				applied := false
				for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline) && !applied; {
					var st service.PeriodState
					r, err := http.Get(srv.URL + "/periods/jan.pgn")
					convey.So(err, convey.ShouldBeNil)
					_ = json.NewDecoder(r.Body).Decode(&st)
					_ = r.Body.Close()
					applied = st.Applied
					if !applied {
						time.Sleep(5 * time.Millisecond)
					}
				}
				convey.So(applied, convey.ShouldBeTrue)

				r, err := http.Get(srv.URL + "/leaderboard?limit=2")
				convey.So(err, convey.ShouldBeNil)
				defer r.Body.Close()
				var rows []map[string]any
				convey.So(json.NewDecoder(r.Body).Decode(&rows), convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 2)
				convey.So(rows[0]["name"], convey.ShouldEqual, "alice")
			})
		})

		convey.Convey("When the API docs are requested", func() {
			r, err := http.Get(srv.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer r.Body.Close()
			body, _ := io.ReadAll(r.Body)

			convey.Convey("Then the OpenAPI document is served", func() {
				convey.So(r.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(string(body), convey.ShouldContainSubstring, "/leaderboard")
			})
		})
	})
}

func TestServeShutdown(t *testing.T) {
	convey.Convey("Given a server whose context is already canceled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		isolateEnv(t)
		cfg := config.New(ctx)
		cfg.Addr = "127.0.0.1:0"

		store := repository.NewMemoryStore(context.Background())
		defer store.Close()
		engine, err := glicko.NewEngine()
		convey.So(err, convey.ShouldBeNil)
		svc := service.New(store, engine, service.WithLogger(logger.Nop()))

		convey.Convey("Then serve shuts down cleanly", func() {
			convey.So(serve(ctx, cfg, svc, logger.Nop()), convey.ShouldBeNil)
		})
	})
}
