// Package api exposes the rating service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/periodrank/internal/app"
	"github.com/okian/periodrank/internal/domain/report"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	PeriodDependencies
	LeaderboardDependencies
	PlayerDependencies
	StatsProvider
}

// Row mirrors the read shape returned by leaderboard and player queries.
type Row = report.Row

// Server wires HTTP routes for the rating API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	periodsHandler     *PeriodsHandler
	leaderboardHandler *LeaderboardHandler
	playersHandler     *PlayersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		periodsHandler:     NewPeriodsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		playersHandler:     NewPlayersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/periods/{id}", MetricsMiddleware(s.periodsHandler.HandlePeriod, "periods"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/players/{name}", MetricsMiddleware(s.playersHandler.HandleGetPlayer, "players"))
}

var _ Dependencies = (*service.Service)(nil)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
