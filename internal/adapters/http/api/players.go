package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/periodrank/internal/app"
)

// PlayerDependencies defines the interface for player lookups.
type PlayerDependencies interface {
	Player(ctx context.Context, name string) (Row, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps PlayerDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// HandleGetPlayer handles GET /players/{name} requests.
func (h *PlayersHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}
	row, err := h.deps.Player(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}
