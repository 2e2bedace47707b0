package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/periodrank/internal/app"
)

const maxPeriodBytes = 8 << 20

// PeriodDependencies defines what the periods endpoints need.
type PeriodDependencies interface {
	Submit(ctx context.Context, id string, source []byte) (service.SubmitStatus, error)
	PeriodStatus(ctx context.Context, id string) (service.PeriodState, error)
}

// PeriodsHandler handles /periods/{id}.
type PeriodsHandler struct {
	deps PeriodDependencies
}

// NewPeriodsHandler creates a new periods handler.
func NewPeriodsHandler(deps PeriodDependencies) *PeriodsHandler {
	return &PeriodsHandler{deps: deps}
}

type ackResponse struct {
	PeriodID  string `json:"period_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePeriod dispatches POST (submit a PGN log) and GET (ledger status).
func (h *PeriodsHandler) HandlePeriod(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind("api.period", ErrBadRequest, errors.New("missing period id")))
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.submit(w, r, id)
	case http.MethodGet:
		h.status(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *PeriodsHandler) submit(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.post_period"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPeriodBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", wrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	status, err := h.deps.Submit(r.Context(), id, body)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, ErrUnavailable, err))
		return
	}

	resp := ackResponse{PeriodID: id, Status: status.String()}
	if status == service.SubmitAccepted {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	resp.Duplicate = true
	writeJSON(w, http.StatusOK, resp)
}

func (h *PeriodsHandler) status(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.deps.PeriodStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind("api.get_period", ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
