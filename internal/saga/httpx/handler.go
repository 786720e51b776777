// Package httpx exposes the orchestrator's read-only HTTP surface: a saga
// status endpoint (backed by the durable store, active and archived
// instances alike) and a health check.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/saga"
	"github.com/jcmexdev/order-fulfillment/internal/saga/sqlite"
)

// StateReader is what the handler needs from the store: a lookup spanning
// active and archived instances plus the transition audit log.
type StateReader interface {
	GetAny(ctx context.Context, correlationID uuid.UUID) (inst *saga.Instance, finalized bool, err error)
	Transitions(ctx context.Context, correlationID uuid.UUID) ([]sqlite.Transition, error)
}

// Handler serves the saga status endpoints.
type Handler struct {
	store StateReader
}

// NewHandler builds the handler over the given store.
func NewHandler(store StateReader) *Handler {
	return &Handler{store: store}
}

// SagaResponse is the JSON shape of GET /sagas/{id}.
type SagaResponse struct {
	Saga        *saga.Instance       `json:"saga"`
	Finalized   bool                 `json:"finalized"`
	Transitions []TransitionResponse `json:"transitions"`
}

// TransitionResponse is one audit log row in the response.
type TransitionResponse struct {
	State     saga.State `json:"state"`
	TraceID   string     `json:"trace_id,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// GetSaga returns the instance and its transition history for one
// correlation id.
func (h *Handler) GetSaga(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	inst, finalized, err := h.store.GetAny(r.Context(), id)
	if errors.Is(err, saga.ErrNotFound) {
		writeError(w, http.StatusNotFound, "saga_not_found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	transitions, err := h.store.Transitions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	resp := SagaResponse{Saga: inst, Finalized: finalized}
	for _, t := range transitions {
		resp.Transitions = append(resp.Transitions, TransitionResponse{
			State:     t.State,
			TraceID:   t.TraceID,
			CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z"),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the JSON error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
