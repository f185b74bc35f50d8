// Package handler exposes read access to the clinical audit stream for
// compliance review. Writes only happen through the Recorder.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pagemd/internal/audit"
	"pagemd/internal/transport/http/shared"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

const defaultLimit = 100

// Store is the read side of the clinical audit store.
type Store interface {
	FindByID(ctx context.Context, eventID uuid.UUID) (audit.Event, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]audit.Event, error)
	ListByClinic(ctx context.Context, clinicID id.ClinicID, since time.Time, limit int) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleList)
	r.Get("/audit/events/{eventID}", h.handleGet)
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r)

	var (
		events []audit.Event
		err    error
	)
	switch {
	case r.URL.Query().Get("patientId") != "":
		events, err = h.store.ListByPatient(ctx, r.URL.Query().Get("patientId"), limit)
	case r.URL.Query().Get("clinicId") != "":
		var clinicID id.ClinicID
		clinicID, err = id.ParseClinicID(r.URL.Query().Get("clinicId"))
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
			return
		}
		since := time.Time{}
		if raw := r.URL.Query().Get("since"); raw != "" {
			since, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "since must be RFC3339"))
				return
			}
		}
		events, err = h.store.ListByClinic(ctx, clinicID, since, limit)
	default:
		events, err = h.store.ListRecent(ctx, limit)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "event id must be a valid UUID"))
		return
	}
	event, err := h.store.FindByID(r.Context(), eventID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit event not found"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, event)
}
