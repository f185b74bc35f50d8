// Package handler exposes the operator-facing clinic directory endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pagemd/internal/clinic"
	"pagemd/internal/platform/middleware"
	"pagemd/internal/transport/http/shared"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

// Service defines the clinic operations the handler needs.
type Service interface {
	List(ctx context.Context) ([]clinic.Clinic, error)
	Get(ctx context.Context, clinicID id.ClinicID) (clinic.Clinic, error)
	SetStatus(ctx context.Context, operatorID id.OperatorID, clinicID id.ClinicID, to clinic.Status, reason string) (clinic.Clinic, error)
	Impersonate(ctx context.Context, operatorID id.OperatorID, clinicID id.ClinicID, targetUserID id.UserID, reason string) (clinic.ImpersonationTicket, error)
}

type Handler struct {
	clinics Service
	logger  *slog.Logger
}

func New(clinics Service, logger *slog.Logger) *Handler {
	return &Handler{clinics: clinics, logger: logger}
}

// Register mounts the clinic routes. The caller wraps the router with the
// operator auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/clinics", h.handleList)
	r.Get("/clinics/{clinicID}", h.handleGet)
	r.Patch("/clinics/{clinicID}/status", h.handleSetStatus)
	r.Post("/clinics/{clinicID}/impersonate", h.handleImpersonate)
}

type clinicResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    clinic.Status `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func toClinicResponse(c clinic.Clinic) clinicResponse {
	return clinicResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.clinics.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]clinicResponse, 0, len(clinics))
	for _, c := range clinics {
		out = append(out, toClinicResponse(c))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"clinics": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	clinicID, err := id.ParseClinicID(chi.URLParam(r, "clinicID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
		return
	}
	c, err := h.clinics.Get(r.Context(), clinicID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toClinicResponse(c))
}

type statusRequest struct {
	Status clinic.Status `json:"status"`
	Reason string        `json:"reason"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clinicID, err := id.ParseClinicID(chi.URLParam(r, "clinicID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	c, err := h.clinics.SetStatus(ctx, middleware.GetOperatorID(ctx), clinicID, req.Status, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toClinicResponse(c))
}

type impersonateRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

func (h *Handler) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clinicID, err := id.ParseClinicID(chi.URLParam(r, "clinicID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
		return
	}

	var req impersonateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	targetUserID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user id must be a valid UUID"))
		return
	}

	ticket, err := h.clinics.Impersonate(ctx, middleware.GetOperatorID(ctx), clinicID, targetUserID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, ticket)
}
