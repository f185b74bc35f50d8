// Package handler exposes the operator-facing governance endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pagemd/internal/governance"
	"pagemd/internal/platform/middleware"
	"pagemd/internal/transport/http/shared"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

// Service defines the governance operations the handler needs.
type Service interface {
	ListTemplates(ctx context.Context) ([]governance.RoleTemplate, error)
	GetTemplate(ctx context.Context, roleKey string) (governance.RoleTemplate, error)
	CreateTemplate(ctx context.Context, operatorID id.OperatorID, in governance.TemplateInput) (governance.RoleTemplate, error)
	UpdateTemplate(ctx context.Context, operatorID id.OperatorID, roleKey string, in governance.TemplateInput) (governance.RoleTemplate, error)
	DeleteTemplate(ctx context.Context, operatorID id.OperatorID, roleKey string) error
	DetectDrift(ctx context.Context, clinicID id.ClinicID) ([]governance.DriftReport, error)
	SyncRole(ctx context.Context, clinicID id.ClinicID, roleKey string, operatorID id.OperatorID) (governance.SyncResult, error)
	SyncAllClinics(ctx context.Context, operatorID id.OperatorID) ([]governance.ClinicSyncOutcome, error)
}

type Handler struct {
	governance Service
	logger     *slog.Logger
}

func New(governance Service, logger *slog.Logger) *Handler {
	return &Handler{governance: governance, logger: logger}
}

// Register mounts the governance routes. The caller wraps the router with
// the operator auth middleware; these handlers assume a resolved operator.
func (h *Handler) Register(r chi.Router) {
	r.Get("/governance/templates", h.handleListTemplates)
	r.Post("/governance/templates", h.handleCreateTemplate)
	r.Get("/governance/templates/{roleKey}", h.handleGetTemplate)
	r.Put("/governance/templates/{roleKey}", h.handleUpdateTemplate)
	r.Delete("/governance/templates/{roleKey}", h.handleDeleteTemplate)
	r.Post("/governance/sync-all", h.handleSyncAll)
	r.Get("/clinics/{clinicID}/governance/drift", h.handleDetectDrift)
	r.Post("/clinics/{clinicID}/governance/sync", h.handleSyncRole)
}

type templateResponse struct {
	RoleKey     string   `json:"roleKey"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Version     int      `json:"version"`
	Required    bool     `json:"required"`
	Privileges  []string `json:"privileges"`
}

func toTemplateResponse(tpl governance.RoleTemplate) templateResponse {
	return templateResponse{
		RoleKey:     tpl.RoleKey,
		DisplayName: tpl.DisplayName,
		Description: tpl.Description,
		Version:     tpl.Version,
		Required:    tpl.Required,
		Privileges:  tpl.Privileges,
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.governance.ListTemplates(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, toTemplateResponse(tpl))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.governance.GetTemplate(r.Context(), chi.URLParam(r, "roleKey"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in governance.TemplateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tpl, err := h.governance.CreateTemplate(ctx, middleware.GetOperatorID(ctx), in)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in governance.TemplateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tpl, err := h.governance.UpdateTemplate(ctx, middleware.GetOperatorID(ctx), chi.URLParam(r, "roleKey"), in)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.governance.DeleteTemplate(ctx, middleware.GetOperatorID(ctx), chi.URLParam(r, "roleKey")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDetectDrift(w http.ResponseWriter, r *http.Request) {
	clinicID, err := id.ParseClinicID(chi.URLParam(r, "clinicID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
		return
	}

	reports, err := h.governance.DetectDrift(r.Context(), clinicID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"drift": reports})
}

type syncRequest struct {
	RoleKey string `json:"roleKey"`
}

func (h *Handler) handleSyncRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clinicID, err := id.ParseClinicID(chi.URLParam(r, "clinicID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "clinic id must be a valid UUID"))
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleKey == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "roleKey is required"))
		return
	}

	result, err := h.governance.SyncRole(ctx, clinicID, req.RoleKey, middleware.GetOperatorID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcomes, err := h.governance.SyncAllClinics(ctx, middleware.GetOperatorID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"clinics": outcomes})
}
