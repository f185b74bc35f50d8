// Package handler exposes the chain read API: listing entries and running
// verification. There is deliberately no write endpoint; chain entries are
// only ever appended by services recording privileged actions.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pagemd/internal/platformaudit"
	"pagemd/internal/transport/http/shared"
)

// Verifier runs a full chain verification.
type Verifier interface {
	VerifyChain(ctx context.Context) (platformaudit.Report, error)
}

// Lister reads the chain in order.
type Lister interface {
	ListInOrder(ctx context.Context) ([]platformaudit.Entry, error)
}

type Handler struct {
	verifier Verifier
	chain    Lister
	logger   *slog.Logger
}

func New(verifier Verifier, chain Lister, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, chain: chain, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/platform-audit/entries", h.handleListEntries)
	r.Get("/platform-audit/verify", h.handleVerify)
}

type entryResponse struct {
	Seq            int64           `json:"seq"`
	Action         string          `json:"action"`
	TargetClinicID string          `json:"targetClinicId,omitempty"`
	Details        json.RawMessage `json:"details"`
	CreatedAt      time.Time       `json:"createdAt"`
	Hash           string          `json:"hash"`
	PreviousHash   string          `json:"previousHash"`
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.chain.ListInOrder(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp := entryResponse{
			Seq:          e.Seq,
			Action:       e.Action,
			Details:      e.Details,
			CreatedAt:    e.CreatedAt,
			Hash:         e.Hash,
			PreviousHash: e.PreviousHash,
		}
		if e.TargetClinicID != nil {
			resp.TargetClinicID = e.TargetClinicID.String()
		}
		out = append(out, resp)
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.verifier.VerifyChain(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if !report.Valid {
		h.logger.ErrorContext(r.Context(), "platform audit chain verification failed",
			"breaks", len(report.Errors),
		)
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
