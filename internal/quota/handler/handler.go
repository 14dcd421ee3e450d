// Package handler wires quota operations to their HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verifyd/internal/quota"
	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
	"verifyd/pkg/platform/httputil"
)

// Service defines the quota operations the handler exposes.
type Service interface {
	SetSubscribed(ctx context.Context, identity id.Identity) error
	Usage(ctx context.Context, identity id.Identity) (*quota.UsageRecord, error)
	FreeLimit() int
}

// Handler wires quota endpoints to the quota ledger.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a quota handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With("component", "quota_handler"),
	}
}

// RegisterAdmin mounts the operator-only quota endpoints. The caller
// applies the admin guard middleware on the router it passes in.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/identities/subscribe", h.HandleSubscribe)
	r.Get("/identities/{identity}/usage", h.HandleUsage)
}

type subscribeRequest struct {
	Identity string `json:"identity"`
}

type subscribeResponse struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
}

// HandleSubscribe handles POST /api/v1/identities/subscribe requests.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	identity := id.NormalizeIdentity(req.Identity)
	if err := h.service.SetSubscribed(ctx, identity); err != nil {
		h.logger.ErrorContext(ctx, "subscription activation failed",
			"identity", identity,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, subscribeResponse{
		Identity: identity.String(),
		Status:   "subscribed",
	})
}

type usageResponse struct {
	Identity      string `json:"identity"`
	UploadsUsed   int    `json:"uploads_used"`
	Subscribed    bool   `json:"subscribed"`
	FreeRemaining int    `json:"free_remaining"`
}

// HandleUsage handles GET /api/v1/identities/{identity}/usage requests.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := id.NormalizeIdentity(chi.URLParam(r, "identity"))
	if identity.IsAnonymous() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identity is required"))
		return
	}

	record, err := h.service.Usage(ctx, identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, usageResponse{
		Identity:      record.Identity.String(),
		UploadsUsed:   record.UploadsUsed,
		Subscribed:    record.Subscribed,
		FreeRemaining: record.Remaining(h.service.FreeLimit()),
	})
}
