package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/models"
	"github.com/mediafinder/backend/internal/services"
)

// Deliverer defines the interface for relay operations
type Deliverer interface {
	// Method Deliver runs the full relay for one selection token.
	//
	// The returned session always reflects the final state; the error,
	// when non-nil, is one of the services sentinels.
	Deliver(ctx context.Context, token string, requesterID int64) (*models.RelaySession, error)
}

// SelectionRequest is the body of a selection delivery request
type SelectionRequest struct {
	Token       string `json:"token"`
	RequesterID int64  `json:"requesterId"`
}

// SelectionResponse is returned once a selection has been delivered
type SelectionResponse struct {
	SessionID   string `json:"sessionId"`
	AccessCount int64  `json:"accessCount"`
}

// InteractionCleaner drops a requester's interaction trail once their
// selection has been served
type InteractionCleaner interface {
	Clear(ctx context.Context, userID int64) error
}

// RelayHandler handles selection delivery HTTP requests
type RelayHandler struct {
	BaseHandler
	deliverer    Deliverer
	interactions InteractionCleaner
}

// NewRelayHandler creates a new relay handler. A nil interactions
// cleaner leaves the per-user trail to expire on its own.
func NewRelayHandler(deliverer Deliverer, interactions InteractionCleaner, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{
		BaseHandler:  BaseHandler{Logger: logger},
		deliverer:    deliverer,
		interactions: interactions,
	}
}

// RegisterRoutes registers all relay handler routes
func (h *RelayHandler) RegisterRoutes(r chi.Router) {
	r.Post("/selections", h.Select)
}

// Select handles POST /selections
func (h *RelayHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.RequesterID == 0 {
		h.RespondError(w, r, http.StatusBadRequest, "token and requesterId are required")
		return
	}

	session, err := h.deliverer.Deliver(r.Context(), req.Token, req.RequesterID)
	if err != nil {
		status, message := relayErrorStatus(err)
		h.Logger.Info("selection delivery failed",
			zap.String("token", req.Token),
			zap.Int64("requester_id", req.RequesterID),
			zap.String("reason", string(session.Reason)),
		)
		h.RespondError(w, r, status, message)
		return
	}

	h.clearInteraction(r, req.RequesterID)

	h.RespondJSON(w, http.StatusOK, SelectionResponse{
		SessionID:   session.ID,
		AccessCount: session.AccessCount,
	})
}

// clearInteraction drops the requester's search trail once their
// selection is served. Failures never affect the response.
func (h *RelayHandler) clearInteraction(r *http.Request, requesterID int64) {
	if h.interactions == nil {
		return
	}
	if err := h.interactions.Clear(r.Context(), requesterID); err != nil {
		h.Logger.Warn("failed to clear interaction state",
			zap.Int64("requester_id", requesterID),
			zap.Error(err),
		)
	}
}

// relayErrorStatus maps a relay failure onto an HTTP status
func relayErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "selection not found, search again"
	case errors.Is(err, services.ErrSourceUnavailable):
		return http.StatusGone, "the source for this item is unavailable"
	case errors.Is(err, services.ErrTimedOut):
		return http.StatusGatewayTimeout, "the request took too long, please retry"
	default:
		return http.StatusBadGateway, "delivery failed, please retry"
	}
}
