package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/middleware"
)

// BaseHandler provides common handler functionality
type BaseHandler struct {
	Logger *zap.Logger
}

// ErrorResponse is the body of every error reply. The request ID lets
// a caller quote the failing request when reporting a problem.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// RespondJSON sends a JSON response
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends an error JSON response tagged with the request ID
func (h *BaseHandler) RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.RespondJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
