package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/services"
	"github.com/mediafinder/backend/internal/statestore"
)

// Searcher defines the interface for search operations
type Searcher interface {
	// Method Search finds records matching the query text.
	//
	// An empty result with a nil error means nothing matched; a non-nil
	// error means the lookup infrastructure itself failed.
	Search(ctx context.Context, queryText string, limit int) ([]services.SearchResult, error)
	// Method Popular returns the most accessed records.
	Popular(ctx context.Context, limit int) ([]services.SearchResult, error)
}

// InteractionStore keeps the per-user interaction trail
type InteractionStore interface {
	Get(ctx context.Context, userID int64) (*statestore.InteractionState, error)
	Set(ctx context.Context, userID int64, state *statestore.InteractionState) error
}

// SearchHandler handles search-related HTTP requests
type SearchHandler struct {
	BaseHandler
	searcher     Searcher
	interactions InteractionStore
	settings     *config.Settings
	cacheTTL     int // seconds, for the Cache-Control hint
}

// NewSearchHandler creates a new search handler. A nil interactions
// store disables the per-user interaction trail.
func NewSearchHandler(searcher Searcher, interactions InteractionStore, settings *config.Settings, cfg config.SearchConfig, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		BaseHandler:  BaseHandler{Logger: logger},
		searcher:     searcher,
		interactions: interactions,
		settings:     settings,
		cacheTTL:     int(cfg.ResponseCacheTTL.Seconds()),
	}
}

// RegisterRoutes registers all search handler routes
func (h *SearchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/search", h.Search)
	r.Get("/popular", h.Popular)
}

// Search handles GET /search?q=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	minLen := h.settings.MinQueryLength()
	if len([]rune(query)) < minLen {
		// a known requester with no usable query repeats their last one
		query = h.lastQuery(r)
	}
	if len([]rune(query)) < minLen {
		h.RespondError(w, r, http.StatusBadRequest,
			fmt.Sprintf("query must be at least %d characters", minLen))
		return
	}

	limit := h.parseLimit(r)

	results, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		h.Logger.Error("search failed", zap.String("query", query), zap.Error(err))
		h.RespondError(w, r, http.StatusInternalServerError, "search is temporarily unavailable, please try again")
		return
	}

	h.recordInteraction(r, query, results)

	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", h.cacheTTL))
	h.RespondJSON(w, http.StatusOK, results)
}

// lastQuery looks up the requester's previous query so a bare request
// can repeat it. Returns empty when there is no requester or no trail.
func (h *SearchHandler) lastQuery(r *http.Request) string {
	if h.interactions == nil {
		return ""
	}
	requesterID, err := strconv.ParseInt(r.URL.Query().Get("requesterId"), 10, 64)
	if err != nil || requesterID == 0 {
		return ""
	}

	state, err := h.interactions.Get(r.Context(), requesterID)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			h.Logger.Warn("failed to load interaction state",
				zap.Int64("requester_id", requesterID),
				zap.Error(err),
			)
		}
		return ""
	}
	return state.LastQuery
}

// recordInteraction remembers what a known requester just searched for
// and which tokens were offered. Failures never affect the response.
func (h *SearchHandler) recordInteraction(r *http.Request, query string, results []services.SearchResult) {
	if h.interactions == nil {
		return
	}
	requesterID, err := strconv.ParseInt(r.URL.Query().Get("requesterId"), 10, 64)
	if err != nil || requesterID == 0 {
		return
	}

	tokens := make([]string, 0, len(results))
	for _, result := range results {
		tokens = append(tokens, result.SelectionToken)
	}

	state := &statestore.InteractionState{LastQuery: query, LastTokens: tokens}
	if err := h.interactions.Set(r.Context(), requesterID, state); err != nil {
		h.Logger.Warn("failed to record interaction",
			zap.Int64("requester_id", requesterID),
			zap.Error(err),
		)
	}
}

// Popular handles GET /popular?limit=...
func (h *SearchHandler) Popular(w http.ResponseWriter, r *http.Request) {
	results, err := h.searcher.Popular(r.Context(), h.parseLimit(r))
	if err != nil {
		h.Logger.Error("popularity lookup failed", zap.Error(err))
		h.RespondError(w, r, http.StatusInternalServerError, "popular list is temporarily unavailable")
		return
	}

	h.RespondJSON(w, http.StatusOK, results)
}

// parseLimit reads the limit parameter, clamped to the configured maximum
func (h *SearchHandler) parseLimit(r *http.Request) int {
	maxResults := h.settings.MaxResults()

	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return maxResults
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxResults {
		return maxResults
	}
	return limit
}
