package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/models"
	"github.com/mediafinder/backend/internal/token"
)

var (
	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafinder_searches_total",
		Help: "Total number of search requests processed.",
	})
	searchCachedResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafinder_search_cached_results_total",
		Help: "Total number of search candidates served from the cache store.",
	})
	searchLiveResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafinder_search_live_results_total",
		Help: "Total number of search candidates discovered by live channel scans.",
	})
)

// SearchRepository is the slice of the cache store the search engine uses
type SearchRepository interface {
	SearchByName(ctx context.Context, queryText string, limit int) ([]models.MediaRecord, error)
	Upsert(ctx context.Context, record *models.MediaRecord) error
	BindToken(ctx context.Context, tok, contentID string) error
	TopByPopularity(ctx context.Context, limit int) ([]models.MediaRecord, error)
}

// ChannelReader searches media messages in source channels using the
// read identity. Implemented by the chat-platform client.
type ChannelReader interface {
	SearchMessages(ctx context.Context, channelID int64, queryText string, limit int) ([]models.ChannelMessage, error)
}

// SearchResult is one entry of a search response, sized for the
// constrained interaction payload of the delivery channel
type SearchResult struct {
	Title          string `json:"title"`
	SizeDisplay    string `json:"sizeDisplay"`
	AccessCount    int64  `json:"accessCount"`
	MediaKindLabel string `json:"mediaKindLabel"`
	SelectionToken string `json:"selectionToken"`
}

// SearchService locates media records across the cache store and the
// configured upstream source channels
type SearchService struct {
	repo   SearchRepository
	reader ChannelReader
	cfg    config.SearchConfig
	logger *zap.Logger
}

// NewSearchService creates a new search service. A nil reader disables
// live search; the cache store is then the only source consulted.
func NewSearchService(repo SearchRepository, reader ChannelReader, cfg config.SearchConfig, logger *zap.Logger) *SearchService {
	return &SearchService{
		repo:   repo,
		reader: reader,
		cfg:    cfg,
		logger: logger,
	}
}

// Search finds up to limit records matching the query text.
//
// The cache store is consulted first; if it cannot fill the limit and a
// channel reader is configured, the source channels are scanned in order
// under a global live-search budget. Candidates are deduplicated by
// content-unique ID keeping the most recently updated variant, sorted
// newest first and truncated. An empty slice with a nil error means
// nothing matched; a non-nil error means the cache store itself failed.
func (s *SearchService) Search(ctx context.Context, queryText string, limit int) ([]SearchResult, error) {
	searchesTotal.Inc()
	queryLower := strings.ToLower(strings.TrimSpace(queryText))

	cached, err := s.repo.SearchByName(ctx, queryLower, limit)
	if err != nil {
		return nil, fmt.Errorf("cache search failed: %w", err)
	}
	searchCachedResultsTotal.Add(float64(len(cached)))

	candidates := cached
	if len(candidates) < limit && s.reader != nil {
		candidates = append(candidates, s.searchChannels(ctx, queryLower, limit-len(candidates))...)
	}

	deduped := dedupeByUniqueID(candidates)
	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].LastUpdatedAt.After(deduped[j].LastUpdatedAt)
	})
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	return s.mintResults(ctx, deduped), nil
}

// Popular returns the most accessed records as search results
func (s *SearchService) Popular(ctx context.Context, limit int) ([]SearchResult, error) {
	records, err := s.repo.TopByPopularity(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("popularity lookup failed: %w", err)
	}
	return s.mintResults(ctx, records), nil
}

// searchChannels scans the configured source channels in order until
// needed results are found or the live-search budget runs out. A failure
// against one channel is logged and skipped, never fatal.
func (s *SearchService) searchChannels(ctx context.Context, queryLower string, needed int) []models.MediaRecord {
	liveCtx, cancel := context.WithTimeout(ctx, s.cfg.LiveSearchBudget)
	defer cancel()

	var found []models.MediaRecord
	for _, channelID := range s.cfg.SourceChannels {
		if len(found) >= needed || liveCtx.Err() != nil {
			break
		}

		messages, err := s.queryChannel(liveCtx, channelID, queryLower)
		if err != nil {
			s.logger.Warn("source channel search failed",
				zap.Int64("channel_id", channelID),
				zap.Error(err),
			)
			continue
		}

		for _, msg := range messages {
			if !messageMatches(&msg, queryLower) {
				continue
			}

			record := normalizeMessage(&msg)
			if err := s.repo.Upsert(liveCtx, record); err != nil {
				// cache-miss equivalent: the result is still served
				s.logger.Warn("failed to cache discovered record",
					zap.String("content_id", record.ContentID),
					zap.Error(err),
				)
			}
			searchLiveResultsTotal.Inc()

			found = append(found, *record)
			if len(found) >= needed {
				break
			}
		}
	}

	return found
}

// queryChannel issues one bounded content query against a source channel
func (s *SearchService) queryChannel(ctx context.Context, channelID int64, queryLower string) ([]models.ChannelMessage, error) {
	srcCtx, cancel := context.WithTimeout(ctx, s.cfg.PerSourceTimeout)
	defer cancel()
	return s.reader.SearchMessages(srcCtx, channelID, queryLower, s.cfg.PerSourceLimit)
}

// mintResults binds a selection token for each record and shapes the
// response entries. A binding failure is logged and the entry skipped,
// since its token would not resolve.
func (s *SearchService) mintResults(ctx context.Context, records []models.MediaRecord) []SearchResult {
	results := make([]SearchResult, 0, len(records))
	for i := range records {
		record := &records[i]
		tok := token.Encode(record.ContentID)
		if err := s.repo.BindToken(ctx, tok, record.ContentID); err != nil {
			s.logger.Warn("failed to bind selection token",
				zap.String("content_id", record.ContentID),
				zap.Error(err),
			)
			continue
		}

		results = append(results, SearchResult{
			Title:          record.DisplayName,
			SizeDisplay:    record.SizeDisplay(),
			AccessCount:    record.AccessCount,
			MediaKindLabel: record.Kind.Label(),
			SelectionToken: tok,
		})
	}
	return results
}

// messageMatches reports whether a message's file name or caption
// contains the query text, case-insensitively
func messageMatches(msg *models.ChannelMessage, queryLower string) bool {
	haystack := strings.ToLower(msg.FileName + " " + msg.Caption)
	return strings.Contains(haystack, queryLower)
}

// normalizeMessage shapes a channel message into a cache record
func normalizeMessage(msg *models.ChannelMessage) *models.MediaRecord {
	name := msg.FileName
	if name == "" {
		name = fmt.Sprintf("%s_%d", msg.Kind, msg.MessageID)
	}

	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	return &models.MediaRecord{
		ContentID:       msg.ContentID,
		ContentUniqueID: msg.ContentUniqueID,
		DisplayName:     name,
		ByteSize:        msg.ByteSize,
		MimeKind:        msg.MimeKind,
		Kind:            msg.Kind,
		SourceChannel:   msg.ChannelID,
		SourceMessageID: msg.MessageID,
		LastUpdatedAt:   sentAt,
	}
}

// dedupeByUniqueID collapses candidates sharing a content-unique ID,
// keeping the variant with the more recent timestamp. Candidates without
// a unique ID are passed through untouched.
func dedupeByUniqueID(records []models.MediaRecord) []models.MediaRecord {
	byUniqueID := make(map[string]int, len(records))
	result := make([]models.MediaRecord, 0, len(records))

	for _, record := range records {
		if record.ContentUniqueID == "" {
			result = append(result, record)
			continue
		}

		idx, seen := byUniqueID[record.ContentUniqueID]
		if !seen {
			byUniqueID[record.ContentUniqueID] = len(result)
			result = append(result, record)
			continue
		}
		if record.LastUpdatedAt.After(result[idx].LastUpdatedAt) {
			result[idx] = record
		}
	}

	return result
}
