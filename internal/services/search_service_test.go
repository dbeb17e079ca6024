package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/models"
)

type mockSearchRepository struct {
	records     []models.MediaRecord
	popular     []models.MediaRecord
	searchErr   error
	upsertErr   error
	bindErr     error
	upsertCalls []models.MediaRecord
	boundTokens map[string]string
}

func (m *mockSearchRepository) SearchByName(_ context.Context, _ string, _ int) ([]models.MediaRecord, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.records, nil
}

func (m *mockSearchRepository) Upsert(_ context.Context, record *models.MediaRecord) error {
	m.upsertCalls = append(m.upsertCalls, *record)
	return m.upsertErr
}

func (m *mockSearchRepository) BindToken(_ context.Context, tok, contentID string) error {
	if m.bindErr != nil {
		return m.bindErr
	}
	if m.boundTokens == nil {
		m.boundTokens = make(map[string]string)
	}
	m.boundTokens[tok] = contentID
	return nil
}

func (m *mockSearchRepository) TopByPopularity(_ context.Context, _ int) ([]models.MediaRecord, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.popular, nil
}

type mockChannelReader struct {
	messagesByChannel map[int64][]models.ChannelMessage
	errsByChannel     map[int64]error
	queried           []int64
}

func (m *mockChannelReader) SearchMessages(_ context.Context, channelID int64, _ string, _ int) ([]models.ChannelMessage, error) {
	m.queried = append(m.queried, channelID)
	if err, ok := m.errsByChannel[channelID]; ok {
		return nil, err
	}
	return m.messagesByChannel[channelID], nil
}

func searchTestConfig(channels ...int64) config.SearchConfig {
	return config.SearchConfig{
		SourceChannels:   channels,
		PerSourceLimit:   50,
		PerSourceTimeout: time.Second,
		LiveSearchBudget: 2 * time.Second,
		ResponseCacheTTL: 5 * time.Minute,
	}
}

func cachedRecord(contentID, uniqueID, name string, accessCount int64, updatedAt time.Time) models.MediaRecord {
	return models.MediaRecord{
		ContentID:       contentID,
		ContentUniqueID: uniqueID,
		DisplayName:     name,
		ByteSize:        2 * 1024 * 1024,
		MimeKind:        "application/pdf",
		Kind:            models.MediaKindDocument,
		SourceChannel:   -1001234567890,
		SourceMessageID: 4242,
		AccessCount:     accessCount,
		LastUpdatedAt:   updatedAt,
	}
}

func TestSearchService_Search_CacheHit(t *testing.T) {
	repo := &mockSearchRepository{
		records: []models.MediaRecord{
			cachedRecord("abc123", "uniq-1", "Shadow_Monarch.pdf", 12, time.Now()),
		},
	}
	reader := &mockChannelReader{}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "Shadow_Monarch.pdf", results[0].Title)
	assert.Equal(t, int64(12), results[0].AccessCount)
	assert.Equal(t, "2.00 MB", results[0].SizeDisplay)
	assert.NotEmpty(t, results[0].SelectionToken)
	assert.Contains(t, repo.boundTokens, results[0].SelectionToken)

	// limit already filled from the cache, no channel scan
	assert.Empty(t, reader.queried)
}

func TestSearchService_Search_StoreErrorIsInfraError(t *testing.T) {
	repo := &mockSearchRepository{searchErr: errors.New("connection refused")}
	svc := NewSearchService(repo, nil, searchTestConfig(), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestSearchService_Search_NoMatchesIsNotAnError(t *testing.T) {
	repo := &mockSearchRepository{}
	svc := NewSearchService(repo, nil, searchTestConfig(), zap.NewNop())

	results, err := svc.Search(context.Background(), "nonexistent", 20)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchService_Search_LiveScanFillsCache(t *testing.T) {
	repo := &mockSearchRepository{}
	reader := &mockChannelReader{
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100200: {
				{
					ChannelID:       -100200,
					MessageID:       77,
					ContentID:       "live-1",
					ContentUniqueID: "uniq-live-1",
					FileName:        "Shadow_Garden.mkv",
					ByteSize:        900 * 1024 * 1024,
					MimeKind:        "video/x-matroska",
					Kind:            models.MediaKindVideo,
					SentAt:          time.Now(),
				},
			},
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Shadow_Garden.mkv", results[0].Title)

	// the discovered message lands in the cache store
	require.Len(t, repo.upsertCalls, 1)
	assert.Equal(t, "live-1", repo.upsertCalls[0].ContentID)
}

func TestSearchService_Search_MatchesCaption(t *testing.T) {
	repo := &mockSearchRepository{}
	reader := &mockChannelReader{
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100200: {
				{
					ChannelID:       -100200,
					MessageID:       78,
					ContentID:       "live-2",
					ContentUniqueID: "uniq-live-2",
					Caption:         "Shadow Monarch artbook scan",
					Kind:            models.MediaKindPhoto,
					SentAt:          time.Now(),
				},
				{
					ChannelID:       -100200,
					MessageID:       79,
					ContentID:       "live-3",
					ContentUniqueID: "uniq-live-3",
					FileName:        "unrelated.txt",
					Kind:            models.MediaKindDocument,
					SentAt:          time.Now(),
				},
			},
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// nameless media gets a synthesized display name
	assert.Equal(t, "photo_78", results[0].Title)
}

func TestSearchService_Search_SourceFailureSkipped(t *testing.T) {
	repo := &mockSearchRepository{}
	reader := &mockChannelReader{
		errsByChannel: map[int64]error{
			-100200: errors.New("channel unreachable"),
		},
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100300: {
				{
					ChannelID:       -100300,
					MessageID:       80,
					ContentID:       "live-4",
					ContentUniqueID: "uniq-live-4",
					FileName:        "shadow_notes.pdf",
					Kind:            models.MediaKindDocument,
					SentAt:          time.Now(),
				},
			},
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200, -100300), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int64{-100200, -100300}, reader.queried)
}

func TestSearchService_Search_StopsAtLimit(t *testing.T) {
	repo := &mockSearchRepository{}
	messages := make([]models.ChannelMessage, 0, 5)
	for i := 0; i < 5; i++ {
		messages = append(messages, models.ChannelMessage{
			ChannelID:       -100200,
			MessageID:       int64(100 + i),
			ContentID:       "live-" + string(rune('a'+i)),
			ContentUniqueID: "uniq-" + string(rune('a'+i)),
			FileName:        "shadow_vol.pdf",
			Kind:            models.MediaKindDocument,
			SentAt:          time.Now().Add(time.Duration(i) * time.Minute),
		})
	}
	reader := &mockChannelReader{
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100200: messages,
			-100300: messages,
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200, -100300), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	// the second channel is never consulted once the limit is reached
	assert.Equal(t, []int64{-100200}, reader.queried)
}

func TestSearchService_Search_DedupKeepsLaterTimestamp(t *testing.T) {
	earlier := time.Now().Add(-time.Hour)
	later := time.Now()

	repo := &mockSearchRepository{
		records: []models.MediaRecord{
			cachedRecord("old-id", "uniq-same", "report_v1.pdf", 3, earlier),
		},
	}
	reader := &mockChannelReader{
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100200: {
				{
					ChannelID:       -100200,
					MessageID:       90,
					ContentID:       "new-id",
					ContentUniqueID: "uniq-same",
					FileName:        "report_v2.pdf",
					Kind:            models.MediaKindDocument,
					SentAt:          later,
				},
			},
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200), zap.NewNop())

	results, err := svc.Search(context.Background(), "report", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "report_v2.pdf", results[0].Title)
}

func TestSearchService_Search_UpsertFailureStillServesResult(t *testing.T) {
	repo := &mockSearchRepository{upsertErr: errors.New("deadlock")}
	reader := &mockChannelReader{
		messagesByChannel: map[int64][]models.ChannelMessage{
			-100200: {
				{
					ChannelID:       -100200,
					MessageID:       91,
					ContentID:       "live-5",
					ContentUniqueID: "uniq-live-5",
					FileName:        "shadow_extra.pdf",
					Kind:            models.MediaKindDocument,
					SentAt:          time.Now(),
				},
			},
		},
	}
	svc := NewSearchService(repo, reader, searchTestConfig(-100200), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchService_Search_BindFailureDropsEntry(t *testing.T) {
	repo := &mockSearchRepository{
		records: []models.MediaRecord{
			cachedRecord("abc123", "uniq-1", "Shadow_Monarch.pdf", 12, time.Now()),
		},
		bindErr: errors.New("write timeout"),
	}
	svc := NewSearchService(repo, nil, searchTestConfig(), zap.NewNop())

	results, err := svc.Search(context.Background(), "shadow", 20)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchService_Popular(t *testing.T) {
	repo := &mockSearchRepository{
		popular: []models.MediaRecord{
			cachedRecord("abc123", "uniq-1", "Shadow_Monarch.pdf", 42, time.Now()),
		},
	}
	svc := NewSearchService(repo, nil, searchTestConfig(), zap.NewNop())

	results, err := svc.Popular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(42), results[0].AccessCount)
}
