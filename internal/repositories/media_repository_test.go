package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mediafinder/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMediaTestRepository creates a media repository with a mock database
func setupMediaTestRepository(t *testing.T) (*mediaRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewMediaRepository(db)

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func testRecord() *models.MediaRecord {
	return &models.MediaRecord{
		ContentID:       "BQACAgUAAxkBAAIBpW",
		ContentUniqueID: "AgADHgsAAvS9aVU",
		DisplayName:     "Shadow_Monarch.pdf",
		ByteSize:        4 * 1024 * 1024,
		MimeKind:        "application/pdf",
		Kind:            models.MediaKindDocument,
		SourceChannel:   -1001234567890,
		SourceMessageID: 4242,
	}
}

func TestMediaRepository_Upsert(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedError bool
	}{
		{
			name: "success insert",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO media_records`).
					WithArgs("BQACAgUAAxkBAAIBpW", "AgADHgsAAvS9aVU", "Shadow_Monarch.pdf",
						int64(4*1024*1024), "application/pdf", models.MediaKindDocument,
						int64(-1001234567890), int64(4242)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectedError: false,
		},
		{
			name: "success merge of existing row",
			setupMock: func(mock sqlmock.Sqlmock) {
				// MySQL reports 2 affected rows for an ON DUPLICATE KEY update
				mock.ExpectExec(`INSERT INTO media_records`).
					WithArgs("BQACAgUAAxkBAAIBpW", "AgADHgsAAvS9aVU", "Shadow_Monarch.pdf",
						int64(4*1024*1024), "application/pdf", models.MediaKindDocument,
						int64(-1001234567890), int64(4242)).
					WillReturnResult(sqlmock.NewResult(0, 2))
			},
			expectedError: false,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO media_records`).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMediaTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			err := repo.Upsert(context.Background(), testRecord())

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMediaRepository_RecordAccess(t *testing.T) {
	t.Run("returns post-increment count", func(t *testing.T) {
		repo, mock, cleanup := setupMediaTestRepository(t)
		defer cleanup()

		mock.ExpectExec(`UPDATE media_records`).
			WithArgs("content-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT access_count`).
			WithArgs("content-1").
			WillReturnRows(sqlmock.NewRows([]string{"access_count"}).AddRow(13))

		count, err := repo.RecordAccess(context.Background(), "content-1")

		require.NoError(t, err)
		assert.Equal(t, int64(13), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record missing", func(t *testing.T) {
		repo, mock, cleanup := setupMediaTestRepository(t)
		defer cleanup()

		mock.ExpectExec(`UPDATE media_records`).
			WithArgs("content-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := repo.RecordAccess(context.Background(), "content-1")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock, cleanup := setupMediaTestRepository(t)
		defer cleanup()

		mock.ExpectExec(`UPDATE media_records`).
			WithArgs("content-1").
			WillReturnError(errors.New("database error"))

		_, err := repo.RecordAccess(context.Background(), "content-1")

		assert.Error(t, err)
	})
}

func TestMediaRepository_ResolveToken(t *testing.T) {
	t.Run("token found", func(t *testing.T) {
		repo, mock, cleanup := setupMediaTestRepository(t)
		defer cleanup()

		mock.ExpectQuery(`SELECT content_id`).
			WithArgs("Ab3xYz_9").
			WillReturnRows(sqlmock.NewRows([]string{"content_id"}).AddRow("content-1"))

		contentID, err := repo.ResolveToken(context.Background(), "Ab3xYz_9")

		require.NoError(t, err)
		assert.Equal(t, "content-1", contentID)
	})

	t.Run("token missing", func(t *testing.T) {
		repo, mock, cleanup := setupMediaTestRepository(t)
		defer cleanup()

		mock.ExpectQuery(`SELECT content_id`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"content_id"}))

		_, err := repo.ResolveToken(context.Background(), "missing")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMediaRepository_BindTokenThenResolve(t *testing.T) {
	repo, mock, cleanup := setupMediaTestRepository(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO token_mappings`).
		WithArgs("Ab3xYz_9", "content-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT content_id`).
		WithArgs("Ab3xYz_9").
		WillReturnRows(sqlmock.NewRows([]string{"content_id"}).AddRow("content-1"))

	require.NoError(t, repo.BindToken(context.Background(), "Ab3xYz_9", "content-1"))

	contentID, err := repo.ResolveToken(context.Background(), "Ab3xYz_9")
	require.NoError(t, err)
	assert.Equal(t, "content-1", contentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepository_Rebind(t *testing.T) {
	repo, mock, cleanup := setupMediaTestRepository(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE token_mappings`).
		WithArgs("new-content", "unique-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("new-content").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE media_records`).
		WithArgs("new-content", "unique-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.Rebind(context.Background(), "unique-1", "new-content")

	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepository_Rebind_MergesIntoExistingRow(t *testing.T) {
	repo, mock, cleanup := setupMediaTestRepository(t)
	defer cleanup()

	// The rotated content ID was already cached by a later search, so the
	// stale row is folded in and deleted rather than rewritten onto the
	// existing primary key.
	mock.ExpectExec(`UPDATE token_mappings`).
		WithArgs("new-content", "unique-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("new-content").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE media_records dst`).
		WithArgs("unique-1", "new-content").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM media_records`).
		WithArgs("unique-1", "new-content").
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.Rebind(context.Background(), "unique-1", "new-content")

	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func recordRows(records ...*models.MediaRecord) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"content_id", "content_unique_id", "display_name", "byte_size", "mime_kind", "media_kind",
		"source_channel", "source_message_id", "access_count", "first_seen_at", "last_updated_at", "last_accessed_at",
	})
	for _, r := range records {
		rows.AddRow(r.ContentID, r.ContentUniqueID, r.DisplayName, r.ByteSize, r.MimeKind, r.Kind,
			r.SourceChannel, r.SourceMessageID, r.AccessCount, r.FirstSeenAt, r.LastUpdatedAt, r.LastAccessedAt)
	}
	return rows
}

func TestMediaRepository_SearchByName(t *testing.T) {
	repo, mock, cleanup := setupMediaTestRepository(t)
	defer cleanup()

	record := testRecord()
	record.AccessCount = 12
	record.FirstSeenAt = time.Now().Add(-48 * time.Hour)
	record.LastUpdatedAt = time.Now().Add(-time.Hour)
	record.LastAccessedAt = time.Now()

	mock.ExpectQuery(`SELECT content_id, content_unique_id, display_name`).
		WithArgs("%shadow%", 20).
		WillReturnRows(recordRows(record))

	records, err := repo.SearchByName(context.Background(), "Shadow", 20)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Shadow_Monarch.pdf", records[0].DisplayName)
	assert.Equal(t, int64(12), records[0].AccessCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaRepository_SearchByName_NoMatches(t *testing.T) {
	repo, mock, cleanup := setupMediaTestRepository(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT content_id, content_unique_id, display_name`).
		WithArgs("%nothing%", 20).
		WillReturnRows(recordRows())

	records, err := repo.SearchByName(context.Background(), "nothing", 20)

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMediaRepository_PurgeOlderThan(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedCount int64
		expectedError bool
	}{
		{
			name: "deletes stale records",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM media_records`).
					WithArgs(30).
					WillReturnResult(sqlmock.NewResult(0, 7))
			},
			expectedCount: 7,
		},
		{
			name: "nothing stale",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM media_records`).
					WithArgs(30).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectedCount: 0,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM media_records`).
					WithArgs(30).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupMediaTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			count, err := repo.PurgeOlderThan(context.Background(), 30)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedCount, count)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSettingsRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSettingsRepository(db)

	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("retention_days", "14").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT value`).
		WithArgs("retention_days").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("14"))
	mock.ExpectQuery(`SELECT value`).
		WithArgs("missing_setting").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	require.NoError(t, repo.Set(context.Background(), "retention_days", "14"))

	value, err := repo.Get(context.Background(), "retention_days")
	require.NoError(t, err)
	assert.Equal(t, "14", value)

	value, err = repo.Get(context.Background(), "missing_setting")
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
