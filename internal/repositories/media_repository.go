package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mediafinder/backend/internal/models"
)

// ErrNotFound is returned when a record or token mapping does not exist
var ErrNotFound = errors.New("record not found")

// mediaRepository implements the content cache store over MySQL.
// All mutations are single-row upserts or increments keyed by content_id
// or token, so no multi-statement transactions are needed.
type mediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *sql.DB) *mediaRepository {
	return &mediaRepository{
		db: db,
	}
}

// Upsert inserts a record or merges it into an existing one by content ID.
// An insert initializes access_count to zero and stamps first_seen_at; a
// merge refreshes the mutable metadata fields and last_updated_at while
// preserving access_count and first_seen_at.
func (r *mediaRepository) Upsert(ctx context.Context, record *models.MediaRecord) error {
	query := `
		INSERT INTO media_records
			(content_id, content_unique_id, display_name, byte_size, mime_kind, media_kind,
			 source_channel, source_message_id, access_count, first_seen_at, last_updated_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NOW(), NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			content_unique_id = VALUES(content_unique_id),
			display_name = VALUES(display_name),
			byte_size = VALUES(byte_size),
			mime_kind = VALUES(mime_kind),
			media_kind = VALUES(media_kind),
			source_channel = VALUES(source_channel),
			source_message_id = VALUES(source_message_id),
			last_updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ContentID,
		record.ContentUniqueID,
		record.DisplayName,
		record.ByteSize,
		record.MimeKind,
		record.Kind,
		record.SourceChannel,
		record.SourceMessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert media record: %w", err)
	}

	return nil
}

// RecordAccess atomically increments the access count and stamps the
// last-accessed time, returning the count after the increment. Returns
// ErrNotFound when no record exists for the content ID.
func (r *mediaRepository) RecordAccess(ctx context.Context, contentID string) (int64, error) {
	query := `
		UPDATE media_records
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE content_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, contentID)
	if err != nil {
		return 0, fmt.Errorf("failed to record access: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrNotFound
	}

	var count int64
	countQuery := `SELECT access_count FROM media_records WHERE content_id = ?`
	if err := r.db.QueryRowContext(ctx, countQuery, contentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read access count: %w", err)
	}

	return count, nil
}

// GetByContentID retrieves a media record by content ID
func (r *mediaRepository) GetByContentID(ctx context.Context, contentID string) (*models.MediaRecord, error) {
	query := selectColumns + `
		FROM media_records
		WHERE content_id = ?
		LIMIT 1
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, contentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media record: %w", err)
	}

	return record, nil
}

// ResolveToken returns the content ID currently mapped to a selection token
func (r *mediaRepository) ResolveToken(ctx context.Context, tok string) (string, error) {
	query := `
		SELECT content_id
		FROM token_mappings
		WHERE token = ?
		LIMIT 1
	`

	var contentID string
	err := r.db.QueryRowContext(ctx, query, tok).Scan(&contentID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}

	return contentID, nil
}

// BindToken idempotently maps a selection token to a content ID
func (r *mediaRepository) BindToken(ctx context.Context, tok, contentID string) error {
	query := `
		INSERT INTO token_mappings (token, content_id, created_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE content_id = VALUES(content_id)
	`

	_, err := r.db.ExecContext(ctx, query, tok, contentID)
	if err != nil {
		return fmt.Errorf("failed to bind token: %w", err)
	}

	return nil
}

// Rebind moves all records sharing a content-unique ID to a new content ID
// after the origin rotates identifiers. Token mappings that pointed at the
// rotated IDs are updated first so previously minted tokens stay resolvable.
// When a later search has already cached the rotated ID, the stale rows are
// folded into that row (access counts summed) and removed; the primary key
// is never rewritten onto an existing one.
func (r *mediaRepository) Rebind(ctx context.Context, contentUniqueID, newContentID string) (int64, error) {
	remapQuery := `
		UPDATE token_mappings
		SET content_id = ?
		WHERE content_id IN (
			SELECT content_id FROM media_records WHERE content_unique_id = ?
		)
	`
	if _, err := r.db.ExecContext(ctx, remapQuery, newContentID, contentUniqueID); err != nil {
		return 0, fmt.Errorf("failed to remap tokens: %w", err)
	}

	var exists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM media_records WHERE content_id = ?)`
	if err := r.db.QueryRowContext(ctx, existsQuery, newContentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check rebind target: %w", err)
	}

	if !exists {
		recordQuery := `
			UPDATE media_records
			SET content_id = ?, last_updated_at = NOW()
			WHERE content_unique_id = ?
		`
		result, err := r.db.ExecContext(ctx, recordQuery, newContentID, contentUniqueID)
		if err != nil {
			return 0, fmt.Errorf("failed to rebind media records: %w", err)
		}
		return affectedRows(result)
	}

	mergeQuery := `
		UPDATE media_records dst
		JOIN media_records src
			ON src.content_unique_id = ? AND src.content_id <> dst.content_id
		SET dst.access_count = dst.access_count + src.access_count,
		    dst.last_updated_at = NOW()
		WHERE dst.content_id = ?
	`
	if _, err := r.db.ExecContext(ctx, mergeQuery, contentUniqueID, newContentID); err != nil {
		return 0, fmt.Errorf("failed to merge rebound record: %w", err)
	}

	deleteQuery := `
		DELETE FROM media_records
		WHERE content_unique_id = ? AND content_id <> ?
	`
	result, err := r.db.ExecContext(ctx, deleteQuery, contentUniqueID, newContentID)
	if err != nil {
		return 0, fmt.Errorf("failed to drop stale record: %w", err)
	}
	return affectedRows(result)
}

func affectedRows(result sql.Result) (int64, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// SearchByName performs a case-insensitive substring match over display
// names, ordered by popularity with recently accessed records breaking ties
func (r *mediaRepository) SearchByName(ctx context.Context, queryText string, limit int) ([]models.MediaRecord, error) {
	query := selectColumns + `
		FROM media_records
		WHERE LOWER(display_name) LIKE ?
		ORDER BY access_count DESC, last_accessed_at DESC
		LIMIT ?
	`

	pattern := "%" + strings.ToLower(queryText) + "%"
	rows, err := r.db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search media records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// TopByPopularity returns the most accessed records
func (r *mediaRepository) TopByPopularity(ctx context.Context, limit int) ([]models.MediaRecord, error) {
	query := selectColumns + `
		FROM media_records
		ORDER BY access_count DESC, last_accessed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular media records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// PurgeOlderThan deletes all records not accessed within the given number
// of days and returns how many were removed. Popular records get no special
// treatment: the retention window is the only criterion.
func (r *mediaRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	query := `
		DELETE FROM media_records
		WHERE last_accessed_at < NOW() - INTERVAL ? DAY
	`

	result, err := r.db.ExecContext(ctx, query, days)
	if err != nil {
		return 0, fmt.Errorf("failed to purge media records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

const selectColumns = `
		SELECT content_id, content_unique_id, display_name, byte_size, mime_kind, media_kind,
		       source_channel, source_message_id, access_count, first_seen_at, last_updated_at, last_accessed_at
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one media record row
func scanRecord(row rowScanner) (*models.MediaRecord, error) {
	record := &models.MediaRecord{}
	err := row.Scan(
		&record.ContentID,
		&record.ContentUniqueID,
		&record.DisplayName,
		&record.ByteSize,
		&record.MimeKind,
		&record.Kind,
		&record.SourceChannel,
		&record.SourceMessageID,
		&record.AccessCount,
		&record.FirstSeenAt,
		&record.LastUpdatedAt,
		&record.LastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// collectRecords drains a result set of media record rows
func collectRecords(rows *sql.Rows) ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
