package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// settingsRepository persists runtime tunables as name/value rows
type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB) *settingsRepository {
	return &settingsRepository{
		db: db,
	}
}

// Get returns the stored value for a setting name.
// A missing row is reported as an empty string with a nil error.
func (r *settingsRepository) Get(ctx context.Context, name string) (string, error) {
	query := `
		SELECT value
		FROM settings
		WHERE name = ?
		LIMIT 1
	`

	var value string
	err := r.db.QueryRowContext(ctx, query, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}

	return value, nil
}

// Set stores a value for a setting name, inserting or replacing
func (r *settingsRepository) Set(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO settings (name, value, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, name, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}

	return nil
}
