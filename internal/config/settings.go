package config

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Runtime-tunable setting names
const (
	SettingMinQueryLength     = "min_query_length"
	SettingMaxResults         = "max_results"
	SettingRetentionDays      = "retention_days"
	SettingSelfDestructSecond = "self_destruct_seconds"
)

// settingBounds holds the allowed range for one tunable
type settingBounds struct {
	def int
	min int
	max int
}

var settingRegistry = map[string]settingBounds{
	SettingMinQueryLength:     {def: 3, min: 1, max: 32},
	SettingMaxResults:         {def: 20, min: 1, max: 50},
	SettingRetentionDays:      {def: 30, min: 1, max: 365},
	SettingSelfDestructSecond: {def: 300, min: 10, max: 86400},
}

// SettingsRepository persists tunable values
type SettingsRepository interface {
	// Get returns the stored value for a setting name.
	// A missing row is reported as an empty string with a nil error.
	Get(ctx context.Context, name string) (string, error)
	// Set stores a value for a setting name, inserting or replacing
	Set(ctx context.Context, name, value string) error
}

// Settings is the mutable runtime configuration store. Components read
// tunables through it instead of a shared global; admin edits go through
// Set, which validates and persists before the new value becomes visible.
type Settings struct {
	mu     sync.RWMutex
	repo   SettingsRepository
	values map[string]int
}

// NewSettings creates a settings store seeded with defaults
func NewSettings(repo SettingsRepository) *Settings {
	values := make(map[string]int, len(settingRegistry))
	for name, bounds := range settingRegistry {
		values[name] = bounds.def
	}
	return &Settings{
		repo:   repo,
		values: values,
	}
}

// Load refreshes all tunables from the repository.
// Missing or out-of-range persisted values keep their defaults.
func (s *Settings) Load(ctx context.Context) error {
	for name := range settingRegistry {
		raw, err := s.repo.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load setting %s: %w", name, err)
		}
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || s.Validate(name, value) != nil {
			continue
		}
		s.mu.Lock()
		s.values[name] = value
		s.mu.Unlock()
	}
	return nil
}

// Get returns the current value of a tunable.
// Unknown names return zero.
func (s *Settings) Get(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Set validates, persists and applies a new value for a tunable
func (s *Settings) Set(ctx context.Context, name string, value int) error {
	if err := s.Validate(name, value); err != nil {
		return err
	}

	if err := s.repo.Set(ctx, name, strconv.Itoa(value)); err != nil {
		return fmt.Errorf("failed to persist setting %s: %w", name, err)
	}

	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
	return nil
}

// Validate checks that a value is acceptable for a tunable
func (s *Settings) Validate(name string, value int) error {
	bounds, ok := settingRegistry[name]
	if !ok {
		return fmt.Errorf("unknown setting %q", name)
	}
	if value < bounds.min || value > bounds.max {
		return fmt.Errorf("setting %s must be between %d and %d", name, bounds.min, bounds.max)
	}
	return nil
}

// MinQueryLength returns the minimum accepted search query length
func (s *Settings) MinQueryLength() int {
	return s.Get(SettingMinQueryLength)
}

// MaxResults returns the maximum number of search results returned
func (s *Settings) MaxResults() int {
	return s.Get(SettingMaxResults)
}

// RetentionDays returns the cache retention window in days
func (s *Settings) RetentionDays() int {
	return s.Get(SettingRetentionDays)
}

// SelfDestructSeconds returns the delay before a delivered copy is removed
func (s *Settings) SelfDestructSeconds() int {
	return s.Get(SettingSelfDestructSecond)
}
