// Package statestore keeps short-lived per-user interaction state in
// Redis, so an instance restart or a second instance never loses track
// of what a user was in the middle of doing.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no state exists for a user
var ErrNotFound = errors.New("interaction state not found")

const (
	defaultPrefix = "mediafinder:interaction:"
	defaultTTL    = 30 * time.Minute
)

// InteractionState is what the pipeline remembers about a user between
// interactions
type InteractionState struct {
	// LastQuery is the most recent search query, reused when the user
	// pages through results
	LastQuery string `json:"lastQuery"`
	// LastTokens are the selection tokens offered by the last search
	LastTokens []string `json:"lastTokens,omitempty"`
	// UpdatedAt is when the state last changed
	UpdatedAt time.Time `json:"updatedAt"`
}

// InteractionStore persists InteractionState per user with a TTL
type InteractionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures an InteractionStore
type Option func(*InteractionStore)

// WithPrefix overrides the key prefix
func WithPrefix(prefix string) Option {
	return func(s *InteractionStore) {
		s.prefix = prefix
	}
}

// WithTTL overrides how long state survives without updates
func WithTTL(ttl time.Duration) Option {
	return func(s *InteractionStore) {
		s.ttl = ttl
	}
}

func NewInteractionStore(client *redis.Client, opts ...Option) *InteractionStore {
	store := &InteractionStore{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *InteractionStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, userID)
}

// Get returns the current state for a user, or ErrNotFound
func (s *InteractionStore) Get(ctx context.Context, userID int64) (*InteractionState, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load interaction state: %w", err)
	}

	var state InteractionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode interaction state: %w", err)
	}
	return &state, nil
}

// Set stores the state for a user and refreshes its TTL
func (s *InteractionStore) Set(ctx context.Context, userID int64, state *InteractionState) error {
	state.UpdatedAt = time.Now()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode interaction state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store interaction state: %w", err)
	}
	return nil
}

// Clear drops the state for a user. Clearing absent state is not an error.
func (s *InteractionStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear interaction state: %w", err)
	}
	return nil
}
