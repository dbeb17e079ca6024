package models

import "time"

// RelayState represents the current stage of an in-flight delivery attempt
type RelayState string

const (
	RelayStateReceived   RelayState = "received"
	RelayStateResolving  RelayState = "resolving"
	RelayStateRetrieving RelayState = "retrieving"
	RelayStateStaging    RelayState = "staging"
	RelayStateDelivering RelayState = "delivering"
	RelayStateDelivered  RelayState = "delivered"
	RelayStateFailed     RelayState = "failed"
)

// FailureReason is the user-facing reason attached to a failed relay session
type FailureReason string

const (
	ReasonNotFound          FailureReason = "not found"
	ReasonSourceUnavailable FailureReason = "source unavailable"
	ReasonProcessingFailed  FailureReason = "processing failed"
	ReasonDeliveryFailed    FailureReason = "delivery failed"
	ReasonTimedOut          FailureReason = "timed out"
)

// RelaySession represents one in-flight delivery attempt.
// Sessions are ephemeral, never persisted and never shared across requests.
type RelaySession struct {
	ID                string
	Token             string
	RequesterID       int64
	ResolvedContentID string
	SourceChannel     int64
	SourceMessageID   int64
	StagedRef         *MessageRef
	State             RelayState
	Reason            FailureReason
	AccessCount       int64
	StartedAt         time.Time
}

// Terminal reports whether the session has reached a terminal state
func (s *RelaySession) Terminal() bool {
	return s.State == RelayStateDelivered || s.State == RelayStateFailed
}
