package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/models"
	"github.com/mediafinder/backend/internal/repositories"
)

var relaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediafinder_relays_total",
	Help: "Total number of relay sessions by outcome.",
}, []string{"outcome"})

// RelayRepository is the slice of the cache store the relay uses
type RelayRepository interface {
	ResolveToken(ctx context.Context, tok string) (string, error)
	GetByContentID(ctx context.Context, contentID string) (*models.MediaRecord, error)
	RecordAccess(ctx context.Context, contentID string) (int64, error)
	Rebind(ctx context.Context, contentUniqueID, newContentID string) (int64, error)
}

// Retriever fetches the current state of a message from a source channel
// using the read identity
type Retriever interface {
	GetMessage(ctx context.Context, channelID, messageID int64) (*models.ChannelMessage, error)
}

// Courier moves messages between chats using the delivery identity
type Courier interface {
	CopyMessage(ctx context.Context, toChat, fromChat, messageID int64, caption string) (*models.MessageRef, error)
	ForwardMessage(ctx context.Context, toChat, fromChat, messageID int64) (*models.MessageRef, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Notifier reports relay progress back to the requester. Implementations
// may return ErrNoChanges when the previous update carried the same text.
type Notifier interface {
	Notify(ctx context.Context, requesterID int64, text string) error
}

// RelayService moves a selected media item from its source channel to
// the requester through the holding channel
type RelayService struct {
	repo       RelayRepository
	retriever  Retriever
	courier    Courier
	notifier   Notifier
	tokenCache *TokenCache
	settings   *config.Settings
	cfg        config.RelayConfig
	logger     *zap.Logger
}

func NewRelayService(
	repo RelayRepository,
	retriever Retriever,
	courier Courier,
	notifier Notifier,
	tokenCache *TokenCache,
	settings *config.Settings,
	cfg config.RelayConfig,
	logger *zap.Logger,
) *RelayService {
	return &RelayService{
		repo:       repo,
		retriever:  retriever,
		courier:    courier,
		notifier:   notifier,
		tokenCache: tokenCache,
		settings:   settings,
		cfg:        cfg,
		logger:     logger,
	}
}

// Deliver runs the full relay for one selection token. The returned
// session always reflects the final state; the error, when non-nil, is
// one of the service sentinels wrapping the underlying cause.
func (s *RelayService) Deliver(ctx context.Context, tok string, requesterID int64) (*models.RelaySession, error) {
	session := &models.RelaySession{
		ID:          uuid.NewString(),
		Token:       tok,
		RequesterID: requesterID,
		State:       models.RelayStateReceived,
		StartedAt:   time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallBudget)
	defer cancel()

	err := s.run(ctx, session)
	if err != nil {
		if session.Reason == "" {
			session.Reason = reasonFor(err)
		}
		session.State = models.RelayStateFailed
		relaysTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("relay failed",
			zap.String("session_id", session.ID),
			zap.String("token", tok),
			zap.String("reason", string(session.Reason)),
			zap.Error(err),
		)
		s.notify(requesterID, failureMessage(session.Reason))
		return session, err
	}

	session.State = models.RelayStateDelivered
	s.progress(session)
	relaysTotal.WithLabelValues("delivered").Inc()
	s.logger.Info("relay delivered",
		zap.String("session_id", session.ID),
		zap.String("content_id", session.ResolvedContentID),
		zap.Int64("requester_id", requesterID),
	)
	return session, nil
}

func (s *RelayService) run(ctx context.Context, session *models.RelaySession) error {
	record, err := s.resolve(ctx, session)
	if err != nil {
		return err
	}

	msg, err := s.retrieve(ctx, session, record)
	if err != nil {
		return err
	}

	staged, err := s.stage(ctx, session, msg)
	if err != nil {
		return err
	}

	delivered, err := s.deliverStaged(ctx, session, record, staged)
	if err != nil {
		return err
	}

	s.finish(session, record, staged, delivered)
	return nil
}

// resolve maps the token to a cached record
func (s *RelayService) resolve(ctx context.Context, session *models.RelaySession) (*models.MediaRecord, error) {
	session.State = models.RelayStateResolving
	s.progress(session)
	resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	contentID, ok := s.tokenCache.Get(session.Token)
	if !ok {
		var err error
		contentID, err = s.repo.ResolveToken(resolveCtx, session.Token)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, fmt.Errorf("token %q: %w", session.Token, ErrNotFound)
			}
			return nil, s.classify(ctx, fmt.Errorf("token resolution: %w", err))
		}
		s.tokenCache.Set(session.Token, contentID)
	}

	record, err := s.repo.GetByContentID(resolveCtx, contentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("content %q: %w", contentID, ErrNotFound)
		}
		return nil, s.classify(ctx, fmt.Errorf("record lookup: %w", err))
	}

	session.ResolvedContentID = record.ContentID
	session.SourceChannel = record.SourceChannel
	session.SourceMessageID = record.SourceMessageID
	return record, nil
}

// retrieve fetches the live source message and reconciles identifier
// rotation against the cached record
func (s *RelayService) retrieve(ctx context.Context, session *models.RelaySession, record *models.MediaRecord) (*models.ChannelMessage, error) {
	session.State = models.RelayStateRetrieving
	s.progress(session)
	retrieveCtx, cancel := context.WithTimeout(ctx, s.cfg.RetrieveTimeout)
	defer cancel()

	msg, err := s.retriever.GetMessage(retrieveCtx, record.SourceChannel, record.SourceMessageID)
	if err != nil {
		return nil, s.classify(ctx, fmt.Errorf("source retrieval: %w: %v", ErrSourceUnavailable, err))
	}
	if msg == nil || msg.ContentID == "" {
		return nil, fmt.Errorf("source message gone: %w", ErrSourceUnavailable)
	}

	if msg.ContentID != record.ContentID && msg.ContentUniqueID == record.ContentUniqueID {
		if _, err := s.repo.Rebind(retrieveCtx, record.ContentUniqueID, msg.ContentID); err != nil {
			s.logger.Warn("identifier rebind failed",
				zap.String("content_unique_id", record.ContentUniqueID),
				zap.Error(err),
			)
		} else {
			s.tokenCache.Set(session.Token, msg.ContentID)
			record.ContentID = msg.ContentID
			session.ResolvedContentID = msg.ContentID
		}
	}

	return msg, nil
}

// stage copies the source message into the holding channel, falling back
// to a forward when copying is rejected
func (s *RelayService) stage(ctx context.Context, session *models.RelaySession, msg *models.ChannelMessage) (*models.MessageRef, error) {
	session.State = models.RelayStateStaging
	s.progress(session)
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()

	var staged *models.MessageRef
	err := withRateLimitRetry(stageCtx, s.cfg.RateLimitBudget, func() error {
		var copyErr error
		staged, copyErr = s.courier.CopyMessage(stageCtx, s.cfg.HoldingChannel, msg.ChannelID, msg.MessageID, msg.Caption)
		return copyErr
	})
	if err == nil {
		session.StagedRef = staged
		return staged, nil
	}

	s.logger.Debug("staging copy failed, trying forward",
		zap.String("session_id", session.ID),
		zap.Error(err),
	)

	err = withRateLimitRetry(stageCtx, s.cfg.RateLimitBudget, func() error {
		var fwdErr error
		staged, fwdErr = s.courier.ForwardMessage(stageCtx, s.cfg.HoldingChannel, msg.ChannelID, msg.MessageID)
		return fwdErr
	})
	if err != nil {
		return nil, s.classify(ctx, fmt.Errorf("staging: %w: %v", ErrProcessingFailed, err))
	}

	session.StagedRef = staged
	return staged, nil
}

// deliverStaged copies the staged message to the requester
func (s *RelayService) deliverStaged(ctx context.Context, session *models.RelaySession, record *models.MediaRecord, staged *models.MessageRef) (*models.MessageRef, error) {
	session.State = models.RelayStateDelivering
	s.progress(session)
	deliverCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliverTimeout)
	defer cancel()

	caption := deliveryCaption(record, s.settings.SelfDestructSeconds())

	var delivered *models.MessageRef
	err := withRateLimitRetry(deliverCtx, s.cfg.RateLimitBudget, func() error {
		var copyErr error
		delivered, copyErr = s.courier.CopyMessage(deliverCtx, session.RequesterID, staged.ChatID, staged.MessageID, caption)
		return copyErr
	})
	if err != nil {
		return nil, s.classify(ctx, fmt.Errorf("delivery: %w: %v", ErrDeliveryFailed, err))
	}

	return delivered, nil
}

// finish records the access and detaches the cleanup work so the
// response is not held up by it
func (s *RelayService) finish(session *models.RelaySession, record *models.MediaRecord, staged, delivered *models.MessageRef) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer cancel()

	count, err := s.repo.RecordAccess(cleanupCtx, record.ContentID)
	if err != nil {
		s.logger.Warn("access count not recorded",
			zap.String("content_id", record.ContentID),
			zap.Error(err),
		)
		count = record.AccessCount + 1
	}
	session.AccessCount = count

	go s.cleanup(staged, delivered, session.RequesterID)
}

// cleanup removes the staging copy immediately and the delivered copy
// once the self-destruct window elapses
func (s *RelayService) cleanup(staged, delivered *models.MessageRef, requesterID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer cancel()

	if err := s.courier.DeleteMessage(ctx, staged.ChatID, staged.MessageID); err != nil {
		s.logger.Warn("failed to remove staging copy",
			zap.Int64("chat_id", staged.ChatID),
			zap.Int64("message_id", staged.MessageID),
			zap.Error(err),
		)
	}

	wait := time.Duration(s.settings.SelfDestructSeconds()) * time.Second
	time.Sleep(wait)

	destructCtx, destructCancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
	defer destructCancel()
	if err := s.courier.DeleteMessage(destructCtx, delivered.ChatID, delivered.MessageID); err != nil {
		s.logger.Warn("self-destruct removal failed",
			zap.Int64("requester_id", requesterID),
			zap.Int64("message_id", delivered.MessageID),
			zap.Error(err),
		)
	}
}

// classify maps a step failure onto the right sentinel, preferring the
// timeout reason when the session budget has run out
func (s *RelayService) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	return err
}

// progress tells the requester which stage their selection is in. The
// front end edits one status message in place, so repeated identical
// texts come back as ErrNoChanges and are ignored like any other
// notification failure.
func (s *RelayService) progress(session *models.RelaySession) {
	if text := progressMessage(session.State); text != "" {
		s.notify(session.RequesterID, text)
	}
}

// progressMessage is the status line shown for each relay stage
func progressMessage(state models.RelayState) string {
	switch state {
	case models.RelayStateResolving:
		return "Looking up your selection..."
	case models.RelayStateRetrieving:
		return "Retrieving file..."
	case models.RelayStateStaging:
		return "Processing file..."
	case models.RelayStateDelivering:
		return "Sending file..."
	case models.RelayStateDelivered:
		return "Done! Your file is on its way."
	default:
		return ""
	}
}

func (s *RelayService) notify(requesterID int64, text string) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResolveTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, requesterID, text); err != nil && !errors.Is(err, ErrNoChanges) {
		s.logger.Debug("progress notification failed",
			zap.Int64("requester_id", requesterID),
			zap.Error(err),
		)
	}
}

// reasonFor translates a sentinel error into the stored failure reason
func reasonFor(err error) models.FailureReason {
	switch {
	case errors.Is(err, ErrNotFound):
		return models.ReasonNotFound
	case errors.Is(err, ErrSourceUnavailable):
		return models.ReasonSourceUnavailable
	case errors.Is(err, ErrProcessingFailed):
		return models.ReasonProcessingFailed
	case errors.Is(err, ErrDeliveryFailed):
		return models.ReasonDeliveryFailed
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return models.ReasonTimedOut
	default:
		return models.ReasonProcessingFailed
	}
}

func failureMessage(reason models.FailureReason) string {
	switch reason {
	case models.ReasonNotFound:
		return "That selection is no longer available. Try searching again."
	case models.ReasonSourceUnavailable:
		return "The source for this item is currently unavailable."
	case models.ReasonTimedOut:
		return "The request took too long. Please try again."
	default:
		return "Something went wrong while preparing your item. Please try again."
	}
}

// deliveryCaption annotates the delivered copy with its display
// metadata and the removal notice
func deliveryCaption(record *models.MediaRecord, selfDestructSeconds int) string {
	minutes := selfDestructSeconds / 60
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%s %s (%s)\nThis message will be removed in %d min. Save it now.",
		record.Kind.Label(), record.DisplayName, record.SizeDisplay(), minutes)
}
