package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
)

var evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediafinder_evicted_records_total",
	Help: "Total number of stale cache records purged.",
})

// Purger removes cache records not accessed within the retention window
type Purger interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// EvictionScheduler periodically purges stale records from the cache
// store. A purge failure is logged and retried on a shortened interval;
// the scheduler itself only stops with its context.
type EvictionScheduler struct {
	purger   Purger
	settings *config.Settings
	interval time.Duration
	logger   *zap.Logger
}

func NewEvictionScheduler(purger Purger, settings *config.Settings, interval time.Duration, logger *zap.Logger) *EvictionScheduler {
	return &EvictionScheduler{
		purger:   purger,
		settings: settings,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled
func (s *EvictionScheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := s.interval
		if err := s.purgeOnce(ctx); err != nil {
			s.logger.Error("eviction pass failed", zap.Error(err))
			next = s.retryInterval()
		}
		timer.Reset(next)
	}
}

func (s *EvictionScheduler) purgeOnce(ctx context.Context) error {
	days := s.settings.RetentionDays()
	purged, err := s.purger.PurgeOlderThan(ctx, days)
	if err != nil {
		return err
	}

	if purged > 0 {
		evictionsTotal.Add(float64(purged))
		s.logger.Info("purged stale records",
			zap.Int64("purged", purged),
			zap.Int("retention_days", days),
		)
	}
	return nil
}

func (s *EvictionScheduler) retryInterval() time.Duration {
	retry := s.interval / 4
	if retry < time.Second {
		retry = time.Second
	}
	return retry
}
