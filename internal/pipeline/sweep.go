package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/queue"
)

// SweepStore lists failed recordings still under the retry ceiling and
// resets them for another run.
type SweepStore interface {
	ListFailedBelowRetryCeiling(ctx context.Context) ([]models.Recording, error)
	ResetForRetry(ctx context.Context, id int64) error
}

// Enqueuer hands reset recordings back to the worker pool.
type Enqueuer interface {
	EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error
}

// Sweeper periodically re-enqueues failed recordings. Manual retries via the
// API go through the same reset, but without the retry_count ceiling.
type Sweeper struct {
	store    SweepStore
	jobs     Enqueuer
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates the retry sweeper. interval defaults to an hour.
func NewSweeper(store SweepStore, jobs Enqueuer, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, jobs: jobs, interval: interval, logger: logger}
}

// Run sweeps on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("retry sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resets and re-enqueues every failed recording with retries left.
// Errors on individual recordings are logged and do not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	recs, err := s.store.ListFailedBelowRetryCeiling(ctx)
	if err != nil {
		s.logger.Error("sweep: list failed recordings", zap.Error(err))
		return
	}
	if len(recs) == 0 {
		return
	}
	s.logger.Info("sweep: retrying failed recordings", zap.Int("count", len(recs)))
	for _, rec := range recs {
		if err := s.store.ResetForRetry(ctx, rec.ID); err != nil {
			// Someone may have retried or deleted it since the list.
			s.logger.Warn("sweep: reset failed",
				zap.Int64("recording_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.jobs.EnqueueProcessRecording(ctx, queue.ProcessRecordingPayload{RecordingID: rec.ID}); err != nil {
			s.logger.Error("sweep: enqueue failed",
				zap.Int64("recording_id", rec.ID),
				zap.Error(err),
			)
		}
	}
}
