package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/backend/pkg/queue"
)

// JobProcessor runs one recording; satisfied by *Processor.
type JobProcessor interface {
	Process(ctx context.Context, recordingID int64) error
}

// Worker consumes processing jobs from the queue with a bounded pool of
// concurrent pipelines.
type Worker struct {
	queue       *queue.Queue
	processor   JobProcessor
	concurrency int
	logger      *zap.Logger
}

// NewWorker creates the job consumer. concurrency bounds how many recordings
// are processed at once.
func NewWorker(q *queue.Queue, processor JobProcessor, concurrency int, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, processor: processor, concurrency: concurrency, logger: logger}
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight
// pipelines to finish.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("pipeline worker started", zap.Int("concurrency", w.concurrency))
	slots := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pipeline worker stopping, waiting for in-flight jobs")
			wg.Wait()
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.DequeueBackoff)
			continue
		}
		if job == nil {
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			// Shutdown raced the dequeue; hand the job back.
			if err := w.queue.Requeue(context.WithoutCancel(ctx), job); err != nil {
				w.logger.Error("requeue on shutdown failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}

		wg.Add(1)
		go func(job *queue.Job) {
			defer wg.Done()
			defer func() { <-slots }()
			if err := w.handle(ctx, job); err != nil {
				w.logger.Error("job failed",
					zap.String("job_id", job.ID),
					zap.String("type", string(job.Type)),
					zap.Error(err),
				)
			}
		}(job)
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeProcessRecording:
		var payload queue.ProcessRecordingPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			if dlqErr := w.queue.Deadletter(ctx, job); dlqErr != nil {
				w.logger.Error("deadletter failed", zap.String("job_id", job.ID), zap.Error(dlqErr))
			}
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		w.logger.Debug("processing job",
			zap.String("job_id", job.ID),
			zap.Int64("recording_id", payload.RecordingID),
		)
		// Stage failures are recorded on the row itself; the sweep decides
		// whether to run the recording again, so the job is not requeued.
		return w.processor.Process(ctx, payload.RecordingID)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
