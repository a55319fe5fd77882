package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueProcessing is the Redis list key for recording processing jobs.
	QueueProcessing = "pipeline:recordings"
	// QueueDLQ is the dead-letter queue for jobs that could not be enqueued again.
	QueueDLQ = "pipeline:dlq"
	// inflightPrefix namespaces the single-flight markers per recording.
	inflightPrefix = "pipeline:inflight:"
	// InflightTTL bounds how long a crashed worker can hold a recording.
	InflightTTL = 2 * time.Hour
	// DequeueBackoff is the delay after a dequeue error.
	DequeueBackoff = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeProcessRecording JobType = "process_recording"
)

// ProcessRecordingPayload is the payload for recording processing jobs.
type ProcessRecordingPayload struct {
	RecordingID int64 `json:"recording_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues pipeline jobs via Redis, and owns the
// per-recording single-flight markers.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueProcessRecording enqueues a recording for pipeline processing.
func (q *Queue) EnqueueProcessRecording(ctx context.Context, payload ProcessRecordingPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeProcessRecording,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueProcessing, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued processing job",
		zap.String("job_id", job.ID),
		zap.Int64("recording_id", payload.RecordingID),
	)
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueProcessing).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Requeue pushes a job back onto the processing queue, used when a worker
// shuts down between dequeue and execution.
func (q *Queue) Requeue(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueProcessing, raw).Err(); err != nil {
		return fmt.Errorf("requeue push: %w", err)
	}
	return nil
}

// Deadletter moves a job that repeatedly failed to process to the DLQ for
// operator inspection.
func (q *Queue) Deadletter(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		return fmt.Errorf("dlq push: %w", err)
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// AcquireInflight claims the single-flight marker for a recording. Returns
// false when another worker already holds it (a duplicate invocation must
// no-op rather than run the pipeline twice).
func (q *Queue) AcquireInflight(ctx context.Context, recordingID int64) (bool, error) {
	key := fmt.Sprintf("%s%d", inflightPrefix, recordingID)
	ok, err := q.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), InflightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx inflight: %w", err)
	}
	return ok, nil
}

// ReleaseInflight drops the single-flight marker for a recording.
func (q *Queue) ReleaseInflight(ctx context.Context, recordingID int64) {
	key := fmt.Sprintf("%s%d", inflightPrefix, recordingID)
	if err := q.client.Del(ctx, key).Err(); err != nil {
		q.logger.Warn("release inflight marker failed", zap.Int64("recording_id", recordingID), zap.Error(err))
	}
}
