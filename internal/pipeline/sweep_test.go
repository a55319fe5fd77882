package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meetscribe/backend/internal/models"
	"github.com/meetscribe/backend/pkg/queue"
)

type fakeSweepStore struct {
	failed   []models.Recording
	listErr  error
	resetErr map[int64]error
	resets   []int64
}

func (f *fakeSweepStore) ListFailedBelowRetryCeiling(ctx context.Context) ([]models.Recording, error) {
	return f.failed, f.listErr
}

func (f *fakeSweepStore) ResetForRetry(ctx context.Context, id int64) error {
	if err := f.resetErr[id]; err != nil {
		return err
	}
	f.resets = append(f.resets, id)
	return nil
}

type fakeEnqueuer struct {
	enqueued []int64
	err      error
}

func (f *fakeEnqueuer) EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, payload.RecordingID)
	return nil
}

func TestSweepResetsAndEnqueues(t *testing.T) {
	store := &fakeSweepStore{
		failed: []models.Recording{
			{ID: 1, Status: models.StatusFailed, RetryCount: 0},
			{ID: 2, Status: models.StatusFailed, RetryCount: 2},
		},
	}
	jobs := &fakeEnqueuer{}
	s := NewSweeper(store, jobs, 0, nil)

	s.Sweep(context.Background())

	assert.Equal(t, []int64{1, 2}, store.resets)
	assert.Equal(t, []int64{1, 2}, jobs.enqueued)
}

func TestSweepSkipsRecordingOnResetError(t *testing.T) {
	// A concurrent manual retry can move the row out of failed between the
	// list and the reset; the sweep moves on to the rest.
	store := &fakeSweepStore{
		failed: []models.Recording{
			{ID: 1, Status: models.StatusFailed},
			{ID: 2, Status: models.StatusFailed},
		},
		resetErr: map[int64]error{1: errors.New("no longer failed")},
	}
	jobs := &fakeEnqueuer{}
	s := NewSweeper(store, jobs, 0, nil)

	s.Sweep(context.Background())

	assert.Equal(t, []int64{2}, store.resets)
	assert.Equal(t, []int64{2}, jobs.enqueued)
}

func TestSweepNothingToDo(t *testing.T) {
	store := &fakeSweepStore{}
	jobs := &fakeEnqueuer{}
	s := NewSweeper(store, jobs, 0, nil)

	s.Sweep(context.Background())

	assert.Empty(t, store.resets)
	assert.Empty(t, jobs.enqueued)
}

func TestSweepListError(t *testing.T) {
	store := &fakeSweepStore{listErr: errors.New("db down")}
	jobs := &fakeEnqueuer{}
	s := NewSweeper(store, jobs, 0, nil)

	s.Sweep(context.Background())

	assert.Empty(t, jobs.enqueued)
}
