package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), nil, "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), nil, "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsFinalError(t *testing.T) {
	final := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), fastConfig(3), nil, "op", func(ctx context.Context) error {
		calls++
		return final
	})
	assert.ErrorIs(t, err, final)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 2.0}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, nil, "op", func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), fastConfig(2), nil, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestNormalizedDefaults(t *testing.T) {
	c := Config{}.normalized()
	assert.Equal(t, Default.MaxAttempts, c.MaxAttempts)
	assert.Equal(t, Default.InitialDelay, c.InitialDelay)
	assert.Equal(t, Default.MaxDelay, c.MaxDelay)
	assert.Equal(t, Default.Multiplier, c.Multiplier)
}
