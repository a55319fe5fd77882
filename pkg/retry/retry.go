// Package retry provides a bounded exponential-backoff wrapper for
// external service calls.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Default is the standard policy for external API calls.
var Default = Config{
	MaxAttempts:  3,
	InitialDelay: 2 * time.Second,
	MaxDelay:     60 * time.Second,
	Multiplier:   2.0,
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = Default.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = Default.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = Default.MaxDelay
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = Default.Multiplier
	}
	return c
}

// Do runs op, retrying on error with exponential backoff until the attempt
// ceiling is reached. The final error is returned unwrapped so callers can
// inspect it. Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, cfg Config, logger *zap.Logger, name string, op func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			logger.Error("operation failed after retries",
				zap.String("op", name),
				zap.Int("attempts", cfg.MaxAttempts),
				zap.Error(lastErr),
			)
			return lastErr
		}
		logger.Warn("operation failed, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, cfg Config, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, logger, name, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
