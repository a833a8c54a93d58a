// Package retry supervises repeated whole-transfer attempts. Each
// failed attempt is a full restart of an independent transmission
// session; no partial retransmission of individual chunks happens at
// this layer.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrRetriesExhausted is the terminal failure after the configured
// number of consecutive failed attempts.
var ErrRetriesExhausted = errors.New("retry: attempts exhausted")

// AttemptFunc runs one complete transfer attempt. attempt starts at 1.
// On success it returns the verified buffer.
type AttemptFunc func(attempt int) ([]byte, error)

// Config bounds the controller.
type Config struct {
	// MaxRetries is the maximum number of attempts. Zero means no
	// attempt is made and the run fails immediately.
	MaxRetries int
	// Delay is the constant pause between consecutive attempts.
	Delay time.Duration
}

// Outcome reports the overall result of a supervised transfer. Attempts
// and Elapsed exist for observability only.
type Outcome struct {
	Success  bool
	Attempts int
	Elapsed  time.Duration
	Data     []byte
	Err      error
}

// Run executes fresh attempts strictly sequentially until one succeeds
// or cfg.MaxRetries consecutive attempts have failed. The terminal
// error wraps both ErrRetriesExhausted and the last attempt's failure
// so callers keep the diagnostic detail.
func Run(ctx context.Context, attempt AttemptFunc, cfg Config) Outcome {
	start := time.Now()

	if cfg.MaxRetries <= 0 {
		return Outcome{
			Elapsed: time.Since(start),
			Err:     fmt.Errorf("%w: no attempts permitted", ErrRetriesExhausted),
		}
	}

	var (
		attempts int
		data     []byte
		lastErr  error
	)

	operation := func() error {
		attempts++
		logrus.WithFields(logrus.Fields{
			"function":    "Run",
			"attempt":     attempts,
			"max_retries": cfg.MaxRetries,
		}).Info("Starting transfer attempt")

		d, err := attempt(attempts)
		if err != nil {
			lastErr = err
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"attempt":  attempts,
				"error":    err.Error(),
			}).Warn("Transfer attempt failed")
			return err
		}

		data = d
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Delay), uint64(cfg.MaxRetries-1)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		outcome := Outcome{
			Attempts: attempts,
			Elapsed:  time.Since(start),
		}
		if ctx.Err() != nil {
			outcome.Err = fmt.Errorf("transfer cancelled after %d attempt(s): %w", attempts, ctx.Err())
			return outcome
		}
		outcome.Err = fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempts, lastErr)
		return outcome
	}

	logrus.WithFields(logrus.Fields{
		"function": "Run",
		"attempts": attempts,
		"elapsed":  time.Since(start),
	}).Info("Transfer succeeded")

	return Outcome{
		Success:  true,
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Data:     data,
	}
}
