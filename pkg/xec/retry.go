// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/xec-sh/xec-core/internal/core"
)

// RetryOptions configures Engine.Retry (spec.md §4.9).
type RetryOptions struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
	// IsRetryable decides whether a failed attempt should be retried.
	// Defaults to exit_code != 0 && exit_code != 255 when nil (spec.md
	// §4.9).
	IsRetryable func(result *Result, err error) bool
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = 2
	}
	if o.IsRetryable == nil {
		o.IsRetryable = defaultIsRetryable
	}
	return o
}

func defaultIsRetryable(result *Result, err error) bool {
	if err != nil {
		return true
	}
	if result == nil {
		return true
	}
	return result.ExitCode != 0 && result.ExitCode != 255
}

// Retry runs cmd through e.Run, retrying on failure per opts up to
// MaxRetries additional attempts, with exponential backoff and optional
// jitter in [0.5, 1.5] (spec.md §4.9). On exhaustion it fails with
// RetryError aggregating every attempt's Result.
func (e *Engine) Retry(ctx context.Context, cmd Command, opts RetryOptions) (*Result, error) {
	opts = opts.withDefaults()

	var results []*Result

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, err := e.Run(ctx, cmd)
		results = append(results, result)

		ok := err == nil && result != nil && result.ExitCode == 0
		if ok {
			return result, nil
		}
		if !opts.IsRetryable(result, err) {
			break
		}
		if attempt == opts.MaxRetries {
			break
		}

		delay := backoffDelay(opts, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, &core.CancellationError{Partial: result}
		}
	}

	return nil, &core.RetryError{
		Attempts:   len(results),
		LastResult: results[len(results)-1],
		Results:    results,
	}
}

// backoffDelay computes min(max_delay, initial_delay * multiplier^attempt),
// optionally scaled by a uniform random factor in [0.5, 1.5].
func backoffDelay(opts RetryOptions, attempt int) time.Duration {
	d := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt))
	if maxDelay := float64(opts.MaxDelay); d > maxDelay {
		d = maxDelay
	}
	if opts.Jitter {
		d *= jitterFactor()
	}
	return time.Duration(d)
}

// jitterFactor draws a uniform random value in [0.5, 1.5] using a
// cryptographic RNG (matching internal/secpass's preference for
// crypto/rand over math/rand throughout this module).
func jitterFactor() float64 {
	const resolution = 1 << 20
	n, err := rand.Int(rand.Reader, big.NewInt(resolution))
	if err != nil {
		return 1.0
	}
	frac := float64(n.Int64()) / float64(resolution) // [0,1)
	return 0.5 + frac
}
