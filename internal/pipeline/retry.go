// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/metrics"
)

// retryStage runs one pipeline stage with bounded in-process retries and
// exponential backoff plus jitter. Non-retryable failures (Validation,
// Conflict) return immediately; RateLimited failures wait at least the
// provider's Retry-After hint.
//
// The sleeper indirection exists so tests run without real delays.
type retryStage struct {
	attempts       int
	backoffInitial time.Duration
	backoffMax     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func newRetryStage(attempts int, initial, max time.Duration) retryStage {
	if attempts < 1 {
		attempts = 1
	}
	return retryStage{
		attempts:       attempts,
		backoffInitial: initial,
		backoffMax:     max,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r retryStage) run(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()

	delay := r.backoffInitial
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errs.Retryable(err) || attempt >= r.attempts {
			return err
		}

		wait := delay
		if hint := errs.RetryAfterOf(err); hint > wait {
			wait = hint
		}
		if wait > r.backoffMax {
			wait = r.backoffMax
		}
		wait += jitter(wait)

		logging.Ctx(ctx).Warn().Err(err).
			Str("stage", stage).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Pipeline stage failed, retrying")

		if serr := r.sleep(ctx, wait); serr != nil {
			return serr
		}

		delay *= 2
		if delay > r.backoffMax {
			delay = r.backoffMax
		}
	}
}

// jitter adds up to 25% on top of the base wait so synchronised workers
// hitting the same rate limit fan out.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)/4 + 1))
}
