// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/ingestion"
)

// Retrier repeats a provider call while it fails with a retryable error.
// Delays follow the pipeline's backoff curve starting at the configured
// base delay.
type Retrier struct {
	attempts int
	backoff  ingestion.BackoffPolicy
	rnd      func() float64
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewRetrier creates a Retrier that makes at most attempts calls.
func NewRetrier(attempts int, baseDelay time.Duration) (*Retrier, error) {
	if attempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if baseDelay < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRetryDelay, baseDelay)
	}
	return &Retrier{
		attempts: attempts,
		backoff: ingestion.BackoffPolicy{
			Base:   baseDelay,
			Cap:    ingestion.DefaultBackoff.Cap,
			Jitter: ingestion.DefaultBackoff.Jitter,
		},
		rnd:    rand.Float64,
		sleep:  sleepContext,
		logger: slog.Default().With("component", "retrier"),
	}, nil
}

// Do calls op until it succeeds. Errors that ai.IsRetryable rejects are
// returned at once; otherwise the last error is returned once every
// attempt has failed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Debug("call succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !ai.IsRetryable(lastErr) {
			r.logger.Debug("call failed permanently", "attempt", attempt, "err", lastErr)
			return lastErr
		}
		if attempt == r.attempts {
			break
		}

		delay := r.backoff.Jittered(attempt, r.rnd)
		r.logger.Debug("call failed, will retry", "attempt", attempt, "delay", delay, "err", lastErr)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
