package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/pkg/clock"
)

// ErrRateLimitExhausted is returned when the rate-limit retry budget ran
// out. It is terminal for the calling job, never retried further here.
var ErrRateLimitExhausted = errors.New("rate limit retry budget exhausted")

// DefaultMaxRetries is the number of retries after the initial attempt.
const DefaultMaxRetries = 10

// RateLimitedClient retries a single grading-pipeline call across rate-limit
// responses. When the server supplies a Retry-After duration it sleeps
// exactly that long; otherwise it doubles a base delay per attempt up to a
// cap. Any non-rate-limit failure is surfaced immediately so the caller can
// classify it per job.
type RateLimitedClient struct {
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	clk         clock.Clock
	logger      zerolog.Logger
}

func NewRateLimitedClient(maxRetries int, backoffBase, backoffMax time.Duration, clk clock.Clock, logger zerolog.Logger) *RateLimitedClient {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RateLimitedClient{
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		clk:         clk,
		logger:      logger,
	}
}

// Call runs fn until it succeeds, fails with a non-rate-limit error, or the
// retry budget runs out. A budget of N allows N+1 calls in total; the call
// after the last permitted retry is the final word. The returned duration is
// the total wall-clock delay spent sleeping between attempts; it is reported
// regardless of outcome so the orchestrator can surface it in status views.
func (c *RateLimitedClient) Call(ctx context.Context, op string, fn func(ctx context.Context) error) (time.Duration, error) {
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return waited, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return waited, err
		}

		if attempt > c.maxRetries {
			c.logger.Warn().
				Str("op", op).
				Int("attempts", attempt).
				Dur("total_wait", waited).
				Msg("Rate limit retry budget exhausted")
			return waited, fmt.Errorf("%s: %w after %d attempts", op, ErrRateLimitExhausted, attempt)
		}

		delay := c.backoffDelay(attempt, rle.RetryAfter)

		c.logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Rate limited, backing off")

		waited += delay
		if err := c.clk.Sleep(ctx, delay); err != nil {
			return waited, err
		}
	}
}

// backoffDelay prefers the server-provided wait and falls back to
// exponential growth: base, 2*base, 4*base, ... capped at backoffMax.
func (c *RateLimitedClient) backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	delay := c.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.backoffMax {
			return c.backoffMax
		}
	}
	if delay > c.backoffMax {
		return c.backoffMax
	}
	return delay
}
