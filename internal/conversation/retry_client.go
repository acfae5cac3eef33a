package conversation

import (
	"context"
	"time"

	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

const (
	defaultMaxRetries     = 2
	defaultRetryBaseDelay = 2 * time.Second
)

// RetryLLMClient retries failed completions with exponential backoff: the
// first retry waits baseDelay, the second twice that, and so on. Errors
// (including effective timeouts) are all treated the same; context
// cancellation stops the loop immediately.
type RetryLLMClient struct {
	inner      LLMClient
	maxRetries int
	baseDelay  time.Duration
	logger     *logging.Logger
}

// NewRetryLLMClient wraps inner with retry behavior. Zero values select the
// defaults: 2 retries, delays of 2s then 4s.
func NewRetryLLMClient(inner LLMClient, maxRetries int, baseDelay time.Duration, logger *logging.Logger) *RetryLLMClient {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryLLMClient{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Complete attempts the request up to maxRetries+1 times.
func (c *RetryLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying LLM completion",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr.Error(),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return LLMResponse{}, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		resp, err := c.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return LLMResponse{}, lastErr
}
