// Package generation sends prompts to a hosted text-generation service and
// owns the retry/backoff policy and the transient/permanent error
// classification around it. Backends are interchangeable single-attempt
// implementations; the Client wraps one with the bounded retry loop.
package generation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Params are the per-call generation parameters.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Validate rejects out-of-range parameters before any network attempt.
func (p Params) Validate() error {
	if p.Temperature < 0 || p.Temperature > 1 {
		return &ConfigError{Reason: "temperature must be in [0,1]"}
	}
	if p.MaxTokens <= 0 {
		return &ConfigError{Reason: "maxTokens must be positive"}
	}
	return nil
}

// backend issues exactly one generation attempt. Implementations classify
// their failures as *TransientError or *PermanentError; anything else is
// treated as permanent.
type backend interface {
	generateOnce(ctx context.Context, systemText, userText string, p Params) (string, error)
}

// Client sends prompts under retry/backoff. It holds only immutable
// configuration and a reusable connection resource, so a single Client is
// safe for concurrent use without locking.
type Client struct {
	backend     backend
	maxAttempts int
	backoff     Backoff
	sleep       SleepFunc
	log         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAttempts bounds the retry loop. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff replaces the delay policy.
func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithSleep replaces the inter-attempt wait. Tests substitute a no-op.
func WithSleep(s SleepFunc) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger attaches a logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func newClient(b backend, opts ...Option) *Client {
	c := &Client{
		backend:     b,
		maxAttempts: 3,
		backoff:     DefaultBackoff(),
		sleep:       ctxSleep,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends the prompt and returns the raw model text. Transient
// failures are retried up to the attempt bound with exponential backoff;
// each attempt issues a fresh call. It returns *ConfigError for invalid
// parameters, *PermanentError for failures retrying cannot fix, and
// *ExhaustedError once the attempt budget or the context deadline runs out.
func (c *Client) Generate(ctx context.Context, systemText, userText string, p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff.Delay(attempt - 1)
			c.log.Debug("backing off before retry",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				// Deadline expired mid-backoff: stop waiting and report
				// exhaustion so the caller can move to its fallback path.
				return "", &ExhaustedError{Attempts: attempt - 1, Last: err}
			}
		}

		start := time.Now()
		text, err := c.backend.generateOnce(ctx, systemText, userText, p)
		if err == nil {
			c.log.Debug("generation succeeded",
				zap.Int("attempt", attempt),
				zap.Int("response_len", len(text)),
				zap.Duration("elapsed", time.Since(start)))
			return text, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return "", err
		}
		lastErr = err
		c.log.Warn("transient generation failure",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return "", &ExhaustedError{Attempts: attempt, Last: ctx.Err()}
		}
	}

	return "", &ExhaustedError{Attempts: c.maxAttempts, Last: lastErr}
}
