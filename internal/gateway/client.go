package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2
	defaultBaseDelay  = 500 * time.Millisecond
)

// Observer receives one callback per provider attempt.
type Observer interface {
	ObserveGatewayCall(provider, op, outcome string, elapsed time.Duration)
}

// Options tunes the reliability wrapper around a provider.
type Options struct {
	// Timeout bounds a single provider attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// BaseDelay is the first backoff interval.
	BaseDelay time.Duration
	// RatePerSecond limits outbound calls; zero disables limiting.
	RatePerSecond float64
	Observer      Observer
	Logger        *slog.Logger
}

// Client adds timeout, rate limiting, retry and response validation to a
// Provider.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	observer   Observer
	logger     *slog.Logger
}

var _ Gateway = (*Client)(nil)

// NewClient wraps provider with the given options.
func NewClient(provider Provider, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Client{
		provider:   provider,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		limiter:    limiter,
		observer:   opts.Observer,
		logger:     opts.Logger,
	}
}

// Provider returns the wrapped provider name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Generate sends p to the provider. Transient failures are retried with
// exponential backoff; malformed and rejected responses are returned at once.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	if strings.TrimSpace(p.Text) == "" {
		return "", fmt.Errorf("gateway: empty prompt")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay

	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := c.attempt(ctx, p)
		if err != nil && !IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Gateway call failed, retrying",
				"provider", c.provider.Name(),
				"op", p.Op,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) attempt(ctx context.Context, p Prompt) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("gateway rate limiter: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Generate(callCtx, p)
	if err == nil && strings.TrimSpace(text) == "" {
		err = Malformed(c.provider.Name(), p.Op, errors.New("empty completion"))
	}
	if err != nil {
		if ctxErr := contextError(callCtx, c.provider.Name(), p.Op, err); ctxErr != nil && !isClassified(err) {
			err = ctxErr
		}
	}
	c.observe(p.Op, err, time.Since(start))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) observe(op string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveGatewayCall(c.provider.Name(), op, Outcome(err), elapsed)
}

// Outcome returns the metrics label for a call result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func isClassified(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}
