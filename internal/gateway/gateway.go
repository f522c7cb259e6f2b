// Package gateway is the synchronous contract with the hosted
// generative-text model: submit a prompt, receive a completion.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Format selects the shape of the completion requested from the model.
type Format int

const (
	// FormatText asks for free-form text.
	FormatText Format = iota
	// FormatJSON asks the provider to constrain output to a JSON object.
	FormatJSON
)

// Prompt is one request to the reasoning gateway.
type Prompt struct {
	// Op labels the request for logs and metrics ("clarify", "synthesize").
	Op     string
	Text   string
	Format Format
}

// Gateway submits a prompt and returns the model's UTF-8 completion.
type Gateway interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Provider is a Gateway backed by one hosted model API.
type Provider interface {
	Gateway
	Name() string
}

var (
	// ErrTransient marks network, timeout and overload failures. Retryable.
	ErrTransient = errors.New("gateway unavailable")
	// ErrMalformedResponse marks an empty or unusable completion. The
	// current step fails; the user must retry.
	ErrMalformedResponse = errors.New("gateway returned malformed response")
	// ErrRejected marks a request the provider refused (auth, quota, bad
	// request). Not retryable.
	ErrRejected = errors.New("gateway rejected request")
)

// Error is a classified gateway failure.
type Error struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a retryable failure.
func Transient(provider, op string, err error) error {
	return &Error{Provider: provider, Op: op, Kind: ErrTransient, Err: err}
}

// Malformed wraps err as an unusable completion.
func Malformed(provider, op string, err error) error {
	return &Error{Provider: provider, Op: op, Kind: ErrMalformedResponse, Err: err}
}

// Rejected wraps err as a refused request.
func Rejected(provider, op string, err error) error {
	return &Error{Provider: provider, Op: op, Kind: ErrRejected, Err: err}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classifyStatus maps an HTTP status from a provider to an error kind.
func classifyStatus(code int) error {
	switch {
	case code == 408 || code == 429 || code >= 500:
		return ErrTransient
	case code >= 400:
		return ErrRejected
	default:
		return ErrTransient
	}
}

// contextError maps context failures and returns nil for anything else.
// Deadline is transient; caller cancellation is returned unwrapped.
func contextError(ctx context.Context, provider, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(provider, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return nil
}
