// Package gatewaytest provides a deterministic gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/sdlc-studio/internal/gateway"
)

// Response configures one scripted completion.
type Response struct {
	Text string
	Err  error
}

// Scripted replays a fixed sequence of completions and records prompts.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	prompts   []gateway.Prompt
}

var _ gateway.Provider = (*Scripted)(nil)

// NewScripted returns a gateway that answers with responses in order.
func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

// Texts is shorthand for a script of successful completions.
func Texts(texts ...string) *Scripted {
	responses := make([]Response, len(texts))
	for i, t := range texts {
		responses[i] = Response{Text: t}
	}
	return NewScripted(responses...)
}

// Name implements gateway.Provider.
func (s *Scripted) Name() string { return "scripted" }

// Generate implements gateway.Gateway.
func (s *Scripted) Generate(ctx context.Context, p gateway.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, p)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.index >= len(s.responses) {
		return "", fmt.Errorf("script exhausted at call %d", s.index+1)
	}
	current := s.responses[s.index]
	s.index++
	if current.Err != nil {
		return "", current.Err
	}
	return current.Text, nil
}

// Enqueue appends more scripted responses.
func (s *Scripted) Enqueue(responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

// Calls returns the number of Generate invocations.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of every prompt received.
func (s *Scripted) Prompts() []gateway.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Prompt(nil), s.prompts...)
}

// LastPrompt returns the most recent prompt, or a zero value.
func (s *Scripted) LastPrompt() gateway.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return gateway.Prompt{}
	}
	return s.prompts[len(s.prompts)-1]
}
