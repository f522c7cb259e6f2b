// Package conversation drives one agent's clarify, feedback and output
// cycle against the reasoning gateway.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/gateway"
	"github.com/ashureev/sdlc-studio/internal/prompts"
)

// DefaultSpecTemplate seeds a downstream agent that is started without a
// user-typed spec.
const DefaultSpecTemplate = "Generate %s agent output based on the following questionnaire"

// TransitionObserver is notified after a phase change is committed.
type TransitionObserver interface {
	ObserveTransition(agent domain.AgentID, from, to domain.Phase)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithObserver registers a transition observer.
func WithObserver(o TransitionObserver) Option {
	return func(m *Machine) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine applies conversation steps to RunState values. Every step works
// on a clone and commits only when the gateway call succeeded, so a failed
// step leaves the caller's state untouched.
type Machine struct {
	gw       gateway.Gateway
	lib      *prompts.Library
	now      func() time.Time
	observer TransitionObserver
	logger   *slog.Logger
}

// NewMachine creates a Machine.
func NewMachine(gw gateway.Gateway, lib *prompts.Library, opts ...Option) *Machine {
	m := &Machine{
		gw:     gw,
		lib:    lib,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start records the spec and obtains the agent's first decision.
func (m *Machine) Start(ctx context.Context, run *domain.RunState, spec string, upstream []domain.UpstreamOutput) (Decision, error) {
	if domain.IsBlank(spec) {
		return Decision{}, fmt.Errorf("%w: spec is empty", ErrInvalidUserInput)
	}
	if err := requirePhase(run, domain.PhaseAwaitingSpec); err != nil {
		return Decision{}, err
	}

	next := run.Clone()
	now := m.now()
	next.Spec = strings.TrimSpace(spec)
	next.Append(domain.RoleUser, next.Spec, domain.DecisionNone, now)
	return m.clarify(ctx, run, next, upstream)
}

// AutoStart starts a downstream agent with the default spec. The default
// spec is not recorded in the transcript.
func (m *Machine) AutoStart(ctx context.Context, run *domain.RunState, upstream []domain.UpstreamOutput) (Decision, error) {
	if err := requirePhase(run, domain.PhaseAwaitingSpec); err != nil {
		return Decision{}, err
	}
	next := run.Clone()
	next.Spec = DefaultSpec(run.Agent)
	return m.clarify(ctx, run, next, upstream)
}

// DefaultSpec returns the seed spec for agent.
func DefaultSpec(agent domain.AgentID) string {
	return fmt.Sprintf(DefaultSpecTemplate, agent)
}

// Reply records the user's answer and obtains the next decision.
func (m *Machine) Reply(ctx context.Context, run *domain.RunState, text string, upstream []domain.UpstreamOutput) (Decision, error) {
	if domain.IsBlank(text) {
		return Decision{}, fmt.Errorf("%w: reply is empty", ErrInvalidUserInput)
	}
	if err := requirePhase(run, domain.PhaseAsking); err != nil {
		return Decision{}, err
	}

	next := run.Clone()
	next.Append(domain.RoleUser, strings.TrimSpace(text), domain.DecisionNone, m.now())
	return m.clarify(ctx, run, next, upstream)
}

func (m *Machine) clarify(ctx context.Context, run, next *domain.RunState, upstream []domain.UpstreamOutput) (Decision, error) {
	p, err := m.lib.For(next.Agent)
	if err != nil {
		return Decision{}, err
	}

	raw, err := m.gw.Generate(ctx, gateway.Prompt{
		Op:     "clarify",
		Text:   clarifyPrompt(m.lib, p, next, upstream),
		Format: gateway.FormatJSON,
	})
	if err != nil {
		return Decision{}, err
	}
	decision, err := ParseDecision(raw, m.lib.Sentinel)
	if err != nil {
		return Decision{}, err
	}

	now := m.now()
	next.Append(domain.RoleAgent, decision.Message, decision.Kind, now)

	target := domain.PhaseAsking
	if decision.Satisfied() {
		target = domain.PhaseSatisfied
	}
	if err := m.transition(next, target); err != nil {
		return Decision{}, err
	}
	if decision.Satisfied() {
		next.Satisfied = true
		if err := m.transition(next, domain.PhaseAwaitingFeedback); err != nil {
			return Decision{}, err
		}
	}

	m.commit(run, next)
	m.logger.Debug("clarification step", "agent", next.Agent, "decision", decision.Kind, "phase", next.Phase)
	return decision, nil
}

// SubmitFeedback records optional feedback once the agent is satisfied.
// Free text and selected suggestions are joined by newlines; an empty
// result is a skip. Feedback may be submitted at most once.
func (m *Machine) SubmitFeedback(run *domain.RunState, text string, selected []string) error {
	if err := requirePhase(run, domain.PhaseAwaitingFeedback); err != nil {
		return err
	}
	if run.FeedbackRecorded {
		return fmt.Errorf("%w: feedback already recorded for %s", ErrInvalidTransition, run.Agent)
	}
	for _, s := range selected {
		if !m.lib.HasSuggestion(run.Agent, s) {
			return fmt.Errorf("%w: unknown feedback suggestion %q", ErrInvalidUserInput, s)
		}
	}

	parts := make([]string, 0, len(selected)+1)
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, selected...)
	feedback := strings.Join(parts, "\n")

	next := run.Clone()
	now := m.now()
	next.Feedback = feedback
	next.FeedbackRecorded = true
	next.UpdatedAt = now
	if feedback != "" {
		next.Append(domain.RoleUser, "User feedback:\n"+feedback, domain.DecisionNone, now)
	}
	m.commit(run, next)
	return nil
}

// Generate synthesizes the agent's final output. It runs at most once per
// run; a skipped feedback step is implied when none was recorded.
func (m *Machine) Generate(ctx context.Context, run *domain.RunState, upstream []domain.UpstreamOutput) (string, error) {
	if run.HasOutput() {
		return "", fmt.Errorf("%w: %s", ErrOutputAlreadySet, run.Agent)
	}
	if err := requirePhase(run, domain.PhaseAwaitingFeedback); err != nil {
		return "", err
	}
	p, err := m.lib.For(run.Agent)
	if err != nil {
		return "", err
	}

	next := run.Clone()
	text, err := m.gw.Generate(ctx, gateway.Prompt{
		Op:     "synthesize",
		Text:   synthesisPrompt(p, next, upstream),
		Format: gateway.FormatText,
	})
	if err != nil {
		return "", err
	}
	output := strings.TrimSpace(text)
	if output == "" {
		return "", fmt.Errorf("%w: empty output", gateway.ErrMalformedResponse)
	}

	now := m.now()
	next.FeedbackRecorded = true
	next.Output = output
	next.OutputAt = &now
	next.Append(domain.RoleAgent, output, domain.DecisionOutput, now)
	if err := m.transition(next, domain.PhaseOutputReady); err != nil {
		return "", err
	}
	m.commit(run, next)
	m.logger.Info("agent output generated", "agent", next.Agent, "chars", len(output))
	return output, nil
}

func (m *Machine) transition(run *domain.RunState, to domain.Phase) error {
	from := run.Phase
	if err := validateTransition(from, to); err != nil {
		return err
	}
	run.Phase = to
	if m.observer != nil && from != to {
		m.observer.ObserveTransition(run.Agent, from, to)
	}
	return nil
}

func (m *Machine) commit(run, next *domain.RunState) {
	*run = *next
}
