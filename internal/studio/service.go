// Package studio wires the conversation machine, pipeline, store and
// export adapter into one handler per user action.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sdlc-studio/internal/conversation"
	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/export"
	"github.com/ashureev/sdlc-studio/internal/pipeline"
	"github.com/ashureev/sdlc-studio/internal/prompts"
	"github.com/ashureev/sdlc-studio/internal/store"
)

var (
	// ErrBusy is returned when another request holds the session.
	ErrBusy = errors.New("session busy")
	// ErrAutoStartFirstAgent is returned by Start on the first agent, which
	// needs a user-typed spec.
	ErrAutoStartFirstAgent = fmt.Errorf("%w: the first agent needs a spec", conversation.ErrInvalidUserInput)
)

// Service owns the per-session event handlers.
type Service struct {
	repo     store.Repository
	machine  *conversation.Machine
	lib      *prompts.Library
	renderer *export.Renderer
	writer   *export.Writer
	events   EventLogger
	logger   *slog.Logger
	now      func() time.Time

	locks sync.Map
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repo     store.Repository
	Machine  *conversation.Machine
	Library  *prompts.Library
	Renderer *export.Renderer
	Writer   *export.Writer
	Events   EventLogger
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		machine:  d.Machine,
		lib:      d.Library,
		renderer: d.Renderer,
		writer:   d.Writer,
		events:   d.Events,
		logger:   d.Logger,
		now:      d.Clock,
	}
	if s.events == nil {
		s.events = nopEventLogger{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AgentInfo describes one pipeline agent for the UI.
type AgentInfo struct {
	Agent    domain.AgentID   `json:"agent"`
	Emoji    string           `json:"emoji"`
	Upstream []domain.AgentID `json:"upstream"`
	Feedback []string         `json:"feedback"`
}

// Agents lists every agent in pipeline order.
func (s *Service) Agents() []AgentInfo {
	agents := domain.Agents()
	out := make([]AgentInfo, 0, len(agents))
	for _, id := range agents {
		out = append(out, AgentInfo{
			Agent:    id,
			Emoji:    id.Emoji(),
			Upstream: pipeline.UpstreamFor(id),
			Feedback: s.lib.FeedbackLibrary(id),
		})
	}
	return out
}

// State returns the session snapshot, creating the session on first use.
func (s *Service) State(ctx context.Context, userID, sessionID string) (*Snapshot, error) {
	return s.mutate(ctx, userID, sessionID, func(context.Context, *domain.Session) error { return nil })
}

// SubmitSpec starts the current agent with a user-typed spec.
func (s *Service) SubmitSpec(ctx context.Context, userID, sessionID, text string) (*Snapshot, error) {
	return s.mutate(ctx, userID, sessionID, func(ctx context.Context, sess *domain.Session) error {
		run := pipeline.Activate(sess, s.now())
		s.logEvent(sess, run.Agent, "inbound", "spec_submitted", text)
		d, err := s.machine.Start(ctx, run, text, pipeline.Context(sess, run.Agent))
		if err != nil {
			return err
		}
		s.logDecision(sess, run.Agent, d)
		return nil
	})
}

// Start auto-starts a downstream agent with the default spec.
func (s *Service) Start(ctx context.Context, userID, sessionID string) (*Snapshot, error) {
	return s.mutate(ctx, userID, sessionID, s.autoStart)
}

func (s *Service) autoStart(ctx context.Context, sess *domain.Session) error {
	run := pipeline.Activate(sess, s.now())
	if run.Agent.Index() == 0 {
		return ErrAutoStartFirstAgent
	}
	d, err := s.machine.AutoStart(ctx, run, pipeline.Context(sess, run.Agent))
	if err != nil {
		return err
	}
	s.logDecision(sess, run.Agent, d)
	return nil
}

// Reply answers the current agent's question.
func (s *Service) Reply(ctx context.Context, userID, sessionID, text string) (*Snapshot, error) {
	return s.mutate(ctx, userID, sessionID, func(ctx context.Context, sess *domain.Session) error {
		run := pipeline.Activate(sess, s.now())
		s.logEvent(sess, run.Agent, "inbound", "user_reply", text)
		d, err := s.machine.Reply(ctx, run, text, pipeline.Context(sess, run.Agent))
		if err != nil {
			return err
		}
		s.logDecision(sess, run.Agent, d)
		return nil
	})
}

// SubmitFeedback records optional feedback for the current agent.
func (s *Service) SubmitFeedback(ctx context.Context, userID, sessionID, text string, selected []string) (*Snapshot, error) {
	return s.mutate(ctx, userID, sessionID, func(_ context.Context, sess *domain.Session) error {
		run := pipeline.Activate(sess, s.now())
		if err := s.machine.SubmitFeedback(run, text, selected); err != nil {
			return err
		}
		s.logEvent(sess, run.Agent, "inbound", "feedback_submitted", run.Feedback)
		return nil
	})
}

// Generate produces and exports the current agent's output. A failed file
// export does not undo the output; it is reported in Snapshot.Warnings.
func (s *Service) Generate(ctx context.Context, userID, sessionID string) (*Snapshot, error) {
	var exportErr error
	snap, err := s.mutate(ctx, userID, sessionID, func(ctx context.Context, sess *domain.Session) error {
		run := pipeline.Activate(sess, s.now())
		output, err := s.machine.Generate(ctx, run, pipeline.Context(sess, run.Agent))
		if err != nil {
			return err
		}
		s.logEvent(sess, run.Agent, "outbound", "output_generated", output)
		if s.writer != nil {
			paths, err := s.writer.WriteAgent(sess.UserID, sess.SessionID, run.Agent, output)
			if err != nil {
				s.logger.Error("failed to export agent output", "agent", run.Agent, "session", sess.Key(), "error", err)
				exportErr = err
			} else {
				s.logger.Info("agent output exported", "agent", run.Agent, "markdown", paths.Markdown, "html", paths.HTML)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if exportErr != nil {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("output saved but export files were not written: %v", exportErr))
	}
	return snap, nil
}

// Advance moves to the next agent and auto-starts it. The cursor move is
// saved even when the auto-start fails; Start may be retried.
func (s *Service) Advance(ctx context.Context, userID, sessionID string) (*Snapshot, error) {
	snap, err := s.mutate(ctx, userID, sessionID, func(_ context.Context, sess *domain.Session) error {
		next, err := pipeline.Advance(sess, s.now())
		if err != nil {
			return err
		}
		s.logEvent(sess, next, "internal", "pipeline_advanced", "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snap.Run.Phase != domain.PhaseAwaitingSpec {
		return snap, nil
	}
	return s.mutate(ctx, userID, sessionID, s.autoStart)
}

// Reset discards the session and its exported files.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	unlock, err := s.lock(userID, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.remove(ctx, userID, sessionID)
}

func (s *Service) remove(ctx context.Context, userID, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if s.writer != nil {
		if err := s.writer.RemoveSession(userID, sessionID); err != nil {
			s.logger.Warn("failed to remove exported files", "session", domain.SessionKey(userID, sessionID), "error", err)
		}
	}
	return nil
}

// ExportAgent renders one agent's output. format is "md" or "html".
func (s *Service) ExportAgent(ctx context.Context, userID, sessionID string, agent domain.AgentID, format string) (string, error) {
	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	output, ok := sess.Output(agent)
	if !ok {
		return "", fmt.Errorf("%w: %s", pipeline.ErrOutputMissing, agent)
	}
	doc, err := s.renderer.Render(string(agent), output)
	if err != nil {
		return "", err
	}
	if format == "md" {
		return doc.Markdown, nil
	}
	return doc.HTML, nil
}

// Report renders the combined session report. format is "md" or "html".
func (s *Service) Report(ctx context.Context, userID, sessionID, format string) (string, error) {
	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	if format == "md" {
		return export.ReportMarkdown(sess), nil
	}
	return s.renderer.ReportHTML(sess)
}

// SweepIdle removes sessions idle since before cutoff. Busy sessions are
// skipped until the next sweep, as are sessions touched after the listing.
func (s *Service) SweepIdle(ctx context.Context, cutoff time.Time) (int, error) {
	refs, err := s.repo.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ref := range refs {
		unlock, err := s.lock(ref.UserID, ref.SessionID)
		if err != nil {
			continue
		}
		ok, err := s.sweepLocked(ctx, ref, cutoff)
		if ok {
			// Retire the entry while still holding it; lock rejects
			// mutexes that are no longer mapped.
			s.locks.Delete(domain.SessionKey(ref.UserID, ref.SessionID))
		}
		unlock()
		if err != nil {
			s.logger.Warn("failed to remove idle session", "user_id", ref.UserID, "session_id", ref.SessionID, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *Service) sweepLocked(ctx context.Context, ref store.SessionRef, cutoff time.Time) (bool, error) {
	sess, err := s.repo.GetSession(ctx, ref.UserID, ref.SessionID)
	if err != nil {
		return false, err
	}
	if sess == nil || sess.UpdatedAt.Unix() >= cutoff.Unix() {
		return false, nil
	}
	if err := s.remove(ctx, ref.UserID, ref.SessionID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) lock(userID, sessionID string) (func(), error) {
	key := domain.SessionKey(userID, sessionID)
	for {
		v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		if !mu.TryLock() {
			s.logger.Warn("session action already in progress", "user_id", userID, "session_id", sessionID)
			return nil, ErrBusy
		}
		if cur, ok := s.locks.Load(key); ok && cur == mu {
			return mu.Unlock, nil
		}
		// Retired by a sweep after we loaded it.
		mu.Unlock()
	}
}

func (s *Service) load(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = domain.NewSession(userID, sessionID, s.now())
	}
	return sess, nil
}

// mutate runs fn on the locked session and saves the result. Nothing is
// saved when fn fails.
func (s *Service) mutate(ctx context.Context, userID, sessionID string, fn func(context.Context, *domain.Session) error) (*Snapshot, error) {
	unlock, err := s.lock(userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	pipeline.Activate(sess, s.now())

	if err := fn(ctx, sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return s.snapshot(sess), nil
}

func (s *Service) logDecision(sess *domain.Session, agent domain.AgentID, d conversation.Decision) {
	s.events.Log(ConversationLogEvent{
		UserID:     sess.UserID,
		SessionID:  sess.SessionID,
		Agent:      string(agent),
		Channel:    "gateway",
		Direction:  "outbound",
		EventType:  "agent_" + string(d.Kind),
		ContentRaw: d.Message,
	})
}

func (s *Service) logEvent(sess *domain.Session, agent domain.AgentID, direction, eventType, content string) {
	s.events.Log(ConversationLogEvent{
		UserID:     sess.UserID,
		SessionID:  sess.SessionID,
		Agent:      string(agent),
		Channel:    "studio",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
	})
}
