package studio

import (
	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/export"
	"github.com/ashureev/sdlc-studio/internal/pipeline"
)

// Snapshot is the UI view of a session.
type Snapshot struct {
	SessionID  string           `json:"session_id"`
	Current    domain.AgentID   `json:"current"`
	Stages     []pipeline.Stage `json:"stages"`
	Run        RunView          `json:"run"`
	CanAdvance bool             `json:"can_advance"`
	IsLast     bool             `json:"is_last"`
	Complete   bool             `json:"complete"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// RunView is the current agent's run as shown to the user.
type RunView struct {
	Agent            domain.AgentID `json:"agent"`
	Emoji            string         `json:"emoji"`
	Phase            domain.Phase   `json:"phase"`
	Spec             string         `json:"spec"`
	Messages         []MessageView  `json:"messages"`
	NewQuestions     int            `json:"new_questions"`
	FollowUps        int            `json:"follow_ups"`
	Satisfied        bool           `json:"satisfied"`
	FeedbackRecorded bool           `json:"feedback_recorded"`
	Feedback         string         `json:"feedback"`
	FeedbackLibrary  []string       `json:"feedback_library"`
	Output           string         `json:"output,omitempty"`
	OutputHTML       string         `json:"output_html,omitempty"`
	CanAutoStart     bool           `json:"can_auto_start"`
}

// MessageView is one transcript entry with its chat bubble markup.
type MessageView struct {
	Role     domain.Role         `json:"role"`
	Content  string              `json:"content"`
	Decision domain.DecisionKind `json:"decision,omitempty"`
	HTML     string              `json:"html"`
}

func (s *Service) snapshot(sess *domain.Session) *Snapshot {
	current := pipeline.Current(sess)
	run := sess.Run(current)

	view := RunView{
		Agent:           current,
		Emoji:           current.Emoji(),
		Phase:           domain.PhaseAwaitingSpec,
		FeedbackLibrary: s.lib.FeedbackLibrary(current),
		CanAutoStart:    current.Index() > 0,
	}
	if run != nil {
		view.Phase = run.Phase
		view.Spec = run.Spec
		view.NewQuestions, view.FollowUps = run.Transcript.QuestionCounts()
		view.Satisfied = run.Satisfied
		view.FeedbackRecorded = run.FeedbackRecorded
		view.Feedback = run.Feedback
		view.CanAutoStart = view.CanAutoStart && run.Phase == domain.PhaseAwaitingSpec
		for _, m := range run.Transcript {
			view.Messages = append(view.Messages, MessageView{
				Role:     m.Role,
				Content:  m.Content,
				Decision: m.Decision,
				HTML:     export.RenderMessage(m, current),
			})
		}
		if run.HasOutput() {
			view.Output = run.Output
			if doc, err := s.renderer.Render(string(current), run.Output); err == nil {
				view.OutputHTML = doc.HTML
			} else {
				s.logger.Warn("failed to render output", "agent", current, "error", err)
			}
		}
	}

	complete := true
	for _, id := range domain.Agents() {
		if _, ok := sess.Output(id); !ok {
			complete = false
			break
		}
	}

	_, hasOutput := sess.Output(current)
	return &Snapshot{
		SessionID:  sess.SessionID,
		Current:    current,
		Stages:     pipeline.Overview(sess),
		Run:        view,
		CanAdvance: hasOutput && !pipeline.IsLast(sess),
		IsLast:     pipeline.IsLast(sess),
		Complete:   complete,
	}
}
