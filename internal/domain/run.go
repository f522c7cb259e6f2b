package domain

import (
	"strings"
	"time"
)

// Role is the author of a transcript entry.
type Role string

const (
	// RoleUser marks text typed by the user.
	RoleUser Role = "user"
	// RoleAgent marks text produced by the reasoning gateway.
	RoleAgent Role = "agent"
)

// DecisionKind records why an agent message was produced.
type DecisionKind string

const (
	DecisionNone        DecisionKind = ""
	DecisionNewQuestion DecisionKind = "new_question"
	DecisionFollowUp    DecisionKind = "follow_up"
	DecisionSatisfied   DecisionKind = "satisfied"
	DecisionOutput      DecisionKind = "output"
)

// Message is one transcript entry.
type Message struct {
	Role     Role         `json:"role"`
	Content  string       `json:"content"`
	Decision DecisionKind `json:"decision,omitempty"`
	At       time.Time    `json:"at"`
}

// Transcript is the append-only message log of one agent conversation.
type Transcript []Message

// LastAgentMessage returns the most recent agent entry.
func (t Transcript) LastAgentMessage() (Message, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleAgent {
			return t[i], true
		}
	}
	return Message{}, false
}

// QuestionCounts returns how many new and follow-up questions were asked.
func (t Transcript) QuestionCounts() (newQuestions, followUps int) {
	for _, m := range t {
		switch m.Decision {
		case DecisionNewQuestion:
			newQuestions++
		case DecisionFollowUp:
			followUps++
		}
	}
	return newQuestions, followUps
}

// Phase is a state of the per-agent conversation machine.
type Phase string

const (
	PhaseAwaitingSpec     Phase = "awaiting_spec"
	PhaseAsking           Phase = "asking"
	PhaseSatisfied        Phase = "satisfied"
	PhaseAwaitingFeedback Phase = "awaiting_feedback"
	PhaseOutputReady      Phase = "output_ready"
)

// RunState is the conversation state of one agent inside a session.
type RunState struct {
	Agent            AgentID    `json:"agent"`
	Phase            Phase      `json:"phase"`
	Spec             string     `json:"spec"`
	Transcript       Transcript `json:"transcript"`
	Satisfied        bool       `json:"satisfied"`
	Feedback         string     `json:"feedback"`
	FeedbackRecorded bool       `json:"feedback_recorded"`
	Output           string     `json:"output"`
	OutputAt         *time.Time `json:"output_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewRunState returns a fresh run waiting for its spec.
func NewRunState(agent AgentID, now time.Time) *RunState {
	return &RunState{
		Agent:     agent,
		Phase:     PhaseAwaitingSpec,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasOutput reports whether the final deliverable was produced.
func (r *RunState) HasOutput() bool {
	return r != nil && r.OutputAt != nil
}

// Clone returns a deep copy so a step can be applied without touching r.
func (r *RunState) Clone() *RunState {
	if r == nil {
		return nil
	}
	out := *r
	out.Transcript = append(Transcript(nil), r.Transcript...)
	if r.OutputAt != nil {
		ts := *r.OutputAt
		out.OutputAt = &ts
	}
	return &out
}

// Append adds a message to the transcript. Blank content is kept verbatim.
func (r *RunState) Append(role Role, content string, kind DecisionKind, now time.Time) {
	r.Transcript = append(r.Transcript, Message{
		Role:     role,
		Content:  content,
		Decision: kind,
		At:       now,
	})
	r.UpdatedAt = now
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
