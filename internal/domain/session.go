package domain

import "time"

// PipelineState is the forward-only cursor over the ordered agents.
type PipelineState struct {
	Cursor int `json:"cursor"`
}

// Session is the per-browser-tab studio record. All state-machine and
// sequencer operations receive it explicitly.
type Session struct {
	UserID    string                `json:"user_id"`
	SessionID string                `json:"session_id"`
	Pipeline  PipelineState         `json:"pipeline"`
	Runs      map[AgentID]*RunState `json:"runs"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewSession creates an empty session positioned at the first agent.
func NewSession(userID, sessionID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		SessionID: sessionID,
		Runs:      make(map[AgentID]*RunState),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run returns the run state for agent, or nil when it was never activated.
func (s *Session) Run(agent AgentID) *RunState {
	if s.Runs == nil {
		return nil
	}
	return s.Runs[agent]
}

// Output returns the produced output for agent, if any.
func (s *Session) Output(agent AgentID) (string, bool) {
	run := s.Run(agent)
	if !run.HasOutput() {
		return "", false
	}
	return run.Output, true
}

// Key returns the composite identifier used for locks and export folders.
func (s *Session) Key() string {
	return SessionKey(s.UserID, s.SessionID)
}

// SessionKey joins a user and tab session id.
func SessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// UpstreamOutput is one prior agent's deliverable visible to a later agent.
type UpstreamOutput struct {
	Agent  AgentID `json:"agent"`
	Output string  `json:"output"`
}
