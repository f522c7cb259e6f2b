package pipeline

import "github.com/ashureev/sdlc-studio/internal/domain"

// Status is an agent's progress label in the sidebar.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusAsking           Status = "asking questions"
	StatusAwaitingFeedback Status = "awaiting feedback"
	StatusAwaitingSpec     Status = "awaiting spec"
)

// Stage is one row of the pipeline overview.
type Stage struct {
	Agent   domain.AgentID `json:"agent"`
	Emoji   string         `json:"emoji"`
	Status  Status         `json:"status"`
	Current bool           `json:"current"`
}

// StatusOf reports agent's progress within sess.
func StatusOf(sess *domain.Session, agent domain.AgentID) Status {
	run := sess.Run(agent)
	switch {
	case run == nil:
		return StatusAwaitingSpec
	case run.HasOutput():
		return StatusCompleted
	case run.Satisfied:
		return StatusAwaitingFeedback
	case len(run.Transcript) > 0:
		return StatusAsking
	default:
		return StatusAwaitingSpec
	}
}

// Overview lists every agent in order with its status.
func Overview(sess *domain.Session) []Stage {
	current := Current(sess)
	agents := domain.Agents()
	stages := make([]Stage, 0, len(agents))
	for _, id := range agents {
		stages = append(stages, Stage{
			Agent:   id,
			Emoji:   id.Emoji(),
			Status:  StatusOf(sess, id),
			Current: id == current,
		})
	}
	return stages
}
