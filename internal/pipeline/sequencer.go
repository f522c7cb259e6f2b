// Package pipeline orders the agents of a session and supplies each one
// the outputs of the agents it depends on.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

var (
	// ErrOutputMissing is returned by Advance while the current agent has no output.
	ErrOutputMissing = errors.New("current agent has not produced output")
	// ErrAtLastAgent is returned by Advance on the final agent.
	ErrAtLastAgent = errors.New("pipeline is at the last agent")
)

var upstreamTable = map[domain.AgentID][]domain.AgentID{
	domain.AgentAnalyst:   nil,
	domain.AgentDesigner:  {domain.AgentAnalyst},
	domain.AgentEstimator: {domain.AgentDesigner, domain.AgentAnalyst},
	domain.AgentCoder:     {domain.AgentDesigner, domain.AgentAnalyst},
	domain.AgentReviewer:  {domain.AgentCoder},
	domain.AgentTester:    {domain.AgentDesigner, domain.AgentAnalyst},
	domain.AgentDeployer: {
		domain.AgentAnalyst,
		domain.AgentDesigner,
		domain.AgentEstimator,
		domain.AgentCoder,
		domain.AgentReviewer,
		domain.AgentTester,
	},
}

// UpstreamFor returns the agents whose output agent may see, in order.
func UpstreamFor(agent domain.AgentID) []domain.AgentID {
	return append([]domain.AgentID(nil), upstreamTable[agent]...)
}

// Context collects the produced outputs visible to agent. Upstream agents
// without output are omitted.
func Context(sess *domain.Session, agent domain.AgentID) []domain.UpstreamOutput {
	var out []domain.UpstreamOutput
	for _, id := range upstreamTable[agent] {
		if text, ok := sess.Output(id); ok {
			out = append(out, domain.UpstreamOutput{Agent: id, Output: text})
		}
	}
	return out
}

// Current returns the agent under the session cursor.
func Current(sess *domain.Session) domain.AgentID {
	agents := domain.Agents()
	i := sess.Pipeline.Cursor
	if i < 0 {
		i = 0
	}
	if i >= len(agents) {
		i = len(agents) - 1
	}
	return agents[i]
}

// Activate returns the run of the current agent, creating it on first use.
func Activate(sess *domain.Session, now time.Time) *domain.RunState {
	agent := Current(sess)
	if run := sess.Run(agent); run != nil {
		return run
	}
	if sess.Runs == nil {
		sess.Runs = make(map[domain.AgentID]*domain.RunState)
	}
	run := domain.NewRunState(agent, now)
	sess.Runs[agent] = run
	sess.UpdatedAt = now
	return run
}

// Advance moves the cursor to the next agent and activates it.
func Advance(sess *domain.Session, now time.Time) (domain.AgentID, error) {
	current := Current(sess)
	if _, ok := sess.Output(current); !ok {
		return current, fmt.Errorf("%w: %s", ErrOutputMissing, current)
	}
	if sess.Pipeline.Cursor >= len(domain.Agents())-1 {
		return current, ErrAtLastAgent
	}
	sess.Pipeline.Cursor++
	run := Activate(sess, now)
	return run.Agent, nil
}

// IsLast reports whether the cursor is on the final agent.
func IsLast(sess *domain.Session) bool {
	return sess.Pipeline.Cursor >= len(domain.Agents())-1
}
