package domain

import (
	"fmt"
	"strings"
)

// AgentID identifies one pipeline stage persona.
type AgentID string

// The seven delivery roles, in pipeline order.
const (
	AgentAnalyst   AgentID = "Analyst"
	AgentDesigner  AgentID = "Designer"
	AgentEstimator AgentID = "Estimator"
	AgentCoder     AgentID = "Coder"
	AgentReviewer  AgentID = "Reviewer"
	AgentTester    AgentID = "Tester"
	AgentDeployer  AgentID = "Deployer"
)

var agentOrder = []AgentID{
	AgentAnalyst,
	AgentDesigner,
	AgentEstimator,
	AgentCoder,
	AgentReviewer,
	AgentTester,
	AgentDeployer,
}

var agentEmoji = map[AgentID]string{
	AgentAnalyst:   "📋",
	AgentDesigner:  "🧱",
	AgentEstimator: "🧮",
	AgentCoder:     "💻",
	AgentReviewer:  "👓",
	AgentTester:    "🧪",
	AgentDeployer:  "🚀",
}

// Agents returns the ordered agent list. The returned slice is a copy.
func Agents() []AgentID {
	out := make([]AgentID, len(agentOrder))
	copy(out, agentOrder)
	return out
}

// ParseAgent resolves a case-insensitive agent name.
func ParseAgent(name string) (AgentID, error) {
	trimmed := strings.TrimSpace(name)
	for _, id := range agentOrder {
		if strings.EqualFold(string(id), trimmed) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q", name)
}

// Index returns the pipeline position of the agent, or -1.
func (a AgentID) Index() int {
	for i, id := range agentOrder {
		if id == a {
			return i
		}
	}
	return -1
}

// Valid reports whether a names one of the seven roles.
func (a AgentID) Valid() bool {
	return a.Index() >= 0
}

// Emoji returns the sidebar glyph for the agent.
func (a AgentID) Emoji() string {
	if e, ok := agentEmoji[a]; ok {
		return e
	}
	return "🤖"
}

// Slug returns the lower-cased file-name stem for the agent.
func (a AgentID) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(a)), " ", "_")
}
