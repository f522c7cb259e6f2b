// Package prompts holds the persona and instruction text sent to the
// reasoning gateway for each pipeline agent.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed library.yaml
var bundled []byte

// AgentPrompts is the static prompt data for one agent.
type AgentPrompts struct {
	Persona            string   `yaml:"persona"`
	OutputInstructions string   `yaml:"output_instructions"`
	Feedback           []string `yaml:"feedback"`
}

// Library maps every agent to its prompt data.
type Library struct {
	Sentinel            string                          `yaml:"sentinel"`
	ClarifyInstructions string                          `yaml:"clarify_instructions"`
	DecisionFormat      string                          `yaml:"decision_format"`
	Agents              map[domain.AgentID]AgentPrompts `yaml:"agents"`
}

var loadDefault = sync.OnceValues(func() (*Library, error) {
	return Parse(bundled)
})

// Default returns the bundled library. It is decoded once per process.
func Default() (*Library, error) {
	return loadDefault()
}

// Parse decodes and validates a prompt library payload.
func Parse(data []byte) (*Library, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("prompts: library payload is empty")
	}
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("prompts: decode library: %w", err)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Validate checks that every pipeline agent has complete prompt data.
func (l *Library) Validate() error {
	if strings.TrimSpace(l.Sentinel) == "" {
		return fmt.Errorf("prompts: sentinel is empty")
	}
	if strings.TrimSpace(l.ClarifyInstructions) == "" {
		return fmt.Errorf("prompts: clarify_instructions is empty")
	}
	for name := range l.Agents {
		if !name.Valid() {
			return fmt.Errorf("prompts: unknown agent %q", name)
		}
	}
	for _, id := range domain.Agents() {
		p, ok := l.Agents[id]
		if !ok {
			return fmt.Errorf("prompts: agent %s is missing", id)
		}
		if strings.TrimSpace(p.Persona) == "" {
			return fmt.Errorf("prompts: agent %s has no persona", id)
		}
		if strings.TrimSpace(p.OutputInstructions) == "" {
			return fmt.Errorf("prompts: agent %s has no output instructions", id)
		}
	}
	return nil
}

// For returns the prompt data for agent.
func (l *Library) For(agent domain.AgentID) (AgentPrompts, error) {
	p, ok := l.Agents[agent]
	if !ok {
		return AgentPrompts{}, fmt.Errorf("prompts: agent %s is missing", agent)
	}
	return p, nil
}

// FeedbackLibrary returns a copy of the suggestion list for agent.
func (l *Library) FeedbackLibrary(agent domain.AgentID) []string {
	p, ok := l.Agents[agent]
	if !ok {
		return nil
	}
	return append([]string(nil), p.Feedback...)
}

// HasSuggestion reports whether s is one of agent's feedback suggestions.
func (l *Library) HasSuggestion(agent domain.AgentID, s string) bool {
	for _, candidate := range l.Agents[agent].Feedback {
		if candidate == s {
			return true
		}
	}
	return false
}
