package conversation

import (
	"fmt"
	"strings"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/prompts"
)

// FormatTranscript renders a transcript as alternating "User:" and
// "<Agent> Agent:" lines.
func FormatTranscript(agent domain.AgentID, t domain.Transcript) string {
	var b strings.Builder
	for _, m := range t {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		default:
			fmt.Fprintf(&b, "%s Agent: ", agent)
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatUpstream renders prior deliverables as "<Agent> Output:" blocks.
func FormatUpstream(upstream []domain.UpstreamOutput) string {
	blocks := make([]string, 0, len(upstream))
	for _, u := range upstream {
		blocks = append(blocks, fmt.Sprintf("%s Output:\n%s", u.Agent, u.Output))
	}
	return strings.Join(blocks, "\n")
}

func clarifyPrompt(lib *prompts.Library, p prompts.AgentPrompts, run *domain.RunState, upstream []domain.UpstreamOutput) string {
	newQuestions, followUps := run.Transcript.QuestionCounts()

	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Persona))
	b.WriteString("\n\nGiven the specification:\n")
	b.WriteString(run.Spec)
	b.WriteString("\n\nand conversation:\n")
	b.WriteString(FormatTranscript(run.Agent, run.Transcript))
	b.WriteString("\nand Upstream Context:\n")
	b.WriteString(FormatUpstream(upstream))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(lib.ClarifyInstructions))
	fmt.Fprintf(&b, "\nSo far you have asked %d new questions and %d follow-up questions.\n", newQuestions, followUps)
	b.WriteString(strings.TrimSpace(lib.DecisionFormat))
	b.WriteString("\n")
	return b.String()
}

func synthesisPrompt(p prompts.AgentPrompts, run *domain.RunState, upstream []domain.UpstreamOutput) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Persona))
	b.WriteString("\n\nGiven the specification:\n")
	b.WriteString(run.Spec)
	b.WriteString("\n\nand conversation:\n")
	b.WriteString(FormatTranscript(run.Agent, run.Transcript))
	b.WriteString("\nand Upstream Context:\n")
	b.WriteString(FormatUpstream(upstream))
	b.WriteString("\n\nBased on the conversation and context above, ")
	b.WriteString(strings.TrimSpace(p.OutputInstructions))
	b.WriteString("\n")
	return b.String()
}
