package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `
## Stories

| Title | Objective |
|-------|-----------|
| Earn points | Retention |

- first
- second
`

func TestMarkdownHeading(t *testing.T) {
	got := Markdown("Analyst", "  body text \n")
	assert.Equal(t, "# Analyst [AI agent] generated content:\n\nbody text", got)
}

func TestRenderKeepsTextContent(t *testing.T) {
	doc, err := NewRenderer().Render("Analyst", sampleOutput)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.HTML, Stylesheet))
	assert.Contains(t, doc.HTML, `<div id="agent-output">`)
	assert.Contains(t, doc.HTML, "<table>")
	assert.Contains(t, doc.HTML, "<th>Title</th>")
	assert.Contains(t, doc.HTML, "<td>Earn points</td>")
	assert.Contains(t, doc.HTML, "<li>second</li>")
	assert.Contains(t, doc.HTML, "Analyst [AI agent] generated content:")
}

func TestRenderOmitsRawHTML(t *testing.T) {
	doc, err := NewRenderer().Render("Coder", "<script>alert(1)</script>\n\ntext")
	require.NoError(t, err)
	assert.NotContains(t, doc.HTML, "<script>")
	assert.Contains(t, doc.HTML, "text")
}

func TestWriterWritesAgentFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, NewRenderer())

	paths, err := w.WriteAgent("user-1", "tab-1", domain.AgentAnalyst, sampleOutput)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "user-1", "tab-1", "analyst_agent_out.md"), paths.Markdown)
	assert.Equal(t, filepath.Join(root, "user-1", "tab-1", "analyst_agent_out.html"), paths.HTML)

	md, err := os.ReadFile(paths.Markdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Analyst [AI agent] generated content:"))

	html, err := os.ReadFile(paths.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Earn points")

	require.NoError(t, w.RemoveSession("user-1", "tab-1"))
	_, err = os.Stat(filepath.Join(root, "user-1", "tab-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriterRejectsTraversal(t *testing.T) {
	w := NewWriter(t.TempDir(), NewRenderer())
	_, err := w.WriteAgent("..", "tab", domain.AgentAnalyst, "x")
	require.Error(t, err)
	_, err = w.WriteAgent("user", "a/b", domain.AgentAnalyst, "x")
	require.Error(t, err)
}

func sessionWithOutputs() *domain.Session {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	sess := domain.NewSession("u", "s", now)

	analyst := domain.NewRunState(domain.AgentAnalyst, now)
	analyst.Append(domain.RoleUser, "Build <b>loyalty</b> app", domain.DecisionNone, now)
	analyst.Append(domain.RoleAgent, "I AM SATISFIED", domain.DecisionSatisfied, now)
	analyst.Append(domain.RoleAgent, "Stories here", domain.DecisionOutput, now)
	analyst.Output = "Stories here"
	analyst.OutputAt = &now
	sess.Runs[domain.AgentAnalyst] = analyst

	designer := domain.NewRunState(domain.AgentDesigner, now)
	designer.Append(domain.RoleAgent, "Microservices? [N]", domain.DecisionNewQuestion, now)
	sess.Runs[domain.AgentDesigner] = designer
	return sess
}

func TestReportHTML(t *testing.T) {
	report, err := NewRenderer().ReportHTML(sessionWithOutputs())
	require.NoError(t, err)

	assert.Contains(t, report, "Conversation with Analyst Agent")
	assert.Contains(t, report, "Conversation with Designer Agent")
	assert.NotContains(t, report, "Conversation with Coder Agent")
	assert.Contains(t, report, "Build &lt;b&gt;loyalty&lt;/b&gt; app")
	assert.Contains(t, report, `class="role-agent"`)
	assert.Contains(t, report, "<strong>Final Output:</strong>")
	assert.Equal(t, 1, strings.Count(report, "Stories here"))
}

func TestReportMarkdown(t *testing.T) {
	got := ReportMarkdown(sessionWithOutputs())
	assert.Equal(t, "# Analyst Agent Output [AI agent] generated content:\n\nStories here", got)
}

func TestRenderMessage(t *testing.T) {
	agentMsg := RenderMessage(domain.Message{Role: domain.RoleAgent, Content: "a < b\nnext"}, domain.AgentCoder)
	assert.Contains(t, agentMsg, "text-align:left")
	assert.Contains(t, agentMsg, "Coder")
	assert.Contains(t, agentMsg, "a &lt; b<br>next")

	userMsg := RenderMessage(domain.Message{Role: domain.RoleUser, Content: " "}, domain.AgentCoder)
	assert.Contains(t, userMsg, "text-align:right")
	assert.Contains(t, userMsg, "(No message provided)")
}
