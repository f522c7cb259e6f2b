package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

// RenderMessage returns one transcript entry as a chat bubble. Agent
// bubbles sit on the left, user bubbles on the right.
func RenderMessage(m domain.Message, agent domain.AgentID) string {
	align, bg, label := "right", "#fffbe6", "🙋 User"
	if m.Role == domain.RoleAgent {
		align, bg = "left", "#e6f7ff"
		label = agent.Emoji() + " " + string(agent)
	}

	content := "<em>(No message provided)</em>"
	if !domain.IsBlank(m.Content) {
		content = strings.ReplaceAll(html.EscapeString(m.Content), "\n", "<br>")
	}

	return fmt.Sprintf(`<div style="text-align:%s; margin: 0.75rem 0;">`+
		`<div style="display:inline-block; background:%s; padding:0.75rem 1rem; border-radius:12px; max-width:70%%; box-shadow:0 1px 3px rgba(0,0,0,0.1); font-family:'Segoe UI', sans-serif; font-size:0.95rem;">`+
		`<div style="font-weight:bold; margin-bottom:6px;">%s</div>%s</div></div>`,
		align, bg, html.EscapeString(label), content)
}
