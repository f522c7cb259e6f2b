package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

var reportTemplate = template.Must(template.New("report").Parse(`<html>
<head><title>SDLC Studio Report</title>
<style>
    body { font-family: 'Segoe UI', sans-serif; margin: 2rem; }
    .agent-block { margin-bottom: 3rem; padding-bottom: 2rem; border-bottom: 1px solid #ccc; }
    .role-user { text-align: right; background: #fff3e0; padding: 0.6rem; border-radius: 10px; margin: 0.4rem 0; white-space: pre-wrap; }
    .role-agent { text-align: left; background: #e0f7fa; padding: 0.6rem; border-radius: 10px; margin: 0.4rem 0; white-space: pre-wrap; }
    .agent-title { font-size: 1.4rem; font-weight: bold; margin-bottom: 1rem; color: #002B5B; }
</style>
{{.Stylesheet}}
</head>
<body>
<h1>Multi-Agent Assistant Summary</h1>
{{range .Agents}}<div class="agent-block">
<div class="agent-title">{{.Emoji}} Conversation with {{.Agent}} Agent</div>
{{range .Messages}}<div class="role-{{.Role}}">{{.Content}}</div>
{{end}}{{if .Output}}<div id="agent-output"><strong>Final Output:</strong><hr>{{.Output}}</div>
{{end}}</div>
{{end}}</body>
</html>
`))

type reportAgent struct {
	Agent    domain.AgentID
	Emoji    string
	Messages []domain.Message
	Output   template.HTML
}

// ReportHTML renders every activated agent's transcript followed by its
// rendered output. Transcript text is escaped.
func (r *Renderer) ReportHTML(sess *domain.Session) (string, error) {
	data := struct {
		Stylesheet template.HTML
		Agents     []reportAgent
	}{Stylesheet: template.HTML(Stylesheet)}

	for _, id := range domain.Agents() {
		run := sess.Run(id)
		if run == nil {
			continue
		}
		entry := reportAgent{Agent: id, Emoji: id.Emoji()}
		for _, m := range run.Transcript {
			if m.Decision == domain.DecisionOutput {
				continue
			}
			entry.Messages = append(entry.Messages, m)
		}
		if run.HasOutput() {
			body, err := r.ToHTML(Markdown(string(id), run.Output))
			if err != nil {
				return "", err
			}
			entry.Output = template.HTML(body)
		}
		data.Agents = append(data.Agents, entry)
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("export: render report: %w", err)
	}
	return buf.String(), nil
}

// ReportMarkdown joins every produced output into one Markdown summary.
func ReportMarkdown(sess *domain.Session) string {
	sections := make([]string, 0, len(domain.Agents()))
	for _, id := range domain.Agents() {
		if text, ok := sess.Output(id); ok {
			sections = append(sections, Markdown(string(id)+" Agent Output", text))
		}
	}
	return strings.Join(sections, "\n\n")
}
