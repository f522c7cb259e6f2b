// Package export turns agent transcripts and outputs into Markdown and
// HTML documents.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Document is one rendered deliverable.
type Document struct {
	Markdown string
	HTML     string
}

// Renderer converts Markdown with GitHub-flavoured extensions. Raw HTML in
// the source is omitted from the output.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Markdown wraps output under the deliverable heading.
func Markdown(title, output string) string {
	return fmt.Sprintf("# %s [AI agent] generated content:\n\n%s", title, strings.TrimSpace(output))
}

// Render produces the Markdown and styled HTML documents for output.
func (r *Renderer) Render(title, output string) (Document, error) {
	md := Markdown(title, output)
	body, err := r.ToHTML(md)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Markdown: md,
		HTML:     Stylesheet + "\n<div id=\"agent-output\">" + body + "</div>",
	}, nil
}

// ToHTML converts Markdown source to an HTML fragment.
func (r *Renderer) ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("export: convert markdown: %w", err)
	}
	return buf.String(), nil
}
