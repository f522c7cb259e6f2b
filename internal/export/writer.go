package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

// Paths are the files written for one agent.
type Paths struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Writer stores exported documents under root/<user>/<session>.
type Writer struct {
	root     string
	renderer *Renderer
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, renderer *Renderer) *Writer {
	return &Writer{root: dir, renderer: renderer}
}

// FileBase returns the file name stem for agent.
func FileBase(agent domain.AgentID) string {
	return agent.Slug() + "_agent_out"
}

// Dir returns the export directory of a session.
func (w *Writer) Dir(userID, sessionID string) (string, error) {
	for _, part := range []string{userID, sessionID} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("export: invalid path component %q", part)
		}
	}
	return filepath.Join(w.root, userID, sessionID), nil
}

// WriteAgent renders output and writes the Markdown and HTML files.
func (w *Writer) WriteAgent(userID, sessionID string, agent domain.AgentID, output string) (Paths, error) {
	dir, err := w.Dir(userID, sessionID)
	if err != nil {
		return Paths{}, err
	}
	doc, err := w.renderer.Render(string(agent), output)
	if err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("export: create dir: %w", err)
	}

	base := filepath.Join(dir, FileBase(agent))
	paths := Paths{Markdown: base + ".md", HTML: base + ".html"}
	if err := os.WriteFile(paths.Markdown, []byte(doc.Markdown), 0o644); err != nil {
		return Paths{}, fmt.Errorf("export: write markdown: %w", err)
	}
	if err := os.WriteFile(paths.HTML, []byte(doc.HTML), 0o644); err != nil {
		return Paths{}, fmt.Errorf("export: write html: %w", err)
	}
	return paths, nil
}

// RemoveSession deletes every exported file of a session.
func (w *Writer) RemoveSession(userID, sessionID string) error {
	dir, err := w.Dir(userID, sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("export: remove session dir: %w", err)
	}
	return nil
}
