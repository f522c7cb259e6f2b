// Package web embeds the studio page (dist/) and serves it as a single-page
// application.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves the embedded studio page.
func SPAHandler() http.Handler {
	root, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return NewSPAHandler(root)
}

// NewSPAHandler serves static files from root. Any other path gets
// index.html with caching disabled, except unknown /api/ and /ws/ paths,
// which get 404 so clients see a real error instead of a page.
func NewSPAHandler(root fs.FS) http.Handler {
	files := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if isBackendPath(name) {
			http.NotFound(w, r)
			return
		}
		if name != "" && name != "index.html" && isFile(root, name) {
			files.ServeHTTP(w, r)
			return
		}
		serveIndex(w, root)
	})
}

func serveIndex(w http.ResponseWriter, root fs.FS) {
	body, err := fs.ReadFile(root, "index.html")
	if err != nil {
		slog.Error("web: index.html missing from embedded frontend", "error", err)
		http.Error(w, "frontend not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func isFile(root fs.FS, name string) bool {
	info, err := fs.Stat(root, name)
	return err == nil && !info.IsDir()
}

func isBackendPath(name string) bool {
	for _, prefix := range []string{"api", "ws"} {
		if name == prefix || strings.HasPrefix(name, prefix+"/") {
			return true
		}
	}
	return false
}
