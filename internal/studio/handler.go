package studio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/sdlc-studio/internal/api"
	"github.com/ashureev/sdlc-studio/internal/conversation"
	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/gateway"
	"github.com/ashureev/sdlc-studio/internal/identity"
	"github.com/ashureev/sdlc-studio/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

// Handler exposes the studio service over HTTP.
type Handler struct {
	svc     *Service
	limiter func(http.Handler) http.Handler
}

// NewHandler creates a Handler. limiter guards mutating routes and may be nil.
func NewHandler(svc *Service, limiter func(http.Handler) http.Handler) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

type textRequest struct {
	Text string `json:"text"`
}

type feedbackRequest struct {
	Text     string   `json:"text"`
	Selected []string `json:"selected"`
}

// RegisterRoutes registers studio routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/studio", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/agents", h.GetAgents)
		r.Get("/agents/{agent}/export.md", h.exportAgent("md"))
		r.Get("/agents/{agent}/export.html", h.exportAgent("html"))
		r.Get("/report.md", h.report("md"))
		r.Get("/report.html", h.report("html"))

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter)
			}
			r.Post("/spec", h.PostSpec)
			r.Post("/start", h.PostStart)
			r.Post("/reply", h.PostReply)
			r.Post("/feedback", h.PostFeedback)
			r.Post("/generate", h.PostGenerate)
			r.Post("/advance", h.PostAdvance)
			r.Post("/reset", h.PostReset)
		})
	})
}

// GetState returns the session snapshot.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.State(ctx, userID, sessionID)
	})
}

// GetAgents lists the pipeline agents.
func (h *Handler) GetAgents(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, map[string]any{"agents": h.svc.Agents()})
}

// PostSpec submits the current agent's spec.
func (h *Handler) PostSpec(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.SubmitSpec(ctx, userID, sessionID, req.Text)
	})
}

// PostStart auto-starts the current downstream agent.
func (h *Handler) PostStart(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.Start(ctx, userID, sessionID)
	})
}

// PostReply answers the current question.
func (h *Handler) PostReply(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.Reply(ctx, userID, sessionID, req.Text)
	})
}

// PostFeedback records feedback.
func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decode(w, r, &req) {
		return
	}
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.SubmitFeedback(ctx, userID, sessionID, req.Text, req.Selected)
	})
}

// PostGenerate produces the current agent's output.
func (h *Handler) PostGenerate(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.Generate(ctx, userID, sessionID)
	})
}

// PostAdvance moves to the next agent.
func (h *Handler) PostAdvance(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identityOf(r)
	h.respond(w, r, func(ctx context.Context) (*Snapshot, error) {
		return h.svc.Advance(ctx, userID, sessionID)
	})
}

// PostReset discards the session.
func (h *Handler) PostReset(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identityOf(r)
	if err := h.svc.Reset(r.Context(), userID, sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) exportAgent(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := domain.ParseAgent(chi.URLParam(r, "agent"))
		if err != nil {
			api.Error(w, http.StatusNotFound, err.Error())
			return
		}
		userID, sessionID := identityOf(r)
		body, err := h.svc.ExportAgent(r.Context(), userID, sessionID, agent, format)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, format, agent.Slug()+"_agent_out", body)
	}
}

func (h *Handler) report(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, sessionID := identityOf(r)
		body, err := h.svc.Report(r.Context(), userID, sessionID, format)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeDocument(w, format, "sdlc_studio_report", body)
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (*Snapshot, error)) {
	snap, err := fn(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, snap)
}

func identityOf(r *http.Request) (string, string) {
	return identity.UserIDFromContext(r.Context()), identity.SessionIDFromContext(r.Context())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeDocument(w http.ResponseWriter, format, base, body string) {
	contentType, ext := "text/html; charset=utf-8", ".html"
	if format == "md" {
		contentType, ext = "text/markdown; charset=utf-8", ".md"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+base+ext+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrInvalidUserInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy),
		errors.Is(err, conversation.ErrInvalidTransition),
		errors.Is(err, conversation.ErrOutputAlreadySet),
		errors.Is(err, pipeline.ErrOutputMissing),
		errors.Is(err, pipeline.ErrAtLastAgent):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrTransient) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, gateway.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrMalformedResponse), errors.Is(err, gateway.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	userID, sessionID := identityOf(r)
	if status >= http.StatusInternalServerError {
		slog.Error("studio request failed", "path", r.URL.Path, "user_id", userID, "session_id", sessionID, "status", status, "error", err)
	} else {
		slog.Info("studio request rejected", "path", r.URL.Path, "user_id", userID, "session_id", sessionID, "status", status, "error", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	api.Error(w, status, message)
}
