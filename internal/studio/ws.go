package studio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/ashureev/sdlc-studio/internal/conversation"
	"github.com/ashureev/sdlc-studio/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler runs studio actions over a WebSocket. Each client
// message is one action; the server answers with the new state or an error.
type WebSocketHandler struct {
	svc           *Service
	limiter       Limiter
	allowedOrigin string
	isDev         bool
}

// Limiter admits one action for a key, or reports how long to wait.
// *middleware.RateLimiter satisfies it.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// NewWebSocketHandler creates a new WebSocket handler. limiter bounds
// mutating actions per user and may be nil.
func NewWebSocketHandler(svc *Service, limiter Limiter, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{svc: svc, limiter: limiter, allowedOrigin: allowedOrigin, isDev: isDev}
}

type wsRequest struct {
	Action   string   `json:"action"`
	Text     string   `json:"text,omitempty"`
	Selected []string `json:"selected,omitempty"`
}

type wsResponse struct {
	Type       string    `json:"type"`
	Action     string    `json:"action,omitempty"`
	State      *Snapshot `json:"state,omitempty"`
	Error      string    `json:"error,omitempty"`
	Status     int       `json:"status,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, on 429
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx := r.Context()
	if snap, err := h.svc.State(ctx, userID, sessionID); err == nil {
		h.write(ctx, ws, wsResponse{Type: "state", State: snap})
	}

	for {
		var req wsRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if req.Action == "ping" {
			h.write(ctx, ws, wsResponse{Type: "pong"})
			continue
		}

		if retry, limited := h.limited(userID, req.Action); limited {
			secs := int(math.Ceil(retry.Seconds()))
			h.write(ctx, ws, wsResponse{
				Type:       "error",
				Action:     req.Action,
				Error:      fmt.Sprintf("rate limit exceeded, retry in %ds", secs),
				Status:     http.StatusTooManyRequests,
				RetryAfter: secs,
			})
			continue
		}

		snap, err := h.dispatch(ctx, userID, sessionID, req)
		if err != nil {
			h.write(ctx, ws, wsResponse{Type: "error", Action: req.Action, Error: err.Error(), Status: StatusFor(err)})
			continue
		}
		h.write(ctx, ws, wsResponse{Type: "state", Action: req.Action, State: snap})
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, userID, sessionID string, req wsRequest) (*Snapshot, error) {
	switch req.Action {
	case "state":
		return h.svc.State(ctx, userID, sessionID)
	case "spec":
		return h.svc.SubmitSpec(ctx, userID, sessionID, req.Text)
	case "start":
		return h.svc.Start(ctx, userID, sessionID)
	case "reply":
		return h.svc.Reply(ctx, userID, sessionID, req.Text)
	case "feedback":
		return h.svc.SubmitFeedback(ctx, userID, sessionID, req.Text, req.Selected)
	case "generate":
		return h.svc.Generate(ctx, userID, sessionID)
	case "advance":
		return h.svc.Advance(ctx, userID, sessionID)
	case "reset":
		if err := h.svc.Reset(ctx, userID, sessionID); err != nil {
			return nil, err
		}
		return h.svc.State(ctx, userID, sessionID)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", conversation.ErrInvalidUserInput, req.Action)
	}
}

// limited consumes a token for every action except state reads.
func (h *WebSocketHandler) limited(userID, action string) (time.Duration, bool) {
	if h.limiter == nil || action == "state" {
		return 0, false
	}
	ok, retry := h.limiter.Allow(userID)
	return retry, !ok
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, v wsResponse) {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, v); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}
