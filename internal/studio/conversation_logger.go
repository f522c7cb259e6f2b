package studio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/sdlc-studio/internal/config"
)

// ConversationLogEvent is one NDJSON line of the conversation log.
type ConversationLogEvent struct {
	Timestamp  time.Time      `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Agent      string         `json:"agent,omitempty"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Content    string         `json:"content,omitempty"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EventLogger accepts conversation events.
type EventLogger interface {
	Log(ev ConversationLogEvent)
}

type nopEventLogger struct{}

func (nopEventLogger) Log(ConversationLogEvent) {}

// ConversationLogger writes events asynchronously to one file per
// user/session and optionally to a global file. Events are dropped when
// the queue is full.
type ConversationLogger struct {
	cfg    config.ConversationLogConfig
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan ConversationLogEvent
	done    chan struct{}
	dropped atomic.Int64

	files  map[string]*os.File
	global *os.File
}

// NewConversationLogger starts the writer goroutine.
func NewConversationLogger(cfg config.ConversationLogConfig, logger *slog.Logger) (*ConversationLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	l := &ConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}
	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}
	go l.run()
	return l, nil
}

// Log enqueues ev without blocking.
func (l *ConversationLogger) Log(ev ConversationLogEvent) {
	if !l.cfg.Enabled {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		n := l.dropped.Add(1)
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", ev.UserID, "session_id", ev.SessionID, "dropped_total", n)
	}
}

// Dropped returns the number of events discarded on a full queue.
func (l *ConversationLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close flushes queued events and closes every file.
func (l *ConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done

	var firstErr error
	for key, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conversation log %s: %w", key, err)
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return firstErr
}

func (l *ConversationLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if f, err := l.sessionFile(ev.UserID, ev.SessionID); err != nil {
			l.logger.Warn("failed to open conversation log", "user_id", ev.UserID, "error", err)
		} else if _, err := f.Write(line); err != nil {
			l.logger.Warn("failed to write conversation log", "user_id", ev.UserID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *ConversationLogger) sessionFile(userID, sessionID string) (*os.File, error) {
	key := userID + "/" + sessionID
	if f, ok := l.files[key]; ok {
		return f, nil
	}
	dir := filepath.Join(l.cfg.Dir, safeName(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, safeName(sessionID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[key] = f
	return f, nil
}

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafeNameSet = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

func safeName(s string) string {
	s = unsafeNameSet.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 0x20 {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}
