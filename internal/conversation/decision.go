package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/gateway"
)

const (
	newQuestionMarker = "[N]"
	followUpMarker    = "[C]"
)

// Decision is the typed interpretation of a clarification reply.
type Decision struct {
	Kind     domain.DecisionKind `json:"kind"`
	Question string              `json:"question,omitempty"`
	// Message is the transcript text recorded for the reply.
	Message string `json:"message"`
}

// Satisfied reports whether question-asking should stop.
func (d Decision) Satisfied() bool {
	return d.Kind == domain.DecisionSatisfied
}

type wireDecision struct {
	Decision string `json:"decision"`
	Question string `json:"question"`
}

// ParseDecision interprets a gateway reply. A JSON object
// {"decision": ..., "question": ...} is preferred. Any other text follows
// the marker contract: a reply beginning with sentinel means satisfied,
// otherwise it is a question whose kind is read from a trailing [N] or [C].
func ParseDecision(raw, sentinel string) (Decision, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Decision{}, fmt.Errorf("%w: empty clarification reply", gateway.ErrMalformedResponse)
	}

	if body, ok := jsonBody(trimmed); ok {
		d, err := parseJSONDecision(body, sentinel)
		// Braces inside a prose question are not a decision object.
		if err == nil || startsStructured(trimmed) {
			return d, err
		}
	}

	if strings.HasPrefix(trimmed, sentinel) {
		return Decision{Kind: domain.DecisionSatisfied, Message: trimmed}, nil
	}

	kind := domain.DecisionNewQuestion
	question := trimmed
	switch {
	case strings.HasSuffix(trimmed, followUpMarker):
		kind = domain.DecisionFollowUp
		question = strings.TrimSpace(strings.TrimSuffix(trimmed, followUpMarker))
	case strings.HasSuffix(trimmed, newQuestionMarker):
		question = strings.TrimSpace(strings.TrimSuffix(trimmed, newQuestionMarker))
	}
	return Decision{Kind: kind, Question: question, Message: trimmed}, nil
}

func parseJSONDecision(body, sentinel string) (Decision, error) {
	var wire wireDecision
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return Decision{}, fmt.Errorf("%w: decode decision: %w", gateway.ErrMalformedResponse, err)
	}

	question := strings.TrimSpace(wire.Question)
	switch normalizeKind(wire.Decision) {
	case domain.DecisionSatisfied:
		return Decision{Kind: domain.DecisionSatisfied, Message: sentinel}, nil
	case domain.DecisionNewQuestion:
		if question == "" {
			return Decision{}, fmt.Errorf("%w: new_question without question text", gateway.ErrMalformedResponse)
		}
		return Decision{Kind: domain.DecisionNewQuestion, Question: question, Message: withMarker(question, newQuestionMarker)}, nil
	case domain.DecisionFollowUp:
		if question == "" {
			return Decision{}, fmt.Errorf("%w: follow_up without question text", gateway.ErrMalformedResponse)
		}
		return Decision{Kind: domain.DecisionFollowUp, Question: question, Message: withMarker(question, followUpMarker)}, nil
	default:
		return Decision{}, fmt.Errorf("%w: unknown decision %q", gateway.ErrMalformedResponse, wire.Decision)
	}
}

func normalizeKind(s string) domain.DecisionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "satisfied", "done":
		return domain.DecisionSatisfied
	case "new_question", "new", "ask_new":
		return domain.DecisionNewQuestion
	case "follow_up", "followup", "ask_followup", "clarification":
		return domain.DecisionFollowUp
	default:
		return domain.DecisionNone
	}
}

func withMarker(question, marker string) string {
	if strings.HasSuffix(question, marker) {
		return question
	}
	return question + " " + marker
}

// jsonBody returns the span from the first '{' to the last '}' in s, or
// to the end when unclosed. Code fences with any language tag and leading
// prose fall outside the span.
func jsonBody(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:], true
	}
	return s[start : end+1], true
}

func startsStructured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "```")
}

// IsMalformed reports whether err came from an unusable gateway reply.
func IsMalformed(err error) bool {
	return errors.Is(err, gateway.ErrMalformedResponse)
}
