package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// DefaultOpenRouterModel is used when no model name is configured.
	DefaultOpenRouterModel = "google/gemini-2.0-flash-001"
)

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// OpenAICompatibleProvider calls any OpenAI-compatible chat endpoint
// through langchaingo.
type OpenAICompatibleProvider struct {
	name  string
	model llms.Model
}

var _ Provider = (*OpenAICompatibleProvider)(nil)

// NewOpenRouterProvider creates a provider for OpenRouter or another
// OpenAI-compatible base URL.
func NewOpenRouterProvider(apiKey, baseURL, model string) (*OpenAICompatibleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter API key required")
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai-compatible client: %w", err)
	}
	return newOpenAICompatibleProvider("openrouter", llm), nil
}

func newOpenAICompatibleProvider(name string, model llms.Model) *OpenAICompatibleProvider {
	return &OpenAICompatibleProvider{name: name, model: model}
}

// Name implements Provider.
func (o *OpenAICompatibleProvider) Name() string { return o.name }

// Generate implements Gateway.
func (o *OpenAICompatibleProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(0.4)}
	if p.Format == FormatJSON {
		opts = append(opts, llms.WithJSONMode())
	}
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, p.Text)}
	resp, err := o.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", o.classify(ctx, p.Op, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", Malformed(o.name, p.Op, errors.New("no choices"))
	}
	return resp.Choices[0].Content, nil
}

func (o *OpenAICompatibleProvider) classify(ctx context.Context, op string, err error) error {
	if ctxErr := contextError(ctx, o.name, op, err); ctxErr != nil {
		return ctxErr
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &Error{Provider: o.name, Op: op, Kind: classifyStatus(code), Err: err}
	}
	return Transient(o.name, op, err)
}
