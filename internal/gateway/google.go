package gateway

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGoogleModel is used when no model name is configured.
const DefaultGoogleModel = "gemini-2.0-flash"

type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GoogleProvider calls the Gemini API.
type GoogleProvider struct {
	model       string
	temperature float32
	generate    generateContentFunc
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a Gemini-backed provider.
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key required")
	}
	if model == "" {
		model = DefaultGoogleModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GoogleProvider{
		model:       model,
		temperature: 0.4,
		generate:    client.Models.GenerateContent,
	}, nil
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// Generate implements Gateway.
func (g *GoogleProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if p.Format == FormatJSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.generate(ctx, g.model, genai.Text(p.Text), cfg)
	if err != nil {
		return "", g.classify(ctx, p.Op, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", Malformed(g.Name(), p.Op, errors.New("no candidates"))
	}
	return resp.Text(), nil
}

func (g *GoogleProvider) classify(ctx context.Context, op string, err error) error {
	if ctxErr := contextError(ctx, g.Name(), op, err); ctxErr != nil {
		return ctxErr
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: g.Name(), Op: op, Kind: classifyStatus(apiErr.Code), Err: err}
	}
	return Transient(g.Name(), op, err)
}
