package gateway

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig selects and configures a hosted model provider.
type ProviderConfig struct {
	Provider          string
	Model             string
	GoogleAPIKey      string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "google", "gemini":
		return NewGoogleProvider(ctx, cfg.GoogleAPIKey, cfg.Model)
	case "openrouter", "openai":
		return NewOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
