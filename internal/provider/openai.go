package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// ValidateOpenAI lists models on an OpenAI-compatible API. BaseURL selects
// OpenRouter or a proxy; empty means api.openai.com.
func ValidateOpenAI(ctx context.Context, creds Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	if len(models.Models) == 0 {
		return fmt.Errorf("no models available for this key")
	}
	return nil
}
