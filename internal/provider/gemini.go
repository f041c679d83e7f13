package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is checked when no model is configured
const DefaultGeminiModel = "gemini-2.5-pro"

// ValidateGemini fetches the configured model's info from Google AI
func ValidateGemini(ctx context.Context, creds Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	modelName := creds.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	opts := []option.ClientOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(creds.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	if _, err := client.GenerativeModel(modelName).Info(ctx); err != nil {
		return fmt.Errorf("fetching model %s: %w", modelName, err)
	}
	return nil
}
