package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ValidateOllama checks that the Ollama server answers and, when a model is
// configured, that the model has been pulled
func ValidateOllama(ctx context.Context, creds Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/tags", strings.TrimSuffix(creds.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if creds.Model == "" {
		return nil
	}
	for _, m := range tags.Models {
		if m.Name == creds.Model || strings.TrimSuffix(m.Name, ":latest") == creds.Model {
			return nil
		}
	}
	return fmt.Errorf("model %s is not pulled", creds.Model)
}
