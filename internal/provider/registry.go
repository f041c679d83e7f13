package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/kassir/internal/store"
)

var (
	// ErrUnknownProvider is returned for an id outside the catalog
	ErrUnknownProvider = errors.New("Invalid provider_id")

	// ErrSecretMissing is returned when selecting a provider without credentials
	ErrSecretMissing = errors.New("secret not configured")

	// ErrNoValidator is returned when a provider cannot be checked from here
	ErrNoValidator = errors.New("provider has no validator")
)

// Validator checks that credentials reach a working provider
type Validator interface {
	Validate(ctx context.Context, creds Credentials) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, creds Credentials) error

// Validate calls f
func (f ValidatorFunc) Validate(ctx context.Context, creds Credentials) error {
	return f(ctx, creds)
}

// SecretError names the secret a provider is missing
type SecretError struct {
	SecretName string
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("Secret %s not configured", e.SecretName)
}

// Is makes SecretError match ErrSecretMissing
func (e *SecretError) Is(target error) bool {
	return target == ErrSecretMissing
}

type activeSettings struct {
	ActiveProvider string `json:"active_provider"`
}

// Registry holds the provider credentials and the globally active provider
type Registry struct {
	kv         store.KV
	creds      map[string]Credentials
	validators map[string]Validator
	mu         sync.RWMutex
}

// NewRegistry creates a registry with the default validators
func NewRegistry(kv store.KV, creds map[string]Credentials) *Registry {
	return NewRegistryWithValidators(kv, creds, map[string]Validator{
		OpenAI:     ValidatorFunc(ValidateOpenAI),
		OpenRouter: ValidatorFunc(ValidateOpenAI),
		Gemini:     ValidatorFunc(ValidateGemini),
		Ollama:     ValidatorFunc(ValidateOllama),
	})
}

// NewRegistryWithValidators creates a registry with custom validators (for testing)
func NewRegistryWithValidators(kv store.KV, creds map[string]Credentials, validators map[string]Validator) *Registry {
	if creds == nil {
		creds = map[string]Credentials{}
	}
	return &Registry{
		kv:         kv,
		creds:      creds,
		validators: validators,
	}
}

// Available lists every provider with whether its secret is configured
func (r *Registry) Available() []Info {
	out := make([]Info, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, Info{Definition: d, HasSecret: hasSecret(d.ID, r.creds[d.ID])})
	}
	return out
}

// ActiveID returns the selected provider id, or "" when none is selected
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return store.Load(r.kv, store.KeyAISettings, activeSettings{}).ActiveProvider
}

// Select makes id the active provider. An empty id clears the selection.
func (r *Registry) Select(id string) error {
	if id != "" {
		def, ok := lookup(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		if !hasSecret(id, r.creds[id]) {
			return &SecretError{SecretName: def.SecretName}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	store.Save(r.kv, store.KeyAISettings, activeSettings{ActiveProvider: id})
	slog.Info("Active AI provider changed", "provider", id)
	return nil
}

// Validate pings the provider with its configured credentials
func (r *Registry) Validate(ctx context.Context, id string) error {
	def, ok := lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	creds := r.creds[id]
	if !hasSecret(id, creds) {
		return &SecretError{SecretName: def.SecretName}
	}
	v, ok := r.validators[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoValidator, id)
	}
	if err := v.Validate(ctx, creds); err != nil {
		return fmt.Errorf("validating %s: %w", id, err)
	}
	return nil
}
