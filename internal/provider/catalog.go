package provider

// Provider IDs
const (
	GigaChat   = "gigachat"
	YandexGPT  = "yandexgpt"
	OpenAI     = "openai"
	OpenRouter = "openrouter"
	Gemini     = "gemini"
	Ollama     = "ollama"
)

// Credentials are the server-held secrets for one provider
type Credentials struct {
	APIKey   string
	FolderID string
	BaseURL  string
	Model    string
}

// Definition describes a selectable AI provider
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SecretName  string `json:"secret_name"`
}

// Info is a Definition together with whether its secret is configured
type Info struct {
	Definition
	HasSecret bool `json:"has_secret"`
}

var catalog = []Definition{
	{ID: GigaChat, Name: "GigaChat (Сбер)", Description: "Российская модель от Сбера", SecretName: "GIGACHAT_AUTH_KEY"},
	{ID: YandexGPT, Name: "YandexGPT", Description: "Российская модель от Яндекса", SecretName: "YANDEXGPT_API_KEY"},
	{ID: OpenAI, Name: "OpenAI GPT-4", Description: "GPT-4 Turbo от OpenAI", SecretName: "OPENAI_API_KEY"},
	{ID: OpenRouter, Name: "Claude via OpenRouter", Description: "Claude 3.5 через OpenRouter (работает в РФ)", SecretName: "OPENROUTER_API_KEY"},
	{ID: Gemini, Name: "Google Gemini", Description: "Gemini через Google AI Studio", SecretName: "GEMINI_API_KEY"},
	{ID: Ollama, Name: "Ollama", Description: "Локальная модель через Ollama", SecretName: "OLLAMA_URL"},
}

func lookup(id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// hasSecret reports whether creds are enough to call the provider
func hasSecret(id string, creds Credentials) bool {
	switch id {
	case YandexGPT:
		return creds.APIKey != "" && creds.FolderID != ""
	case Ollama:
		return creds.BaseURL != ""
	default:
		return creds.APIKey != ""
	}
}
