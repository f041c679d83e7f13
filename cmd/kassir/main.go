package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/kassir/internal/admin"
	"github.com/zombor/kassir/internal/chat"
	"github.com/zombor/kassir/internal/journal"
	"github.com/zombor/kassir/internal/kassa"
	"github.com/zombor/kassir/internal/provider"
	"github.com/zombor/kassir/internal/settings"
	"github.com/zombor/kassir/internal/store"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// a missing .env is fine, the environment may be set another way
	_ = godotenv.Load()

	fs := ff.NewFlagSet("kassir")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "kassir.db", "Session store file path")
		journalPath     = fs.StringLong("journal", "kassir-history.db", "Receipt history database path")
		receiptAPIURL   = fs.StringLong("receipt-api-url", "", "Receipt processing API URL")
		profileAPIURL   = fs.StringLong("profile-api-url", "", "Fiscal profile proxy URL")
		feedbackAPIURL  = fs.StringLong("feedback-api-url", "", "Feedback API URL (optional)")
		statsAPIURL     = fs.StringLong("stats-api-url", "", "Feedback stats API URL (optional, local votes are used otherwise)")
		statsToken      = fs.StringLong("stats-token", "", "Token sent to the stats API")
		requestTimeout  = fs.DurationLong("request-timeout", kassa.DefaultTimeout, "Timeout for receipt API calls")
		persistDebounce = fs.DurationLong("persist-debounce", store.DefaultDebounce, "Delay before transcript changes are written")
		adminPassword   = fs.StringLong("admin-password", "", "Admin page password (admin page disabled when empty)")
		adminSecret     = fs.StringLong("admin-secret", "", "Admin token signing secret (random per run when empty)")
		openAIKey       = fs.StringLong("openai-key", "", "OpenAI API key")
		openRouterKey   = fs.StringLong("openrouter-key", "", "OpenRouter API key")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key")
		geminiModel     = fs.StringLong("gemini-model", provider.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "", "Ollama model name")
		gigaChatKey     = fs.StringLong("gigachat-key", "", "GigaChat authorization key")
		yandexKey       = fs.StringLong("yandexgpt-key", "", "YandexGPT API key")
		yandexFolder    = fs.StringLong("yandexgpt-folder", "", "YandexGPT folder id")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("KASSIR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *receiptAPIURL == "" {
		slog.Error("Receipt API URL is required. Set --receipt-api-url flag or KASSIR_RECEIPT_API_URL environment variable")
		os.Exit(1)
	}

	slog.Info("Opening session store...", "path", *dbPath)
	kv, err := store.NewBoltKV(*dbPath)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	slog.Info("Opening receipt history...", "path", *journalPath)
	history, err := journal.Open(*journalPath)
	if err != nil {
		slog.Error("Failed to open receipt history", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	providers := provider.NewRegistry(kv, map[string]provider.Credentials{
		provider.OpenAI:     {APIKey: *openAIKey},
		provider.OpenRouter: {APIKey: *openRouterKey, BaseURL: provider.OpenRouterBaseURL},
		provider.Gemini:     {APIKey: *geminiKey, Model: *geminiModel},
		provider.Ollama:     {BaseURL: *ollamaURL, Model: *ollamaModel},
		provider.GigaChat:   {APIKey: *gigaChatKey},
		provider.YandexGPT:  {APIKey: *yandexKey, FolderID: *yandexFolder},
	})

	settingsService := settings.NewService(kv, kassa.NewProfileClient(*profileAPIURL, *requestTimeout), providers)

	var auth *admin.Auth
	if *adminPassword != "" {
		hash, err := admin.HashPassword(*adminPassword)
		if err != nil {
			slog.Error("Failed to hash admin password", "error", err)
			os.Exit(1)
		}
		secret := *adminSecret
		if secret == "" {
			secret = uuid.NewString()
			slog.Warn("No admin secret configured, tokens will not survive a restart")
		}
		auth = admin.NewAuth(hash, secret)
	} else {
		auth = admin.NewAuth(nil, "")
	}

	feedback := admin.NewFeedbackClient(*feedbackAPIURL, *statsAPIURL, *statsToken)
	var stats chat.StatsSource = history
	if feedback.HasStats() {
		stats = feedback
	}

	hub := chat.NewHub()
	chatService := chat.NewService(chat.Deps{
		KV:        kv,
		Debouncer: store.NewDebouncer(*persistDebounce),
		Receipts:  kassa.NewClient(*receiptAPIURL, *requestTimeout),
		Settings:  settingsService,
		Journal:   history,
		Feedback:  feedback,
		Publisher: hub,
	})
	defer chatService.Close()

	basicAuth := chat.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := chat.NewServer(chat.ServerDeps{
		Chat:      chatService,
		Settings:  settingsService,
		Providers: providers,
		Auth:      auth,
		Stats:     stats,
		History:   history,
		Hub:       hub,
	}, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if active := providers.ActiveID(); active != "" {
		slog.Info("Active AI provider", "provider", active)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
