package chat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/zombor/kassir/internal/admin"
	"github.com/zombor/kassir/internal/journal"
	"github.com/zombor/kassir/internal/provider"
	"github.com/zombor/kassir/internal/settings"
)

// UserHeader carries the anonymous user id on every chat request
const UserHeader = "X-User-Id"

// AdminHeader carries the admin token
const AdminHeader = "X-Admin-Token"

type contextKey string

const userKey contextKey = "user"

// StatsSource reports feedback statistics for the admin page
type StatsSource interface {
	Stats(ctx context.Context) (*admin.Stats, error)
}

// Server handles HTTP requests for the chat
type Server struct {
	chat      *Service
	settings  *settings.Service
	providers *provider.Registry
	auth      *admin.Auth
	stats     StatsSource
	history   *journal.Journal
	hub       *Hub
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerDeps groups the services behind the HTTP surface
type ServerDeps struct {
	Chat      *Service
	Settings  *settings.Service
	Providers *provider.Registry
	Auth      *admin.Auth
	Stats     StatsSource
	History   *journal.Journal
	Hub       *Hub
}

// NewServer creates a new Server with default mux
func NewServer(deps ServerDeps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps ServerDeps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	s := &Server{
		chat:      deps.Chat,
		settings:  deps.Settings,
		providers: deps.Providers,
		auth:      deps.Auth,
		stats:     deps.Stats,
		history:   deps.History,
		hub:       deps.Hub,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Kassir"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireUser rejects requests without a user id. Browsers cannot set
// headers on a websocket handshake, so the id may also come as a query value.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if userID == "" {
			jsonError(w, "user id required", http.StatusBadRequest)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

// requireAdmin checks the admin token
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Verify(r.Header.Get(AdminHeader)); err != nil {
			jsonError(w, admin.ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userKey).(string)
	return userID
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/catalog", s.requireAuth(s.handleCatalog))
	s.mux.HandleFunc("POST /api/users", s.requireAuth(s.handleNewUser))

	// chat
	s.mux.HandleFunc("POST /api/chat/messages/{id}/feedback", s.requireUser(s.handleFeedback))
	s.mux.HandleFunc("GET /api/chat/messages", s.requireUser(s.handleMessages))
	s.mux.HandleFunc("POST /api/chat/messages", s.requireUser(s.handleSend))
	s.mux.HandleFunc("DELETE /api/chat/messages", s.requireUser(s.handleClear))
	s.mux.HandleFunc("GET /api/chat/feedback", s.requireUser(s.handleVotes))
	s.mux.HandleFunc("GET /api/chat/events", s.requireUser(s.handleEvents))

	// draft
	s.mux.HandleFunc("POST /api/chat/draft/edit", s.requireUser(s.handleToggleEdit))
	s.mux.HandleFunc("POST /api/chat/draft/confirm", s.requireUser(s.handleConfirm))
	s.mux.HandleFunc("GET /api/chat/draft", s.requireUser(s.handleDraft))
	s.mux.HandleFunc("PATCH /api/chat/draft", s.requireUser(s.handleSetField))
	s.mux.HandleFunc("DELETE /api/chat/draft", s.requireUser(s.handleCancel))

	// settings
	s.mux.HandleFunc("POST /api/settings/shops/{id}/select", s.requireUser(s.handleSelectShop))
	s.mux.HandleFunc("POST /api/settings/shops", s.requireUser(s.handleLoadShops))
	s.mux.HandleFunc("GET /api/settings", s.requireUser(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", s.requireUser(s.handleUpdateSettings))

	// history
	s.mux.HandleFunc("GET /api/history/export.xlsx", s.requireUser(s.handleExportHistory))
	s.mux.HandleFunc("GET /api/history", s.requireUser(s.handleHistory))

	// admin
	s.mux.HandleFunc("POST /api/admin/login", s.requireAuth(s.handleAdminLogin))
	s.mux.HandleFunc("GET /api/admin/stats", s.requireAdmin(s.handleAdminStats))
	s.mux.HandleFunc("POST /api/admin/providers/{id}/validate", s.requireAdmin(s.handleValidateProvider))
	s.mux.HandleFunc("GET /api/admin/providers", s.requireAdmin(s.handleProviders))
	s.mux.HandleFunc("POST /api/admin/providers", s.requireAdmin(s.handleSelectProvider))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /", s.requireAuth(s.handleIndex))
}

// Handler returns the mux wrapped with request ids, panic recovery and CORS
func (s *Server) Handler() http.Handler {
	return middleware.RequestID(
		middleware.RealIP(
			middleware.Recoverer(
				s.corsMiddleware(s.mux),
			),
		),
	)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
