package chat

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/kassir/internal/admin"
	"github.com/zombor/kassir/internal/provider"
)

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, err := s.history.List(r.Context(), userFrom(r), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		slog.Error("Error listing history", "user", userFrom(r), "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	// buffered so a failed export still gets a proper error status
	var buf bytes.Buffer
	if err := s.history.ExportXLSX(r.Context(), userFrom(r), &buf); err != nil {
		slog.Error("Error exporting history", "user", userFrom(r), "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.Write(buf.Bytes())
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, token)
	case errors.Is(err, admin.ErrDisabled):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Warn("Failed admin login", "remote", r.RemoteAddr)
		jsonError(w, err.Error(), http.StatusUnauthorized)
	}
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		slog.Error("Error loading feedback stats", "error", err)
		jsonError(w, admin.ErrStatsUnavailable.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers":       s.providers.Available(),
		"active_provider": s.providers.ActiveID(),
	})
}

type selectProviderRequest struct {
	ProviderID string `json:"provider_id"`
}

func (s *Server) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	var req selectProviderRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.providers.Select(req.ProviderID); err != nil {
		var secretErr *provider.SecretError
		if errors.As(err, &secretErr) {
			jsonError(w, secretErr.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, provider.ErrUnknownProvider.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"active_provider": req.ProviderID,
	})
}

func (s *Server) handleValidateProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.providers.Validate(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
	case errors.Is(err, provider.ErrUnknownProvider):
		jsonError(w, provider.ErrUnknownProvider.Error(), http.StatusBadRequest)
	case errors.Is(err, provider.ErrSecretMissing), errors.Is(err, provider.ErrNoValidator):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Warn("Provider validation failed", "provider", id, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
	}
}
