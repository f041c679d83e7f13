package chat

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/kassir/internal/kassa"
	"github.com/zombor/kassir/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get(userFrom(r)).Public())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Integration
	if err := decodeBody(r, &in); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := s.settings.Update(userFrom(r), in)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}

func (s *Server) handleLoadShops(w http.ResponseWriter, r *http.Request) {
	updated, err := s.settings.LoadShops(r.Context(), userFrom(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, updated.Public())
	case errors.Is(err, settings.ErrCredentialsRequired):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kassa.ErrUnavailable):
		slog.Error("Profile API unavailable", "user", userFrom(r), "error", err)
		jsonError(w, "Ошибка соединения с сервером", http.StatusBadGateway)
	default:
		jsonError(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) handleSelectShop(w http.ResponseWriter, r *http.Request) {
	updated, err := s.settings.SelectShop(userFrom(r), r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}
