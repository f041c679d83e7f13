package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/kassir/internal/draft"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-Admin-Token")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// serviceError maps a chat error to its status code
func serviceError(w http.ResponseWriter, err error) {
	var unbalanced *UnbalancedError
	switch {
	case errors.As(err, &unbalanced):
		setCORSHeaders(w)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   err.Error(),
			"balance": unbalanced.Balance,
		})
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrInvalidFeedback),
		errors.Is(err, draft.ErrIndexOutOfRange):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNoDraft):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrMessageNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("Chat request failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, draft.FiscalCatalog())
}

func (s *Server) handleNewUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": s.chat.NewUserID()})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.chat.Messages(userFrom(r))})
}

type sendRequest struct {
	Message       string `json:"message"`
	OperationType string `json:"operation_type"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.chat.Send(r.Context(), userFrom(r), req.Message, req.OperationType)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Clear(userFrom(r)); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	FeedbackType string `json:"feedback_type"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.chat.Feedback(r.Context(), userFrom(r), r.PathValue("id"), req.FeedbackType); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := s.chat.Votes(r.Context(), userFrom(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, userFrom(r))
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	view, err := s.chat.Draft(userFrom(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type setFieldRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var req setFieldRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	path, err := draft.ParsePath(req.Path)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := s.chat.SetField(userFrom(r), path, req.Value)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleToggleEdit(w http.ResponseWriter, r *http.Request) {
	view, err := s.chat.ToggleEdit(userFrom(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	result, err := s.chat.Confirm(r.Context(), userFrom(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.chat.Cancel(userFrom(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
