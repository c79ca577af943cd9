package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/http/response"
	"github.com/listenupapp/dirwatch/internal/sse"
)

// StartSessionRequest is the body of POST /api/v1/sessions.
type StartSessionRequest struct {
	Root string `json:"root" validate:"required"`
	// Recursive defaults to true when omitted.
	Recursive *bool `json:"recursive,omitempty"`
	Debug     bool  `json:"debug"`
}

// handleListSessions returns every registered session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, s.registry.List(), s.logger)
}

// handleStartSession starts watching a new root. Changes are broadcast on
// the event stream tagged with the new session id.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	sessionID, err := s.registry.StartFunc(req.Root, s.sseManager.Sink, recursive, req.Debug)
	if err != nil {
		s.logger.Warn("Failed to start session",
			slog.String("root", req.Root),
			slog.Int("status", errors.StatusOf(err)),
			slog.String("error", err.Error()))
		response.HandleError(w, err, s.logger)
		return
	}

	info, err := s.registry.Describe(sessionID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.sseManager.Emit(sse.NewSessionStartedEvent(sessionID, info.Root, info.Recursive))
	response.Created(w, info, s.logger)
}

// handleGetSession returns one session with its delivery counters.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Describe(chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, info, s.logger)
}

// handleStopSession stops a session and removes it from the registry.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	info, err := s.registry.Describe(sessionID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.registry.Stop(sessionID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.sseManager.Emit(sse.NewSessionStoppedEvent(sessionID, info.Root))
	response.NoContent(w)
}
