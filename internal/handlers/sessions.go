package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services/events"
)

// SessionsHandler manages the session lifecycle surface:
// POST /v1/sessions                  register a new session
// POST /v1/sessions/{id}/name        bind a display name
// GET  /v1/sessions/{id}/events      SSE stream of session envelopes
type SessionsHandler struct {
	registry *registry.Registry
	events   *events.Broadcaster
	gameID   uuid.UUID
	logger   *slog.Logger
}

func NewSessionsHandler(reg *registry.Registry, ev *events.Broadcaster, gameID uuid.UUID, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		registry: reg,
		events:   ev,
		gameID:   gameID,
		logger:   logger,
	}
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type NameResponse struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected: /v1/sessions[/{id}/name|events]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.handleRegister(w, r)
	case len(parts) == 4 && parts[3] == "name" && r.Method == http.MethodPost:
		h.handleName(w, r, parts[2])
	case len(parts) == 4 && parts[3] == "events" && r.Method == http.MethodGet:
		h.handleEvents(w, r, parts[2])
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Register()
	if err := h.registry.StartNaming(s.ID); err != nil {
		h.logger.Error("Failed to start naming", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("Session created", "session_id", s.ID, "remote_addr", r.RemoteAddr)
	writeJSON(w, h.logger, http.StatusCreated, SessionResponse{
		SessionID: s.ID.String(),
		State:     string(s.State()),
	})
}

func (h *SessionsHandler) handleName(w http.ResponseWriter, r *http.Request, idStr string) {
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format.")
		return
	}

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.")
		return
	}

	p, err := h.registry.BindIdentity(sessionID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNameConflict):
			writeError(w, h.logger, http.StatusConflict, fmt.Sprintf("Name %q is already in use.", req.Name))
		case errors.Is(err, registry.ErrSessionNotFound):
			writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		default:
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
		}
		return
	}

	if h.events != nil {
		if err := h.events.PublishSessionJoined(r.Context(), h.gameID.String(), sessionID.String(), p.Name); err != nil {
			h.logger.Error("Failed to publish session join", "error", err)
		}
	}

	writeJSON(w, h.logger, http.StatusOK, NameResponse{
		SessionID: sessionID.String(),
		Name:      p.Name,
		Location:  p.Location,
	})
}

// handleEvents streams the session's envelopes as Server-Sent Events.
// Closing the stream unregisters the session.
func (h *SessionsHandler) handleEvents(w http.ResponseWriter, r *http.Request, idStr string) {
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format.")
		return
	}

	session, ok := h.registry.Session(sessionID)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	h.logger.Info("SSE connection established",
		"session_id", sessionID,
		"remote_addr", r.RemoteAddr)

	h.sendSSE(w, "connected", map[string]interface{}{
		"session_id": sessionID.String(),
		"message":    "Connected to event stream",
	})

	name := ""
	if p := session.Participant(); p != nil {
		name = p.Name
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	defer func() {
		if err := h.registry.Unregister(sessionID); err != nil && !errors.Is(err, registry.ErrSessionNotFound) {
			h.logger.Error("Failed to unregister session", "error", err)
		}
		if h.events != nil && name != "" {
			if err := h.events.PublishSessionLeft(r.Context(), h.gameID.String(), sessionID.String(), name); err != nil {
				h.logger.Debug("Failed to publish session leave", "error", err)
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "session_id", sessionID)
			return

		case env, open := <-session.Out():
			if !open {
				return
			}
			h.sendSSE(w, env.Kind, env)

		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

func (h *SessionsHandler) sendSSE(w http.ResponseWriter, eventType string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Error("Failed to write SSE event", "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
