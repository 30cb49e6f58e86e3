package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/orchestrator"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services/events"
	"github.com/jwebster45206/gm-engine/internal/services/queue"
	"github.com/jwebster45206/gm-engine/pkg/intent"
)

// IntentsHandler accepts typed intents and enqueues them.
// POST /v1/intents {session_id, kind, text}
type IntentsHandler struct {
	registry *registry.Registry
	queue    *queue.ActionQueue
	orch     *orchestrator.Orchestrator
	events   *events.Broadcaster
	logger   *slog.Logger
}

func NewIntentsHandler(reg *registry.Registry, q *queue.ActionQueue, orch *orchestrator.Orchestrator, ev *events.Broadcaster, logger *slog.Logger) *IntentsHandler {
	return &IntentsHandler{
		registry: reg,
		queue:    q,
		orch:     orch,
		events:   ev,
		logger:   logger,
	}
}

type IntentRequest struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

type IntentResponse struct {
	Seq    int64 `json:"seq"`
	Queued bool  `json:"queued"`
}

func (h *IntentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format.")
		return
	}

	session, ok := h.registry.Session(sessionID)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		return
	}
	p := session.Participant()
	if p == nil || session.State() != registry.StateActive {
		writeError(w, h.logger, http.StatusConflict, "Session has no bound identity yet.")
		return
	}

	kind, err := intent.ParseKind(req.Kind)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	seq, wantDrain, err := h.queue.Enqueue(r.Context(), h.orch.GameID(), p.Name, kind, req.Text)
	if err != nil {
		h.logger.Error("Failed to enqueue intent", "error", err, "session_id", sessionID)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	h.registry.TouchActivity(p.Name)

	// Crossing the soft cap requests a drain; it never refuses input.
	if wantDrain {
		h.triggerDrain()
	}

	writeJSON(w, h.logger, http.StatusAccepted, IntentResponse{Seq: seq, Queued: true})
}

func (h *IntentsHandler) triggerDrain() {
	go func() {
		ctx := context.Background()
		if depth, err := h.queue.Depth(ctx, h.orch.GameID()); err == nil && h.events != nil {
			if err := h.events.PublishBatchQueued(ctx, h.orch.GameID().String(), int64(depth)); err != nil {
				h.logger.Debug("Failed to publish batch queued", "error", err)
			}
		}
		if _, err := h.orch.Resolve(ctx); err != nil && !errors.Is(err, orchestrator.ErrDrainInProgress) {
			h.logger.Error("Soft-cap drain failed", "error", err)
		}
	}()
}
