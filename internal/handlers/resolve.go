package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/gm-engine/internal/broadcast"
	"github.com/jwebster45206/gm-engine/internal/orchestrator"
)

// ResolveHandler triggers a resolution pass.
// POST /v1/resolve
type ResolveHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func NewResolveHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{orch: orch, logger: logger}
}

type ResolveResponse struct {
	Status string           `json:"status"`
	Batch  *broadcast.Batch `json:"batch,omitempty"`
}

func (h *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	batch, err := h.orch.Resolve(r.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrDrainInProgress) {
			// The in-flight drain covers this trigger.
			writeJSON(w, h.logger, http.StatusAccepted, ResolveResponse{Status: "already processing"})
			return
		}
		h.logger.Error("Resolve failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(batch.Results) == 0 {
		writeJSON(w, h.logger, http.StatusOK, ResolveResponse{Status: "nothing to process"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ResolveResponse{Status: "resolved", Batch: batch})
}
