package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/gm-engine/pkg/world"
)

// WorldHandler serves a read-only snapshot of the world.
// GET /v1/world
type WorldHandler struct {
	world  *world.World
	logger *slog.Logger
}

func NewWorldHandler(w *world.World, logger *slog.Logger) *WorldHandler {
	return &WorldHandler{world: w, logger: logger}
}

func (h *WorldHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.world.Snapshot())
}
