package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/gm-engine/internal/orchestrator"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/storage"
)

// GameHandler exposes persistence operations.
// POST /v1/game/save
// POST /v1/game/load
type GameHandler struct {
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	storage  storage.Storage
	logger   *slog.Logger
}

func NewGameHandler(orch *orchestrator.Orchestrator, reg *registry.Registry, store storage.Storage, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		orch:     orch,
		registry: reg,
		storage:  store,
		logger:   logger,
	}
}

type GameOpResponse struct {
	Status  string    `json:"status"`
	GameID  string    `json:"game_id"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	switch r.URL.Path {
	case "/v1/game/save":
		h.handleSave(w, r)
	case "/v1/game/load":
		h.handleLoad(w, r)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *GameHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	game := &storage.SavedGame{
		GameID:       h.orch.GameID(),
		World:        h.orch.World().Snapshot(),
		Participants: h.registry.Participants(),
		Memory:       h.orch.Memory().Snapshot(),
	}

	if err := h.storage.SaveGame(r.Context(), game); err != nil {
		h.logger.Error("Failed to save game", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save game.")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, GameOpResponse{
		Status:  "saved",
		GameID:  game.GameID.String(),
		SavedAt: game.SavedAt,
	})
}

func (h *GameHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	game, err := h.storage.LoadGame(r.Context(), h.orch.GameID())
	if err != nil {
		// A corrupt save is fatal for the load only; live state stays.
		h.logger.Error("Failed to load game", "error", err)
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Saved game is invalid.")
		return
	}
	if game == nil {
		writeError(w, h.logger, http.StatusNotFound, "No saved game found.")
		return
	}

	if err := h.orch.RestoreState(game.World, game.Memory); err != nil {
		if errors.Is(err, orchestrator.ErrDrainInProgress) {
			writeJSON(w, h.logger, http.StatusAccepted, GameOpResponse{
				Status: "busy",
				GameID: game.GameID.String(),
			})
			return
		}
		h.logger.Error("Failed to restore game state", "error", err)
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Saved game is invalid.")
		return
	}
	h.registry.RestoreParticipants(game.Participants)

	writeJSON(w, h.logger, http.StatusOK, GameOpResponse{
		Status:  "loaded",
		GameID:  game.GameID.String(),
		SavedAt: game.SavedAt,
	})
}
