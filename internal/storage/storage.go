package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

// SavedGame is the full persisted state of one game instance.
type SavedGame struct {
	GameID       uuid.UUID                     `json:"game_id"`
	World        *world.World                  `json:"world"`
	Participants map[string]registry.Participant `json:"participants,omitempty"`
	Memory       map[string]*memory.NPCMemory  `json:"npc_memory,omitempty"`
	SavedAt      time.Time                     `json:"saved_at"`
}

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the service connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the service connection
	Close() error
}

// Storage defines the interface for game persistence
type Storage interface {
	HealthChecker
	Closer

	// SaveGame persists a game snapshot under its game ID
	SaveGame(ctx context.Context, game *SavedGame) error

	// LoadGame retrieves a saved game by ID. Returns nil when no save
	// exists. A save that violates world or memory invariants is
	// rejected with an error so it can never replace live state.
	LoadGame(ctx context.Context, gameID uuid.UUID) (*SavedGame, error)

	// DeleteGame removes a saved game by ID
	DeleteGame(ctx context.Context, gameID uuid.UUID) error
}
