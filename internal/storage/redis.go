package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/gm-engine/pkg/memory"
)

// RedisStorage implements Storage using Redis
type RedisStorage struct {
	client    *redis.Client
	maxMemory int
	logger    *slog.Logger
}

var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis-backed game store. maxMemory is the
// per-NPC memory cap enforced when loading saves.
func NewRedisStorage(client *redis.Client, maxMemory int, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client:    client,
		maxMemory: maxMemory,
		logger:    logger,
	}
}

func gameKey(gameID uuid.UUID) string {
	return fmt.Sprintf("game:%s", gameID)
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	return nil
}

func (r *RedisStorage) SaveGame(ctx context.Context, game *SavedGame) error {
	game.SavedAt = time.Now().UTC()

	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal saved game: %w", err)
	}

	if err := r.client.Set(ctx, gameKey(game.GameID), data, 0).Err(); err != nil {
		r.logger.Error("Redis SET failed", "game_id", game.GameID, "error", err)
		return fmt.Errorf("failed to save game: %w", err)
	}

	r.logger.Debug("Game saved", "game_id", game.GameID, "bytes", len(data))
	return nil
}

func (r *RedisStorage) LoadGame(ctx context.Context, gameID uuid.UUID) (*SavedGame, error) {
	data, err := r.client.Get(ctx, gameKey(gameID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.logger.Error("Redis GET failed", "game_id", gameID, "error", err)
		return nil, fmt.Errorf("failed to load game: %w", err)
	}

	var game SavedGame
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("corrupt saved game %s: %w", gameID, err)
	}

	// A save is rejected wholesale if it violates the invariants the
	// rest of the engine relies on. The caller's live state stays as is.
	if game.World == nil {
		return nil, fmt.Errorf("corrupt saved game %s: missing world", gameID)
	}
	if err := game.World.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt saved game %s: %w", gameID, err)
	}
	if game.Memory != nil {
		probe := memory.NewStore(r.maxMemory)
		if err := probe.Restore(game.Memory); err != nil {
			return nil, fmt.Errorf("corrupt saved game %s: %w", gameID, err)
		}
	}

	return &game, nil
}

func (r *RedisStorage) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	if err := r.client.Del(ctx, gameKey(gameID)).Err(); err != nil {
		r.logger.Error("Redis DEL failed", "game_id", gameID, "error", err)
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}
