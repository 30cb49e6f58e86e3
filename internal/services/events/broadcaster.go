package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeSessionJoined  EventType = "session.joined"
	EventTypeSessionLeft    EventType = "session.left"
	EventTypeBatchQueued    EventType = "batch.queued"
	EventTypeBatchCompleted EventType = "batch.completed"
	EventTypeBatchFailed    EventType = "batch.failed"
	EventTypeNarration      EventType = "narration"
	EventTypeWorldUpdated   EventType = "world.updated"
)

// Event is a generic event published to a game channel
type Event struct {
	Type   EventType              `json:"type"`
	GameID string                 `json:"game_id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// ChannelForGame returns the Pub/Sub channel name for a game.
func ChannelForGame(gameID string) string {
	return fmt.Sprintf("game-events:%s", gameID)
}

// PublishSessionJoined publishes a session.joined event
func (b *Broadcaster) PublishSessionJoined(ctx context.Context, gameID string, sessionID string, name string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeSessionJoined,
		GameID: gameID,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"name":       name,
		},
	})
}

// PublishSessionLeft publishes a session.left event
func (b *Broadcaster) PublishSessionLeft(ctx context.Context, gameID string, sessionID string, name string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeSessionLeft,
		GameID: gameID,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"name":       name,
		},
	})
}

// PublishBatchQueued publishes a batch.queued event when the pending
// queue crosses the soft cap and a drain is wanted.
func (b *Broadcaster) PublishBatchQueued(ctx context.Context, gameID string, depth int64) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeBatchQueued,
		GameID: gameID,
		Data: map[string]interface{}{
			"status": "queued",
			"depth":  depth,
		},
	})
}

// PublishBatchCompleted publishes a batch.completed event
func (b *Broadcaster) PublishBatchCompleted(ctx context.Context, gameID string, resolved int, summary string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeBatchCompleted,
		GameID: gameID,
		Data: map[string]interface{}{
			"status":   "completed",
			"resolved": resolved,
			"summary":  summary,
		},
	})
}

// PublishBatchFailed publishes a batch.failed event
func (b *Broadcaster) PublishBatchFailed(ctx context.Context, gameID string, errorMsg string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeBatchFailed,
		GameID: gameID,
		Data: map[string]interface{}{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// PublishNarration publishes a single resolved narration
func (b *Broadcaster) PublishNarration(ctx context.Context, gameID string, seq int64, participant string, narration string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeNarration,
		GameID: gameID,
		Data: map[string]interface{}{
			"seq":         seq,
			"participant": participant,
			"narration":   narration,
		},
	})
}

// PublishWorldUpdated publishes a world.updated event after topology or
// atmosphere changes are applied.
func (b *Broadcaster) PublishWorldUpdated(ctx context.Context, gameID string, weather string, timeOfDay string) error {
	return b.publishToGame(ctx, gameID, Event{
		Type:   EventTypeWorldUpdated,
		GameID: gameID,
		Data: map[string]interface{}{
			"weather":     weather,
			"time_of_day": timeOfDay,
		},
	})
}

// publishToGame publishes an event to the game-specific channel
func (b *Broadcaster) publishToGame(ctx context.Context, gameID string, event Event) error {
	channel := ChannelForGame(gameID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)
	return nil
}
