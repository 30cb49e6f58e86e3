package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewBroadcaster(client, slog.Default()), client
}

func TestBroadcaster_PublishBatchCompleted(t *testing.T) {
	b, client := setupBroadcaster(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelForGame("game-1"))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.PublishBatchCompleted(ctx, "game-1", 3, "The tavern erupts in song."))

	select {
	case msg := <-sub.Channel():
		var event Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, EventTypeBatchCompleted, event.Type)
		assert.Equal(t, "game-1", event.GameID)
		assert.Equal(t, float64(3), event.Data["resolved"])
		assert.Equal(t, "The tavern erupts in song.", event.Data["summary"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_GameChannelIsolation(t *testing.T) {
	b, client := setupBroadcaster(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelForGame("game-a"))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.PublishSessionJoined(ctx, "game-b", "sess-1", "Gareth"))
	require.NoError(t, b.PublishSessionJoined(ctx, "game-a", "sess-2", "Lyra"))

	select {
	case msg := <-sub.Channel():
		var event Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, "game-a", event.GameID)
		assert.Equal(t, "Lyra", event.Data["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
