package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/gm-engine/internal/broadcast"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services"
	"github.com/jwebster45206/gm-engine/internal/services/queue"
	"github.com/jwebster45206/gm-engine/pkg/chat"
	"github.com/jwebster45206/gm-engine/pkg/intent"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

type fixture struct {
	orch  *Orchestrator
	queue *queue.ActionQueue
	reg   *registry.Registry
	mock  *services.MockGenerator
	world *world.World
	mem   *memory.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := queue.NewClient("redis://"+mr.Addr(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	w := world.Default()
	reg := registry.NewRegistry(w.Snapshot().Start, logger)
	mem := memory.NewStore(memory.DefaultMaxSize)
	mock := services.NewMockGenerator()
	q := queue.NewActionQueue(client, 0, logger)

	orch := New(Config{
		GameID:      uuid.New(),
		Queue:       q,
		World:       w,
		Memory:      mem,
		Registry:    reg,
		Generator:   mock,
		Broadcaster: broadcast.New(reg, nil, logger),
		Logger:      logger,
	})
	return &fixture{orch: orch, queue: q, reg: reg, mock: mock, world: w, mem: mem}
}

func (f *fixture) join(t *testing.T, name string) *registry.Session {
	t.Helper()
	s := f.reg.Register()
	_, err := f.reg.BindIdentity(s.ID, name)
	require.NoError(t, err)
	return s
}

func (f *fixture) enqueue(t *testing.T, name string, kind intent.Kind, text string) int64 {
	t.Helper()
	seq, _, err := f.queue.Enqueue(context.Background(), f.orch.GameID(), name, kind, text)
	require.NoError(t, err)
	return seq
}

func TestResolve_ThreeIntentBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.join(t, "Alice")
	f.join(t, "Bob")
	f.join(t, "Cara")

	f.enqueue(t, "Alice", intent.KindDo, "examine the fireplace")
	f.enqueue(t, "Bob", intent.KindSay, "Gareth, any rumors tonight?")
	f.enqueue(t, "Cara", intent.KindScene, "a storm rolls in over the town")

	batch, err := f.orch.Resolve(ctx)
	require.NoError(t, err)

	require.Len(t, batch.Results, 3)
	assert.Equal(t, int64(1), batch.Results[0].Seq)
	assert.Equal(t, int64(2), batch.Results[1].Seq)
	assert.Equal(t, int64(3), batch.Results[2].Seq)
	assert.Equal(t, "Alice", batch.Results[0].Participant)
	assert.Equal(t, "Bob", batch.Results[1].Participant)
	assert.Equal(t, "Cara", batch.Results[2].Participant)
	assert.NotEmpty(t, batch.Summary)

	// 3 intent calls plus 1 summary call.
	assert.Equal(t, 4, f.mock.CallCount())

	// Bob addressed Gareth by name, so the tavern keeper remembers it.
	assert.Equal(t, 1, f.mem.Count("gareth"))
	recent := f.mem.Recent("gareth", "Bob", 5)
	require.Len(t, recent, 1)
	assert.Contains(t, recent[0].Summary, "rumors")

	// Nobody addressed Lyra.
	assert.Equal(t, 0, f.mem.Count("lyra"))
}

func TestResolve_EmptyQueueIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	before := f.world.Snapshot()

	batch, err := f.orch.Resolve(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)

	batch, err = f.orch.Resolve(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.Equal(t, 0, f.mock.CallCount())

	after := f.world.Snapshot()
	assert.Equal(t, before.TimeOfDay, after.TimeOfDay)
	assert.Equal(t, before.Weather, after.Weather)
}

func TestResolve_DrainInProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.join(t, "Alice")
	f.enqueue(t, "Alice", intent.KindDo, "wait by the bar")

	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once
	f.mock.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		return &chat.ChatResponse{Message: "Time passes."}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Resolve(ctx)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first resolve never reached the generator")
	}

	_, err := f.orch.Resolve(ctx)
	assert.ErrorIs(t, err, ErrDrainInProgress)
	assert.True(t, f.orch.Busy())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.orch.Busy())
}

func TestResolve_GeneratorFailureFallsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.join(t, "Alice")
	f.join(t, "Bob")
	f.enqueue(t, "Alice", intent.KindDo, "light a candle")
	f.enqueue(t, "Bob", intent.KindSay, "hello there")

	calls := 0
	f.mock.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return &chat.ChatResponse{Message: "The room listens."}, nil
	}

	batch, err := f.orch.Resolve(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	// First intent degraded to the deterministic template; the second
	// still went to the generator.
	assert.Contains(t, batch.Results[0].Narration, "Alice attempts to light a candle")
	assert.Equal(t, "The room listens.", batch.Results[1].Narration)
}

func TestResolve_CausalOrderingWithinBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.join(t, "Alice")
	f.join(t, "Bob")
	f.enqueue(t, "Alice", intent.KindScene, "rain starts falling")
	f.enqueue(t, "Bob", intent.KindDo, "look out the window")

	delta := `The sky opens up.
WORLD-DELTA: {"weather":"rain"}`
	responses := []string{delta, "Bob watches the rain streak the glass.", "A wet evening."}
	call := 0
	f.mock.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		resp := responses[call]
		call++
		return &chat.ChatResponse{Message: resp}, nil
	}

	batch, err := f.orch.Resolve(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	// Delta stripped from the first narration.
	assert.Equal(t, "The sky opens up.", batch.Results[0].Narration)

	// The second intent's prompt context reflects the first intent's
	// weather change, and its conversation carries the prior narration.
	second := f.mock.Call(1)
	require.NotNil(t, second)
	stateMsg := second[1].Content
	require.True(t, strings.HasPrefix(stateMsg, "Current game state:"))
	var pctx map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(stateMsg, "Current game state:\n")), &pctx))
	assert.Equal(t, "rain", pctx["weather"])

	foundPrior := false
	for _, msg := range second {
		if msg.Role == chat.ChatRoleAgent && msg.Content == "The sky opens up." {
			foundPrior = true
		}
	}
	assert.True(t, foundPrior, "prior narration should be in the second intent's conversation")

	// The live world kept the change after the batch.
	assert.Equal(t, "rain", f.world.Snapshot().Weather)
}

func TestResolve_NewLocationDeltaAttaches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.join(t, "Alice")
	f.enqueue(t, "Alice", intent.KindDo, "search for a hidden door")

	payload := prettyDelta(t, map[string]any{
		"new_location": map[string]any{
			"id":          "wine-cellar",
			"name":        "Wine Cellar",
			"description": "Dusty racks of forgotten vintages.",
			"exits":       map[string]string{"nowhere": "missing-room"},
		},
	})
	f.mock.Response = "A draft reveals a stairway down.\nWORLD-DELTA: " + payload

	_, err := f.orch.Resolve(ctx)
	require.NoError(t, err)

	snap := f.world.Snapshot()
	cellar, ok := snap.Locations["wine-cellar"]
	require.True(t, ok, "new location should be attached")

	// The bogus exit was dropped and the room linked back to where the
	// triggering participant stood, so nothing is orphaned.
	assert.NotContains(t, cellar.Exits, "nowhere")
	require.NoError(t, f.world.Validate())
	assert.Empty(t, f.world.Unreachable())
}

func TestExpandWorld(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	loc := &world.Location{
		ID:          "stables",
		Name:        "Stables",
		Description: "Hay and restless horses.",
	}
	require.NoError(t, f.orch.ExpandWorld(ctx, loc, "town-square"))
	require.NoError(t, f.world.Validate())

	snap := f.world.Snapshot()
	assert.Contains(t, snap.Locations, "stables")

	// The link back from town-square exists, whatever direction label
	// it was given.
	linked := false
	for _, target := range snap.Locations["town-square"].Exits {
		if target == "stables" {
			linked = true
		}
	}
	assert.True(t, linked)
}

func prettyDelta(t *testing.T, m map[string]any) string {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}

func TestResolve_DisconnectedParticipantStillResolves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s := f.join(t, "Alice")
	f.enqueue(t, "Alice", intent.KindDo, "order an ale")
	require.NoError(t, f.reg.Unregister(s.ID))

	batch, err := f.orch.Resolve(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "Alice", batch.Results[0].Participant)
	assert.NotEmpty(t, batch.Results[0].Narration)
}

func TestResolve_QueueErrorSurfacedNotSwallowed(t *testing.T) {
	f := setup(t)

	// A cancelled context fails the drain before anything is consumed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Resolve(ctx)
	require.Error(t, err)
	assert.False(t, f.orch.Busy())
	assert.True(t, !errors.Is(err, ErrDrainInProgress))
	assert.Contains(t, fmt.Sprintf("%v", err), "drain")
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("é", 80)

	out := truncate(s, 121)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 120, len(out))

	assert.Equal(t, s, truncate(s, len(s)))
	assert.Equal(t, "", truncate("é", 1))
}
