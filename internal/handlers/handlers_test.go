package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/gm-engine/internal/broadcast"
	"github.com/jwebster45206/gm-engine/internal/orchestrator"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services"
	"github.com/jwebster45206/gm-engine/internal/services/queue"
	"github.com/jwebster45206/gm-engine/internal/storage"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

type testEnv struct {
	registry *registry.Registry
	queue    *queue.ActionQueue
	orch     *orchestrator.Orchestrator
	mock     *services.MockGenerator
	store    *storage.MockStorage
	world    *world.World
	logger   *slog.Logger
}

func setupEnv(t *testing.T) *testEnv {
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
	mock := services.NewMockGenerator()
	q := queue.NewActionQueue(client, 0, logger)

	orch := orchestrator.New(orchestrator.Config{
		GameID:      uuid.New(),
		Queue:       q,
		World:       w,
		Memory:      memory.NewStore(memory.DefaultMaxSize),
		Registry:    reg,
		Generator:   mock,
		Broadcaster: broadcast.New(reg, nil, logger),
		Logger:      logger,
	})

	return &testEnv{
		registry: reg,
		queue:    q,
		orch:     orch,
		mock:     mock,
		store:    storage.NewMockStorage(),
		world:    w,
		logger:   logger,
	}
}

func (e *testEnv) activeSession(t *testing.T, name string) *registry.Session {
	t.Helper()
	s := e.registry.Register()
	_, err := e.registry.BindIdentity(s.ID, name)
	require.NoError(t, err)
	return s
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSessionsHandler_RegisterAndName(t *testing.T) {
	env := setupEnv(t)
	h := NewSessionsHandler(env.registry, nil, env.orch.GameID(), env.logger)

	rec := postJSON(t, h, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "naming", sess.State)

	rec = postJSON(t, h, fmt.Sprintf("/v1/sessions/%s/name", sess.SessionID), NameRequest{Name: "gareth"})
	require.Equal(t, http.StatusOK, rec.Code)

	var named NameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &named))
	assert.Equal(t, "Gareth", named.Name)
	assert.Equal(t, "golden-dragon-tavern", named.Location)
}

func TestSessionsHandler_NameConflict(t *testing.T) {
	env := setupEnv(t)
	h := NewSessionsHandler(env.registry, nil, env.orch.GameID(), env.logger)
	env.activeSession(t, "Gareth")

	rec := postJSON(t, h, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	rec = postJSON(t, h, fmt.Sprintf("/v1/sessions/%s/name", sess.SessionID), NameRequest{Name: "GARETH"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIntentsHandler_Enqueue(t *testing.T) {
	env := setupEnv(t)
	h := NewIntentsHandler(env.registry, env.queue, env.orch, nil, env.logger)
	s := env.activeSession(t, "Alice")

	rec := postJSON(t, h, "/v1/intents", IntentRequest{
		SessionID: s.ID.String(),
		Kind:      "do",
		Text:      "open the door",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp IntentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Seq)
	assert.True(t, resp.Queued)

	depth, err := env.queue.Depth(context.Background(), env.orch.GameID())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestIntentsHandler_RejectsUnnamedSession(t *testing.T) {
	env := setupEnv(t)
	h := NewIntentsHandler(env.registry, env.queue, env.orch, nil, env.logger)

	s := env.registry.Register()
	rec := postJSON(t, h, "/v1/intents", IntentRequest{
		SessionID: s.ID.String(),
		Kind:      "do",
		Text:      "sneak in",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIntentsHandler_RejectsBadKind(t *testing.T) {
	env := setupEnv(t)
	h := NewIntentsHandler(env.registry, env.queue, env.orch, nil, env.logger)
	s := env.activeSession(t, "Alice")

	rec := postJSON(t, h, "/v1/intents", IntentRequest{
		SessionID: s.ID.String(),
		Kind:      "dance",
		Text:      "the macarena",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewResolveHandler(env.orch, env.logger)

	// Empty queue resolves to a notice, not an error.
	rec := postJSON(t, h, "/v1/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "nothing to process", resp.Status)

	env.activeSession(t, "Alice")
	_, _, err := env.queue.Enqueue(context.Background(), env.orch.GameID(), "Alice", "say", "hello Gareth")
	require.NoError(t, err)

	rec = postJSON(t, h, "/v1/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "resolved", resp.Status)
	require.NotNil(t, resp.Batch)
	require.Len(t, resp.Batch.Results, 1)
	assert.Equal(t, "Alice", resp.Batch.Results[0].Participant)
}

func TestWorldHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewWorldHandler(env.world, env.logger)

	req := httptest.NewRequest(http.MethodGet, "/v1/world", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap world.World
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "golden-dragon-tavern", snap.Start)
	assert.Contains(t, snap.Locations, "town-square")

	rec = postJSON(t, h, "/v1/world", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGameHandler_SaveAndLoad(t *testing.T) {
	env := setupEnv(t)
	h := NewGameHandler(env.orch, env.registry, env.store, env.logger)
	env.activeSession(t, "Alice")

	rec := postJSON(t, h, "/v1/game/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Mutate the live world, then load the save back over it.
	env.world.SetWeather("thunderstorm")

	rec = postJSON(t, h, "/v1/game/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "thunderstorm", env.world.Snapshot().Weather)
}

func TestGameHandler_LoadMissing(t *testing.T) {
	env := setupEnv(t)
	h := NewGameHandler(env.orch, env.registry, env.store, env.logger)

	rec := postJSON(t, h, "/v1/game/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGameHandler_LoadCorruptLeavesLiveState(t *testing.T) {
	env := setupEnv(t)
	h := NewGameHandler(env.orch, env.registry, env.store, env.logger)

	env.store.LoadError = fmt.Errorf("corrupt saved game")
	env.world.SetWeather("clear skies")

	rec := postJSON(t, h, "/v1/game/load", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "clear skies", env.world.Snapshot().Weather)
}

func TestSheetsHandler_ListAndAssign(t *testing.T) {
	env := setupEnv(t)

	dir := t.TempDir()
	spec := `{"name": "Sellsword", "class": "fighter", "max_hp": 28, "hp": 28, "ac": 16, "attributes": {"str": 16}}`
	require.NoError(t, os.WriteFile(dir+"/sellsword.json", []byte(spec), 0o644))

	h := NewSheetsHandler(env.registry, storage.NewSheetLibrary(dir), env.logger)
	s := env.activeSession(t, "Alice")

	req := httptest.NewRequest(http.MethodGet, "/v1/sheets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"sellsword"}, list["sheets"])

	rec = postJSON(t, h, "/v1/sheets/assign", AssignSheetRequest{
		SessionID: s.ID.String(),
		SheetID:   "sellsword",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	p, ok := env.registry.ParticipantByName("Alice")
	require.True(t, ok)
	require.NotNil(t, p.Sheet)
	assert.Equal(t, "fighter", p.Sheet.Spec.Class)
	assert.Equal(t, 28, p.Sheet.Actor.HP())
}

func TestHealthHandler(t *testing.T) {
	env := setupEnv(t)
	h := NewHealthHandler(env.store, env.orch, env.logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "idle", resp.Components["resolver"])

	env.store.PingError = fmt.Errorf("connection refused")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
