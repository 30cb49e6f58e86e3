package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/broadcast"
	"github.com/jwebster45206/gm-engine/internal/config"
	"github.com/jwebster45206/gm-engine/internal/handlers"
	"github.com/jwebster45206/gm-engine/internal/logger"
	"github.com/jwebster45206/gm-engine/internal/middleware"
	"github.com/jwebster45206/gm-engine/internal/orchestrator"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services"
	"github.com/jwebster45206/gm-engine/internal/services/events"
	"github.com/jwebster45206/gm-engine/internal/services/queue"
	"github.com/jwebster45206/gm-engine/internal/storage"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting GM Engine",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName)

	var generator services.Generator
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		generator = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log)
		log.Info("Using Anthropic generator")
	case "ollama":
		generator = services.NewOllamaService(cfg.OllamaURL, cfg.ModelName, log)
		log.Info("Using Ollama generator", "url", cfg.OllamaURL)
	default:
		log.Error("Invalid LLM provider specified", "provider", cfg.LLMProvider, "supported", []string{"anthropic", "ollama"})
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer initCancel()
	if err := generator.InitModel(initCtx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize generator model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	redisClient := queueClient.GetRedisClient()

	store := storage.NewRedisStorage(redisClient, cfg.MaxMemorySize, log)
	broadcaster := events.NewBroadcaster(redisClient, log)

	gameID := uuid.New()
	if cfg.GameID != "" {
		gameID, err = uuid.Parse(cfg.GameID)
		if err != nil {
			log.Error("Invalid GAME_ID", "error", err)
			os.Exit(1)
		}
	}

	w := world.Default()
	mem := memory.NewStore(cfg.MaxMemorySize)
	reg := registry.NewRegistry(w.Snapshot().Start, log)

	actionQueue := queue.NewActionQueue(queueClient, cfg.QueueSoftCap, log)
	caster := broadcast.New(reg, broadcaster, log)

	orch := orchestrator.New(orchestrator.Config{
		GameID:           gameID,
		Queue:            actionQueue,
		World:            w,
		Memory:           mem,
		Registry:         reg,
		Generator:        generator,
		Broadcaster:      caster,
		Events:           broadcaster,
		GeneratorTimeout: cfg.GeneratorTimeout,
		Logger:           log,
	})

	// Resume a persisted game when one exists under this ID.
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if saved, err := store.LoadGame(loadCtx, gameID); err != nil {
		log.Error("Saved game is invalid, starting fresh", "error", err)
	} else if saved != nil {
		if err := orch.RestoreState(saved.World, saved.Memory); err != nil {
			log.Error("Failed to restore saved game, starting fresh", "error", err)
		} else {
			reg.RestoreParticipants(saved.Participants)
			log.Info("Resumed saved game", "game_id", gameID, "saved_at", saved.SavedAt)
		}
	}
	loadCancel()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if cfg.AutoSaveInterval > 0 {
		go autoSaveLoop(rootCtx, cfg.AutoSaveInterval, orch, reg, store, log)
	}

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, orch, log))

	sessionsHandler := handlers.NewSessionsHandler(reg, broadcaster, gameID, log)
	mux.Handle("/v1/sessions", sessionsHandler)
	mux.Handle("/v1/sessions/", sessionsHandler)

	mux.Handle("/v1/intents", handlers.NewIntentsHandler(reg, actionQueue, orch, broadcaster, log))
	mux.Handle("/v1/resolve", handlers.NewResolveHandler(orch, log))
	mux.Handle("/v1/world", handlers.NewWorldHandler(w, log))

	gameHandler := handlers.NewGameHandler(orch, reg, store, log)
	mux.Handle("/v1/game/save", gameHandler)
	mux.Handle("/v1/game/load", gameHandler)

	sheetsHandler := handlers.NewSheetsHandler(reg, storage.NewSheetLibrary(cfg.DataDir), log)
	mux.Handle("/v1/sheets", sheetsHandler)
	mux.Handle("/v1/sheets/", sheetsHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")
	rootCancel()

	// Stop accepting requests and let in-flight ones drain before
	// touching storage.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	saveGame(saveCtx, orch, reg, store, log)
	saveCancel()

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

func autoSaveLoop(ctx context.Context, interval time.Duration, orch *orchestrator.Orchestrator, reg *registry.Registry, store storage.Storage, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveGame(ctx, orch, reg, store, log)
		}
	}
}

func saveGame(ctx context.Context, orch *orchestrator.Orchestrator, reg *registry.Registry, store storage.Storage, log *slog.Logger) {
	game := &storage.SavedGame{
		GameID:       orch.GameID(),
		World:        orch.World().Snapshot(),
		Participants: reg.Participants(),
		Memory:       orch.Memory().Snapshot(),
	}
	if err := store.SaveGame(ctx, game); err != nil {
		log.Error("Auto-save failed", "error", err)
		return
	}
	log.Debug("Game saved", "game_id", game.GameID)
}
