package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/gm-engine/internal/storage"
)

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

// resolverStatus reports whether a resolution pass is currently running.
type resolverStatus interface {
	Busy() bool
}

type HealthHandler struct {
	storage  storage.HealthChecker
	resolver resolverStatus
	logger   *slog.Logger
}

func NewHealthHandler(store storage.HealthChecker, resolver resolverStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage:  store,
		resolver: resolver,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		components["storage"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["storage"] = "healthy"
	}

	// A busy resolver is normal operation, not degradation.
	if h.resolver != nil {
		if h.resolver.Busy() {
			components["resolver"] = "busy"
		} else {
			components["resolver"] = "idle"
		}
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, statusCode, HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "gm-engine",
		Components: components,
	})
}
