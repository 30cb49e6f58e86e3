package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/storage"
)

// SheetsHandler serves character sheets and assigns them to players.
// GET  /v1/sheets          list available sheet ids
// POST /v1/sheets/assign   {session_id, sheet_id}
type SheetsHandler struct {
	registry *registry.Registry
	library  *storage.SheetLibrary
	logger   *slog.Logger
}

func NewSheetsHandler(reg *registry.Registry, library *storage.SheetLibrary, logger *slog.Logger) *SheetsHandler {
	return &SheetsHandler{
		registry: reg,
		library:  library,
		logger:   logger,
	}
}

type AssignSheetRequest struct {
	SessionID string `json:"session_id"`
	SheetID   string `json:"sheet_id"`
}

type AssignSheetResponse struct {
	Name    string `json:"name"`
	SheetID string `json:"sheet_id"`
	Class   string `json:"class,omitempty"`
	HP      int    `json:"hp"`
	AC      int    `json:"ac"`
}

func (h *SheetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/sheets" && r.Method == http.MethodGet:
		h.handleList(w)
	case r.URL.Path == "/v1/sheets/assign" && r.Method == http.MethodPost:
		h.handleAssign(w, r)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SheetsHandler) handleList(w http.ResponseWriter) {
	ids, err := h.library.ListSheets()
	if err != nil {
		h.logger.Error("Failed to list sheets", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list sheets.")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string][]string{"sheets": ids})
}

func (h *SheetsHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignSheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body.")
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format.")
		return
	}

	session, ok := h.registry.Session(sessionID)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Session not found.")
		return
	}
	p := session.Participant()
	if p == nil {
		writeError(w, h.logger, http.StatusConflict, "Session has no bound identity yet.")
		return
	}

	sheet, err := h.library.GetSheet(req.SheetID)
	if err != nil {
		h.logger.Warn("Failed to load sheet", "sheet_id", req.SheetID, "error", err)
		writeError(w, h.logger, http.StatusNotFound, "Sheet not found.")
		return
	}
	if err := h.registry.AssignSheet(p.Name, sheet); err != nil {
		writeError(w, h.logger, http.StatusNotFound, "Participant not found.")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, AssignSheetResponse{
		Name:    p.Name,
		SheetID: req.SheetID,
		Class:   sheet.Spec.Class,
		HP:      sheet.Actor.HP(),
		AC:      sheet.Actor.AC(),
	})
}
