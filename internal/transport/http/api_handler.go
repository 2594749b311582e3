package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"quizlive/internal/app"
)

// APIHandler serves the read-only query endpoints and the maintenance hook.
type APIHandler struct {
	engine *app.Engine
	logger *slog.Logger
}

func NewAPIHandler(engine *app.Engine, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{engine: engine, logger: logger}
}

// RoomInfo handles GET /rooms/:room_code/info. Closed rooms read as absent.
func (h *APIHandler) RoomInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	info, ok := h.engine.RoomInfo(ps.ByName("room_code"))
	if !ok || !info.IsActive {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Room not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ValidateRoom handles GET /rooms/:room_code/validate: a cheap existence
// probe clients call before attempting the websocket join.
func (h *APIHandler) ValidateRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("room_code")
	info, ok := h.engine.RoomInfo(code)
	writeJSON(w, http.StatusOK, map[string]any{
		"room_code": code,
		"valid":     ok && info.IsActive,
	})
}

// Leaderboard handles GET /rooms/:room_code/leaderboard: the full roster by
// cumulative score, for end-of-room display.
func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("room_code")
	entries, ok := h.engine.Leaderboard(code)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Room not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_code":   code,
		"leaderboard": entries,
	})
}

// Stats handles GET /stats with a per-room breakdown and the engine counters.
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Health handles GET /health. An error status maps to 503 so load balancers
// can rotate the instance out.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snapshot := h.engine.Health()
	status := http.StatusOK
	if snapshot.Status == app.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snapshot)
}

// Cleanup handles POST /cleanup-sessions, forcing the stale-room sweep.
func (h *APIHandler) Cleanup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	removed := h.engine.CleanupNow()
	writeJSON(w, http.StatusOK, map[string]any{
		"removed_sessions":   removed,
		"remaining_sessions": h.engine.Stats().ActiveSessions,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
