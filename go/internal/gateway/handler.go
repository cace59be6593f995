// Package gateway serves participants over WebSockets. Each connection runs
// its own controller against the shared store, so the two participants of a
// session may be served by different processes.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/roles"
	"github.com/mcdev12/quizduel/go/internal/sessions"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleSessionConnection serves /ws/session?code=&participant=. The
// participant must already hold a seat.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	code := sessions.NormalizeCode(r.URL.Query().Get("code"))
	participantID := r.URL.Query().Get("participant")
	if code == "" || participantID == "" {
		http.Error(w, "code and participant are required", http.StatusBadRequest)
		return
	}

	sess, err := h.connectionManager.deps.Store.Get(r.Context(), code)
	if errors.Is(err, store.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", code).Msg("failed to load session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	role, ok := roles.RoleOf(sess, participantID)
	if !ok {
		http.Error(w, "participant has not claimed a seat", http.StatusForbidden)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, code, participantID, role); err != nil {
		// The upgrader has already written the response.
		log.Error().
			Err(err).
			Str("session_id", code).
			Str("participant_id", participantID).
			Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
