package api

import (
	"encoding/json"
	"net/http"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

type settingsJSON struct {
	DisplayName          string `json:"displayName"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

type settingsHandler struct {
	store  *store.Store
	engine *chat.Engine
	logger log.Logger
}

func newSettingsHandler(s *store.Store, e *chat.Engine, logger log.Logger) *settingsHandler {
	return &settingsHandler{store: s, engine: e, logger: logger}
}

func (h *settingsHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/settings", h.get)
	mux.HandleFunc("PUT /api/settings", h.put)
}

func (h *settingsHandler) get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, settingsJSON{
		DisplayName:          h.store.DisplayName(),
		NotificationsEnabled: h.store.NotificationsEnabled(),
	})
}

func (h *settingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var req settingsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	h.store.SetDisplayName(req.DisplayName)
	h.store.SetNotificationsEnabled(req.NotificationsEnabled)

	// The display name is baked into the system instruction, so live
	// chat handles must be rebuilt on the next send.
	h.engine.InvalidateHandles()

	h.logger.Info("settings updated", "notifications", req.NotificationsEnabled)
	h.get(w, r)
}
