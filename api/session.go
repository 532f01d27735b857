package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// sessionSummary is the list-view shape of a session. Messages are only
// returned from the single-session endpoint.
type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PersonaID    string    `json:"personaId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

type createSessionRequest struct {
	PersonaID string `json:"personaId"`
}

type sessionHandler struct {
	store    *store.Store
	engine   *chat.Engine
	personas *persona.Registry
	logger   log.Logger
}

func newSessionHandler(s *store.Store, e *chat.Engine, p *persona.Registry, logger log.Logger) *sessionHandler {
	return &sessionHandler{store: s, engine: e, personas: p, logger: logger}
}

func (h *sessionHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("POST /api/sessions/{id}/clear", h.clear)
}

func (h *sessionHandler) list(w http.ResponseWriter, _ *http.Request) {
	sessions := h.store.Sessions()
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			PersonaID:    s.PersonaID,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: len(s.Messages),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": out,
		"active":   h.store.ActiveSessionID(),
	})
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if _, ok := h.personas.Get(req.PersonaID); !ok {
		writeError(w, http.StatusBadRequest, "unknown_persona", "no persona with ID "+req.PersonaID)
		return
	}

	sess := h.store.CreateSession(req.PersonaID)
	h.logger.Info("session created", "session_id", sess.ID, "persona", sess.PersonaID)
	writeJSON(w, http.StatusCreated, sess)
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.store.Session(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_session", "")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.store.Session(id); !ok {
		writeError(w, http.StatusNotFound, "unknown_session", "")
		return
	}

	// Stop any in-flight video poll before the session disappears.
	h.engine.CancelSession(id)
	h.store.DeleteSession(id)
	h.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.store.Session(id); !ok {
		writeError(w, http.StatusNotFound, "unknown_session", "")
		return
	}

	h.engine.CancelSession(id)
	h.store.ClearMessages(id)
	w.WriteHeader(http.StatusNoContent)
}
