package api

import (
	"net/http"

	"github.com/hamzamsaid/hamzawi/internal/persona"
)

// personaJSON is the wire shape of a persona. The system prompt stays
// server-side.
type personaJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
	Theme   string `json:"theme"`
	Custom  bool   `json:"custom"`
}

type personaHandler struct {
	registry *persona.Registry
}

func newPersonaHandler(r *persona.Registry) *personaHandler {
	return &personaHandler{registry: r}
}

func (h *personaHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/personas", h.list)
}

func (h *personaHandler) list(w http.ResponseWriter, _ *http.Request) {
	all := h.registry.All()
	out := make([]personaJSON, 0, len(all))
	for _, p := range all {
		out = append(out, personaJSON{
			ID:      p.ID,
			Name:    p.Name,
			Tagline: p.Tagline,
			Theme:   p.Theme,
			Custom:  p.Custom,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": out})
}
