package api

import (
	"net/http"

	"github.com/hamzamsaid/hamzawi/internal/store"
)

// healthHandler serves the liveness and readiness probes.
type healthHandler struct {
	store *store.Store
}

func newHealthHandler(s *store.Store) *healthHandler {
	return &healthHandler{store: s}
}

func (h *healthHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness reports that the process is alive.
func (h *healthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness reports whether the session store is usable.
func (h *healthHandler) readiness(w http.ResponseWriter, _ *http.Request) {
	if h.store == nil {
		http.Error(w, "store not configured", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
