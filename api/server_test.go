package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
	"github.com/hamzamsaid/hamzawi/internal/testutil"
)

// testServer builds a server against a real store and engine with a
// scripted generator. Rate limits are effectively disabled; the
// limiter has its own tests.
type testServer struct {
	srv    *Server
	store  *store.Store
	engine *chat.Engine
	gen    *testutil.MockGenerator
}

func newTestServer(t *testing.T, gen *testutil.MockGenerator) *testServer {
	t.Helper()

	if gen == nil {
		gen = &testutil.MockGenerator{}
	}

	st, err := store.Open(t.TempDir(), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine, err := chat.New(chat.Config{
		Store:                 st,
		Generator:             gen,
		Logger:                log.NewNop(),
		VideoPollInitialDelay: time.Millisecond,
		VideoPollInterval:     time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv, err := NewServer(Config{
		Store:             st,
		Engine:            engine,
		Logger:            log.NewNop(),
		RequestsPerSecond: 10000,
		RequestBurst:      10000,
	})
	require.NoError(t, err)

	return &testServer{srv: srv, store: st, engine: engine, gen: gen}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer_RequiresStoreAndEngine(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	st, err := store.Open(t.TempDir(), log.NewNop())
	require.NoError(t, err)
	defer st.Close()

	_, err = NewServer(Config{Store: st})
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestPersonaList(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/personas", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[struct {
		Personas []personaJSON `json:"personas"`
	}](t, rec)

	require.Len(t, body.Personas, len(persona.Default()))
	assert.Equal(t, persona.IDFlagship, body.Personas[0].ID)
	for _, p := range body.Personas {
		assert.NotEmpty(t, p.Name)
	}
}

func TestWebUIServed(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "شات حمزاوي")
}
