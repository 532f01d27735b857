package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

func TestSessionCreate(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions", createSessionRequest{PersonaID: persona.IDCoder})
	require.Equal(t, http.StatusCreated, rec.Code)

	sess := decodeJSON[store.Session](t, rec)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, persona.IDCoder, sess.PersonaID)
	assert.Equal(t, store.DefaultTitle, sess.Title)
	assert.Empty(t, sess.Messages)
}

func TestSessionCreate_UnknownPersona(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions", createSessionRequest{PersonaID: "NOPE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON[ErrorResponse](t, rec)
	assert.Equal(t, "unknown_persona", body.Error)
}

func TestSessionCreate_MalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionList(t *testing.T) {
	ts := newTestServer(t, nil)

	first := ts.store.CreateSession(persona.IDFlagship)
	second := ts.store.CreateSession(persona.IDTeacher)

	rec := ts.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[struct {
		Sessions []sessionSummary `json:"sessions"`
		Active   string           `json:"active"`
	}](t, rec)

	require.Len(t, body.Sessions, 2)
	assert.Equal(t, second.ID, body.Sessions[0].ID)
	assert.Equal(t, first.ID, body.Sessions[1].ID)
	assert.Equal(t, second.ID, body.Active)
	assert.Zero(t, body.Sessions[0].MessageCount)
}

func TestSessionGet(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.store.CreateSession(persona.IDFlagship)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeJSON[store.Session](t, rec)
	assert.Equal(t, sess.ID, got.ID)

	rec = ts.do(t, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.store.CreateSession(persona.IDFlagship)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := ts.store.Session(sess.ID)
	assert.False(t, ok)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionClear(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.store.CreateSession(persona.IDFlagship)
	ts.store.UpdateSession(sess.ID, func(s store.Session) store.Session {
		s.Messages = append(s.Messages, store.Message{
			ID:   "m1",
			Role: store.RoleUser,
			Parts: []store.Part{
				{Text: "مرحبا"},
			},
		})
		return s
	})

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/clear", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, ok := ts.store.Session(sess.ID)
	require.True(t, ok)
	assert.Empty(t, got.Messages)

	rec = ts.do(t, http.MethodPost, "/api/sessions/missing/clear", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[settingsJSON](t, rec)
	assert.Empty(t, got.DisplayName)
	assert.False(t, got.NotificationsEnabled)

	rec = ts.do(t, http.MethodPut, "/api/settings", settingsJSON{
		DisplayName:          "حمزة",
		NotificationsEnabled: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeJSON[settingsJSON](t, rec)
	assert.Equal(t, "حمزة", got.DisplayName)
	assert.True(t, got.NotificationsEnabled)

	assert.Equal(t, "حمزة", ts.store.DisplayName())
	assert.True(t, ts.store.NotificationsEnabled())
}
