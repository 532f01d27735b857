package cmd

import (
	"testing"

	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDeleteSession(t *testing.T) {
	st := newTestStore(t)
	sess := st.CreateSession(persona.IDFlagship)

	if err := deleteSession(st, sess.ID); err != nil {
		t.Fatalf("deleteSession: %v", err)
	}
	if _, ok := st.Session(sess.ID); ok {
		t.Error("session still present after delete")
	}

	if err := deleteSession(st, sess.ID); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestClearSession(t *testing.T) {
	st := newTestStore(t)
	sess := st.CreateSession(persona.IDFlagship)
	st.UpdateSession(sess.ID, func(s store.Session) store.Session {
		s.Messages = append(s.Messages, store.Message{
			ID:    "m1",
			Role:  store.RoleUser,
			Parts: []store.Part{{Text: "مرحبا"}},
		})
		return s
	})

	if err := clearSession(st, sess.ID); err != nil {
		t.Fatalf("clearSession: %v", err)
	}
	got, _ := st.Session(sess.ID)
	if len(got.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(got.Messages))
	}

	if err := clearSession(st, "missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestRunSessions_Usage(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}

	if err := runSessions(cfg, log.NewNop(), nil); err == nil {
		t.Error("expected usage error for no subcommand")
	}
	if err := runSessions(cfg, log.NewNop(), []string{"bogus"}); err == nil {
		t.Error("expected error for unknown subcommand")
	}
	if err := runSessions(cfg, log.NewNop(), []string{"delete"}); err == nil {
		t.Error("expected usage error for delete without ID")
	}
}
