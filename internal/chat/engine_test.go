package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
	"github.com/hamzamsaid/hamzawi/internal/testutil"
)

type engineFixture struct {
	store  *store.Store
	gen    *testutil.MockGenerator
	engine *chat.Engine
}

func newEngineFixture(t *testing.T, gen *testutil.MockGenerator) *engineFixture {
	t.Helper()

	s, err := store.Open(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	e, err := chat.New(chat.Config{
		Store:                 s,
		Generator:             gen,
		Logger:                log.NewNop(),
		VideoPollInitialDelay: time.Millisecond,
		VideoPollInterval:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("chat.New() error = %v", err)
	}
	t.Cleanup(e.Close)

	return &engineFixture{store: s, gen: gen, engine: e}
}

// waitForIdle polls until the session returns to idle.
func (f *engineFixture) waitForIdle(t *testing.T, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.engine.State(sessionID) == chat.StateIdle {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session %s never returned to idle", sessionID)
}

func TestSendStreamedScenario(t *testing.T) {
	chunks := []string{"الطقس ", "اليوم ", "مشمس"}
	f := newEngineFixture(t, &testutil.MockGenerator{Chunks: chunks})
	sess := f.store.CreateSession(persona.IDFlagship)

	// Record every intermediate placeholder text the store sees.
	var mu sync.Mutex
	var reveals []string
	f.store.Subscribe(func() {
		got, ok := f.store.Session(sess.ID)
		if !ok || len(got.Messages) != 2 {
			return
		}
		mu.Lock()
		reveals = append(reveals, got.Messages[1].Parts[0].Text)
		mu.Unlock()
	})

	var states []chat.LoadingState
	f.engine.Subscribe(func() {
		mu.Lock()
		states = append(states, f.engine.State(sess.ID))
		mu.Unlock()
	})

	err := f.engine.Send(context.Background(), sess.ID, "كيف الطقس اليوم؟", nil, chat.SendOptions{Mode: chat.ModeChat})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, _ := f.store.Session(sess.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want user + model", len(got.Messages))
	}
	if got.Messages[0].Role != store.RoleUser || got.Messages[0].Parts[0].Text != "كيف الطقس اليوم؟" {
		t.Errorf("user message = %+v", got.Messages[0])
	}
	want := strings.Join(chunks, "")
	if got.Messages[1].Parts[0].Text != want {
		t.Errorf("model text = %q, want %q", got.Messages[1].Parts[0].Text, want)
	}

	// Progressive reveal: each observed text is a prefix of the final
	// reply and texts only grow.
	mu.Lock()
	defer mu.Unlock()
	prev := ""
	for _, text := range reveals {
		if !strings.HasPrefix(want, text) {
			t.Errorf("intermediate text %q is not a prefix of %q", text, want)
		}
		if len(text) < len(prev) {
			t.Errorf("intermediate text shrank: %q after %q", text, prev)
		}
		prev = text
	}

	sawStreaming := false
	for _, st := range states {
		if st == chat.StateStreaming {
			sawStreaming = true
		}
	}
	if !sawStreaming {
		t.Error("engine never reported STREAMING")
	}
	if f.engine.State(sess.ID) != chat.StateIdle {
		t.Errorf("final state = %v, want idle", f.engine.State(sess.ID))
	}
	if f.engine.LastError(sess.ID) != "" {
		t.Errorf("LastError = %q, want empty", f.engine.LastError(sess.ID))
	}
}

func TestSendRollbackOnStreamFailure(t *testing.T) {
	f := newEngineFixture(t, &testutil.MockGenerator{
		Chunks:          []string{"جزء ", "آخر"},
		StreamErr:       errors.New("connection reset"),
		FailAfterChunks: 1,
	})
	sess := f.store.CreateSession(persona.IDFlagship)

	err := f.engine.Send(context.Background(), sess.ID, "مرحبا", nil, chat.SendOptions{Mode: chat.ModeChat})
	if err == nil {
		t.Fatal("Send() = nil, want error")
	}

	got, _ := f.store.Session(sess.ID)
	if len(got.Messages) != 0 {
		t.Errorf("messages after rollback = %d, want 0", len(got.Messages))
	}
	if f.engine.LastError(sess.ID) != "connection reset" {
		t.Errorf("LastError = %q, want %q", f.engine.LastError(sess.ID), "connection reset")
	}
	if f.engine.State(sess.ID) != chat.StateIdle {
		t.Errorf("state = %v, want idle", f.engine.State(sess.ID))
	}
}

func TestSendClearsPreviousError(t *testing.T) {
	gen := &testutil.MockGenerator{Chunks: []string{"تم"}}
	f := newEngineFixture(t, gen)
	sess := f.store.CreateSession(persona.IDFlagship)

	gen.StreamErr = errors.New("boom")
	_ = f.engine.Send(context.Background(), sess.ID, "أ", nil, chat.SendOptions{Mode: chat.ModeChat})
	if f.engine.LastError(sess.ID) == "" {
		t.Fatal("expected recorded error")
	}

	gen.StreamErr = nil
	if err := f.engine.Send(context.Background(), sess.ID, "ب", nil, chat.SendOptions{Mode: chat.ModeChat}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if f.engine.LastError(sess.ID) != "" {
		t.Errorf("LastError = %q, want cleared", f.engine.LastError(sess.ID))
	}
}

func TestSendUnknownSession(t *testing.T) {
	f := newEngineFixture(t, &testutil.MockGenerator{})

	err := f.engine.Send(context.Background(), "missing", "مرحبا", nil, chat.SendOptions{Mode: chat.ModeChat})
	if !errors.Is(err, chat.ErrUnknownSession) {
		t.Errorf("Send() error = %v, want ErrUnknownSession", err)
	}
	if calls := f.gen.Calls(); len(calls) != 0 {
		t.Errorf("adapter calls = %v, want none", calls)
	}
}

func TestSendBusySession(t *testing.T) {
	// A pending video keeps the session in LOADING; the poll interval
	// is long enough that the state holds while we probe.
	s, err := store.Open(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	gen := &testutil.MockGenerator{PendingPolls: 1000}
	e, err := chat.New(chat.Config{
		Store:                 s,
		Generator:             gen,
		Logger:                log.NewNop(),
		VideoPollInitialDelay: time.Hour,
		VideoPollInterval:     time.Hour,
	})
	if err != nil {
		t.Fatalf("chat.New() error = %v", err)
	}
	t.Cleanup(e.Close)

	sess := s.CreateSession(persona.IDFlagship)
	if err := e.Send(context.Background(), sess.ID, "فيديو", nil, chat.SendOptions{Mode: chat.ModeVideo}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if e.State(sess.ID) != chat.StateLoading {
		t.Fatalf("state = %v, want LOADING", e.State(sess.ID))
	}

	before := len(gen.Calls())
	err = e.Send(context.Background(), sess.ID, "ثاني", nil, chat.SendOptions{Mode: chat.ModeChat})
	if !errors.Is(err, chat.ErrBusy) {
		t.Errorf("Send() while busy = %v, want ErrBusy", err)
	}
	if got := len(gen.Calls()); got != before {
		t.Errorf("adapter calls during busy send: %d new", got-before)
	}
}

func TestSendImage(t *testing.T) {
	imagePart := store.Part{ImageData: []byte{0xFF, 0xD8}, ImageMIME: "image/jpeg"}
	f := newEngineFixture(t, &testutil.MockGenerator{ImageParts: []store.Part{imagePart}})
	sess := f.store.CreateSession(persona.IDFlagship)

	err := f.engine.Send(context.Background(), sess.ID, "ارسم قطة", nil, chat.SendOptions{Mode: chat.ModeImage})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, _ := f.store.Session(sess.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	model := got.Messages[1]
	if len(model.Parts) != 1 || string(model.Parts[0].ImageData) != string(imagePart.ImageData) {
		t.Errorf("model parts = %+v, want generated image", model.Parts)
	}
}

func TestSendImageRollback(t *testing.T) {
	f := newEngineFixture(t, &testutil.MockGenerator{ImageErr: errors.New("safety block")})
	sess := f.store.CreateSession(persona.IDFlagship)

	if err := f.engine.Send(context.Background(), sess.ID, "ارسم", nil, chat.SendOptions{Mode: chat.ModeImage}); err == nil {
		t.Fatal("Send() = nil, want error")
	}

	got, _ := f.store.Session(sess.ID)
	if len(got.Messages) != 0 {
		t.Errorf("messages after rollback = %d, want 0", len(got.Messages))
	}
}

func TestSendSearchAttachesCitations(t *testing.T) {
	citations := []store.Citation{{URI: "https://example.com", Title: "مثال"}}
	gen := &testutil.MockGenerator{SearchText: "إجابة موثقة", Citations: citations}
	f := newEngineFixture(t, gen)
	sess := f.store.CreateSession(persona.IDFlagship)

	err := f.engine.Send(context.Background(), sess.ID, "ابحث", nil,
		chat.SendOptions{Mode: chat.ModeChat, UseSearch: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, _ := f.store.Session(sess.ID)
	model := got.Messages[1]
	if model.Parts[0].Text != "إجابة موثقة" {
		t.Errorf("model text = %q", model.Parts[0].Text)
	}
	if len(model.Grounding) != 1 || model.Grounding[0].URI != "https://example.com" {
		t.Errorf("grounding = %+v, want citations", model.Grounding)
	}
	// The search path is stateless: no chat handle involved.
	for _, call := range gen.Calls() {
		if call == "Chat" || call == "SendStream" || call == "Send" {
			t.Errorf("search send used chat handle call %q", call)
		}
	}
}

func TestSendDeepThinkingIsOneShot(t *testing.T) {
	gen := &testutil.MockGenerator{Chunks: []string{"إجابة ", "متأنية"}}
	f := newEngineFixture(t, gen)
	sess := f.store.CreateSession(persona.IDFlagship)

	err := f.engine.Send(context.Background(), sess.ID, "فكر جيدا", nil,
		chat.SendOptions{Mode: chat.ModeChat, UseDeepThinking: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gen.CallCount("Send") != 1 || gen.CallCount("SendStream") != 0 {
		t.Errorf("calls = %v, want one Send and no SendStream", gen.Calls())
	}
	got, _ := f.store.Session(sess.ID)
	if got.Messages[1].Parts[0].Text != "إجابة متأنية" {
		t.Errorf("model text = %q", got.Messages[1].Parts[0].Text)
	}
}

func TestSystemPromptCarriesLanguageAndName(t *testing.T) {
	gen := &testutil.MockGenerator{Chunks: []string{"رد"}}

	s, err := store.Open(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	s.SetDisplayName("حمزة")

	e, err := chat.New(chat.Config{
		Store:     s,
		Generator: gen,
		Logger:    log.NewNop(),
		Language:  "العربية الفصحى",
	})
	if err != nil {
		t.Fatalf("chat.New() error = %v", err)
	}
	t.Cleanup(e.Close)

	sess := s.CreateSession(persona.IDFlagship)
	if err := e.Send(context.Background(), sess.ID, "مرحبا", nil, chat.SendOptions{Mode: chat.ModeChat}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	prompts := gen.SystemPrompts()
	if len(prompts) == 0 {
		t.Fatal("no system prompt recorded")
	}
	if !strings.Contains(prompts[0], "العربية الفصحى") {
		t.Errorf("system prompt missing language directive: %q", prompts[0])
	}
	if !strings.Contains(prompts[0], "حمزة") {
		t.Errorf("system prompt missing display name: %q", prompts[0])
	}
}

func TestPersonaSurvivesNewSessions(t *testing.T) {
	f := newEngineFixture(t, &testutil.MockGenerator{Chunks: []string{"رد"}})

	first := f.store.CreateSession(persona.IDCoder)
	second := f.store.CreateSession(persona.IDTeacher)

	if err := f.engine.Send(context.Background(), second.ID, "مرحبا", nil, chat.SendOptions{Mode: chat.ModeChat}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	gotFirst, _ := f.store.Session(first.ID)
	if gotFirst.PersonaID != persona.IDCoder {
		t.Errorf("first session persona = %q, want unchanged %q", gotFirst.PersonaID, persona.IDCoder)
	}
	gotSecond, _ := f.store.Session(second.ID)
	if gotSecond.Messages[0].PersonaID != persona.IDTeacher {
		t.Errorf("message persona = %q, want %q", gotSecond.Messages[0].PersonaID, persona.IDTeacher)
	}
}
