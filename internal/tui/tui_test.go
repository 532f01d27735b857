package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/goleak"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
	"github.com/hamzamsaid/hamzawi/internal/testutil"
)

// goleakOptions filters goroutines that outlive individual tests by
// design: the sql package's connection pool workers.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionCleaner"),
	}
}

// newTestModel builds a Model against a real store and engine with a
// scripted generator.
func newTestModel(t *testing.T, gen *testutil.MockGenerator) *Model {
	t.Helper()

	if gen == nil {
		gen = &testutil.MockGenerator{}
	}

	st, err := store.Open(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine, err := chat.New(chat.Config{
		Store:                 st,
		Generator:             gen,
		Logger:                log.NewNop(),
		VideoPollInitialDelay: time.Millisecond,
		VideoPollInterval:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	t.Cleanup(engine.Close)

	reg, err := persona.New(nil)
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}

	m, err := New(context.Background(), Config{
		Engine:   engine,
		Store:    st,
		Personas: reg,
		Logger:   log.NewNop(),
		MediaDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("creating model: %v", err)
	}
	t.Cleanup(func() {
		if m.ctxCancel != nil {
			m.ctxCancel()
		}
	})
	return m
}

// driveSend pumps the send lifecycle until completion or error,
// returning the terminal message.
func driveSend(t *testing.T, m *Model, cmd tea.Cmd) tea.Msg {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for cmd != nil {
		select {
		case <-deadline:
			t.Fatal("send did not complete")
		default:
		}

		msg := cmd()
		if msg == nil {
			return nil
		}
		switch msg.(type) {
		case sendDoneMsg, sendErrorMsg:
			return msg
		}
		var model tea.Model
		model, cmd = m.Update(msg)
		m = model.(*Model)
	}
	return nil
}

// submitCmd extracts the startSend command from the batch returned by
// handleSubmit by running each sub-command until sendStartedMsg shows.
func submit(t *testing.T, m *Model, prompt string) tea.Msg {
	t.Helper()

	m.input.SetValue(prompt)
	_, _ = m.handleSubmit()
	if m.state != StateThinking {
		t.Fatalf("state after submit = %v, want StateThinking", m.state)
	}

	startMsg := m.startSend(prompt)()
	started, ok := startMsg.(sendStartedMsg)
	if !ok {
		t.Fatalf("startSend returned %T, want sendStartedMsg", startMsg)
	}
	model, cmd := m.Update(started)
	return driveSend(t, model.(*Model), cmd)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error for missing engine")
	}
}

func TestNew_CreatesSessionWhenStoreEmpty(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	if m.sessionID == "" {
		t.Error("expected a session to be created")
	}
	if m.sessionTitle != store.DefaultTitle {
		t.Errorf("title = %q, want %q", m.sessionTitle, store.DefaultTitle)
	}
}

func TestModel_Init(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	if m.Init() == nil {
		t.Error("Init should return a command")
	}
}

func TestSubmitStreamsReply(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, &testutil.MockGenerator{
		Chunks: []string{"مرحبا ", "بك"},
	})

	msg := submit(t, m, "أهلا")
	done, ok := msg.(sendDoneMsg)
	if !ok {
		t.Fatalf("got %T, want sendDoneMsg", msg)
	}

	model, _ := m.Update(done)
	result := model.(*Model)

	if result.state != StateInput {
		t.Errorf("state = %v, want StateInput", result.state)
	}
	last := result.messages[len(result.messages)-1]
	if last.Role != roleAssistant {
		t.Errorf("last role = %q, want assistant", last.Role)
	}
	if last.Text != "مرحبا بك" {
		t.Errorf("last text = %q, want full reply", last.Text)
	}

	result.engine.Close()
	result.store.Close()
}

func TestSubmitSurfacesGenerationError(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, &testutil.MockGenerator{
		ChatErr: context.DeadlineExceeded,
	})

	msg := submit(t, m, "أهلا")
	errMsg, ok := msg.(sendErrorMsg)
	if !ok {
		t.Fatalf("got %T, want sendErrorMsg", msg)
	}

	model, _ := m.Update(errMsg)
	result := model.(*Model)

	if result.state != StateInput {
		t.Errorf("state = %v, want StateInput", result.state)
	}
	last := result.messages[len(result.messages)-1]
	if last.Role != roleError {
		t.Errorf("last role = %q, want error", last.Role)
	}

	result.engine.Close()
	result.store.Close()
}

func TestSearchReplyShowsCitations(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, &testutil.MockGenerator{
		SearchText: "إجابة",
		Citations:  []store.Citation{{URI: "https://example.com", Title: "مثال"}},
	})
	m.useSearch = true

	msg := submit(t, m, "ما الأخبار؟")
	done, ok := msg.(sendDoneMsg)
	if !ok {
		t.Fatalf("got %T, want sendDoneMsg", msg)
	}
	if len(done.result.citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(done.result.citations))
	}

	model, _ := m.Update(done)
	result := model.(*Model)
	result.rebuildViewportContent()

	last := result.messages[len(result.messages)-1]
	if len(last.Citations) != 1 || last.Citations[0].URI != "https://example.com" {
		t.Errorf("citations not carried to display message: %+v", last.Citations)
	}

	result.engine.Close()
	result.store.Close()
}

func TestImageReplySavesMedia(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, &testutil.MockGenerator{
		ImageParts: []store.Part{{ImageData: []byte{0xFF, 0xD8}, ImageMIME: "image/jpeg"}},
	})
	m.mode = chat.ModeImage

	msg := submit(t, m, "قطة")
	done, ok := msg.(sendDoneMsg)
	if !ok {
		t.Fatalf("got %T, want sendDoneMsg", msg)
	}
	if !strings.Contains(done.result.mediaNote, "صورة") {
		t.Errorf("media note = %q, want saved-image placard", done.result.mediaNote)
	}
	if !strings.Contains(done.result.mediaNote, m.mediaDir) {
		t.Errorf("media note %q does not reference media dir", done.result.mediaNote)
	}

	m.engine.Close()
	m.store.Close()
}

func TestSlashCommands(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tests := []struct {
		name     string
		cmd      string
		wantExit bool
		wantMsgs int
	}{
		{"help", cmdHelp, false, 1},
		{"clear", cmdClear, false, 0},
		{"exit", cmdExit, true, 0},
		{"quit", cmdQuit, true, 0},
		{"unknown", "/unknown", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, nil)
			m.messages = []Message{{Role: roleUser, Text: "hello"}}

			model, cmd := m.handleSlashCommand(tt.cmd)
			result := model.(*Model)

			if tt.wantExit {
				if cmd == nil {
					t.Error("expected quit command")
				}
				return
			}
			if tt.cmd == cmdClear {
				if len(result.messages) != 0 {
					t.Error("clear should empty messages")
				}
				return
			}
			if len(result.messages) != 1+tt.wantMsgs {
				t.Errorf("messages = %d, want %d", len(result.messages), 1+tt.wantMsgs)
			}
		})
	}
}

func TestModeToggles(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)

	m.setMode(chat.ModeImage)
	if m.mode != chat.ModeImage {
		t.Errorf("mode = %v, want image", m.mode)
	}

	// Selecting the active mode switches back to chat.
	m.setMode(chat.ModeImage)
	if m.mode != chat.ModeChat {
		t.Errorf("mode = %v, want chat", m.mode)
	}

	// Search clears deep thinking and forces chat mode.
	m.setMode(chat.ModeVideo)
	m.useDeepThinking = true
	m.toggleSearch()
	if !m.useSearch || m.useDeepThinking || m.mode != chat.ModeChat {
		t.Errorf("search toggle: search=%v think=%v mode=%v", m.useSearch, m.useDeepThinking, m.mode)
	}

	m.toggleThink()
	if m.useSearch || !m.useDeepThinking {
		t.Errorf("think toggle: search=%v think=%v", m.useSearch, m.useDeepThinking)
	}
}

func TestHistoryNavigation(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	m.history = []string{"first", "second", "third"}
	m.historyIdx = 3

	tests := []struct {
		delta    int
		expected string
	}{
		{-1, "third"},
		{-1, "second"},
		{-1, "first"},
		{-1, "first"},
		{1, "second"},
		{1, "third"},
		{1, ""},
		{1, ""},
	}

	for i, tt := range tests {
		model, _ := m.navigateHistory(tt.delta)
		m = model.(*Model)
		if m.input.Value() != tt.expected {
			t.Errorf("step %d: got %q, want %q", i, m.input.Value(), tt.expected)
		}
	}
}

func TestPersonaPickerCreatesSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	before := m.sessionID

	m.openPersonaPicker()
	if m.state != StatePersonas {
		t.Fatalf("state = %v, want StatePersonas", m.state)
	}
	if len(m.pickerItems) != len(persona.Default()) {
		t.Fatalf("picker items = %d, want %d", len(m.pickerItems), len(persona.Default()))
	}

	// Move to the coder persona and select it.
	for i, item := range m.pickerItems {
		if item.id == persona.IDCoder {
			m.pickerIdx = i
		}
	}
	model, _ := m.handlePickerKey(tea.Key{Code: tea.KeyEnter})
	result := model.(*Model)

	if result.state != StateInput {
		t.Errorf("state = %v, want StateInput", result.state)
	}
	if result.sessionID == before {
		t.Error("expected a new session")
	}
	sess, ok := result.store.Session(result.sessionID)
	if !ok || sess.PersonaID != persona.IDCoder {
		t.Errorf("new session persona = %q, want %q", sess.PersonaID, persona.IDCoder)
	}
}

func TestSessionPickerSwitches(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	first := m.sessionID
	m.startNewSession(persona.IDTeacher)

	m.openSessionPicker()
	if m.state != StateSessions {
		t.Fatalf("state = %v, want StateSessions", m.state)
	}

	for i, item := range m.pickerItems {
		if item.id == first {
			m.pickerIdx = i
		}
	}
	model, _ := m.handlePickerKey(tea.Key{Code: tea.KeyEnter})
	result := model.(*Model)

	if result.sessionID != first {
		t.Errorf("sessionID = %q, want %q", result.sessionID, first)
	}
	if result.store.ActiveSessionID() != first {
		t.Error("store active session not updated")
	}
}

func TestCtrlC_ClearsInputThenQuits(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	m.input.SetValue("some input")

	model, _ := m.handleCtrlC()
	result := model.(*Model)
	if result.input.Value() != "" {
		t.Error("first Ctrl+C should clear input")
	}

	result.lastCtrlC = time.Now()
	_, cmd := result.handleCtrlC()
	if cmd == nil {
		t.Error("double Ctrl+C should return quit command")
	}
}

func TestUpdate_KeyPress(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	m.input.SetValue("test")

	msg := tea.KeyPressMsg(tea.Key{Code: 'c', Mod: tea.ModCtrl})
	model, _ := m.Update(msg)
	result := model.(*Model)

	if result.input.Value() != "" {
		t.Error("Ctrl+C should clear input")
	}
}

func TestDisplayMessage(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	msg := store.Message{
		Role: store.RoleModel,
		Parts: []store.Part{
			{Text: "وصف"},
			{ImageData: []byte{1, 2}, ImageMIME: "image/jpeg"},
		},
		Grounding: []store.Citation{{URI: "https://example.com"}},
	}

	got := displayMessage(msg)
	if got.Role != roleAssistant {
		t.Errorf("role = %q, want assistant", got.Role)
	}
	if got.Text != "وصف" {
		t.Errorf("text = %q", got.Text)
	}
	if got.MediaNote == "" {
		t.Error("expected media placard")
	}
	if len(got.Citations) != 1 {
		t.Error("expected citations carried over")
	}
}

func TestView_NotEmpty(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel(t, nil)
	m.rebuildViewportContent()

	view := m.View()
	if view.Content == nil {
		t.Error("view content should not be nil")
	}
}
