// Package tui provides the Bubble Tea terminal interface for Hamzawi.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Request in flight, nothing streamed yet
	StateStreaming              // Streaming response text
	StatePersonas               // Persona picker overlay
	StateSessions               // Session picker overlay
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 200 // Maximum messages kept for display
	maxHistory  = 100 // Maximum input history entries
)

// sendTimeout bounds a single generation. Video waits can legitimately
// run for minutes.
const sendTimeout = 10 * time.Minute

// Message roles for display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Above and below input
	helpLines      = 1
	promptLines    = 1
	statusLines    = 1 // Persona and mode status bar
	minViewport    = 3
)

// Message is a conversation entry prepared for display.
type Message struct {
	Role      string // "user", "assistant", "system", "error"
	Text      string
	Citations []store.Citation
	MediaNote string // e.g. a saved-file placard for images and videos
}

// Config wires a Model.
type Config struct {
	Engine   *chat.Engine
	Store    *store.Store
	Personas *persona.Registry
	Logger   log.Logger

	// MediaDir receives generated images and videos; the chat shows a
	// placard with the saved path.
	MediaDir string
}

// Model is the Bubble Tea model for the Hamzawi terminal interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time

	// Generation mode. Search and deep thinking only apply to chat
	// mode; enabling one clears the other.
	mode            chat.Mode
	useSearch       bool
	useDeepThinking bool

	// Picker overlays
	pickerIdx    int
	pickerItems  []pickerItem
	prevState    State
	sessionID    string
	sessionTitle string

	// Output
	spinner    spinner.Model
	output     strings.Builder
	viewBuf    strings.Builder
	sendStatus string // transient status line while a send is in flight
	messages   []Message

	viewport viewport.Model

	help help.Model
	keys keyMap

	// Send lifecycle. The union channel carries chunks, completion and
	// errors; Bubble Tea's event loop provides the synchronization.
	sendCancel  context.CancelFunc
	sendEventCh <-chan sendEvent

	engine   *chat.Engine
	store    *store.Store
	personas *persona.Registry
	logger   log.Logger
	mediaDir string

	ctx       context.Context
	ctxCancel context.CancelFunc

	width  int
	height int

	styles   Styles
	markdown *markdownRenderer
}

// pickerItem is one row in the persona or session picker.
type pickerItem struct {
	id    string
	label string
}

// addMessage appends a display message and enforces maxMessages.
func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// New creates a Model bound to the active session, creating one if the
// store is empty.
//
// ctx must be the same context passed to tea.WithContext so that
// cancellation is consistent.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Engine == nil {
		return nil, errors.New("tui.New: engine is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("tui.New: store is required")
	}
	if cfg.Personas == nil {
		return nil, errors.New("tui.New: personas are required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "اكتب رسالتك..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Keys are routed explicitly in handleKey; the viewport's own
	// bindings would conflict with textarea and history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	m := &Model{
		engine:    cfg.Engine,
		store:     cfg.Store,
		personas:  cfg.Personas,
		logger:    cfg.Logger,
		mediaDir:  cfg.MediaDir,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      help.New(),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		mode:      chat.ModeChat,
		history:   make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80,
	}

	if id := cfg.Store.ActiveSessionID(); id != "" {
		m.loadSession(id)
	}
	if m.sessionID == "" {
		sess := cfg.Store.CreateSession(persona.IDFlagship)
		m.sessionID = sess.ID
		m.sessionTitle = sess.Title
	}

	return m, nil
}

// loadSession switches the display to the given session and rebuilds
// the message list from the store.
func (m *Model) loadSession(id string) {
	sess, ok := m.store.Session(id)
	if !ok {
		return
	}
	m.sessionID = sess.ID
	m.sessionTitle = sess.Title
	m.store.SetActive(sess.ID)

	m.messages = m.messages[:0]
	for _, msg := range sess.Messages {
		m.addMessage(displayMessage(msg))
	}
}

// displayMessage converts a stored message for terminal display.
// Inline media cannot render in a terminal; a placard stands in.
func displayMessage(msg store.Message) Message {
	out := Message{Citations: msg.Grounding}
	if msg.Role == store.RoleUser {
		out.Role = roleUser
	} else {
		out.Role = roleAssistant
	}

	var text strings.Builder
	for _, p := range msg.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if len(p.ImageData) > 0 {
			out.MediaNote = "[صورة]"
		}
		if len(p.VideoData) > 0 {
			out.MediaNote = "[فيديو]"
		}
	}
	out.Text = text.String()
	return out
}

// sessionPersonaName resolves the display name of the current
// session's persona.
func (m *Model) sessionPersonaName() string {
	sess, ok := m.store.Session(m.sessionID)
	if !ok {
		return m.personas.Fallback().Name
	}
	p, ok := m.personas.Get(sess.PersonaID)
	if !ok {
		p = m.personas.Fallback()
	}
	return p.Name
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}
