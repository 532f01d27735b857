package tui

import (
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/hamzamsaid/hamzawi/internal/chat"
)

// Slash command constants.
const (
	cmdHelp     = "/help"
	cmdClear    = "/clear"
	cmdExit     = "/exit"
	cmdQuit     = "/quit"
	cmdNew      = "/new"
	cmdSessions = "/sessions"
	cmdPersonas = "/personas"
	cmdSearch   = "/search"
	cmdThink    = "/think"
	cmdImage    = "/image"
	cmdVideo    = "/video"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Mode       key.Binding
	Search     key.Binding
	Think      key.Binding
	Personas   key.Binding
	Sessions   key.Binding
	NewSession key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
	PickerNav  key.Binding
	PickerPick key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Mode:       key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "mode")),
		Search:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "search")),
		Think:      key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "think")),
		Personas:   key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "personas")),
		Sessions:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "sessions")),
		NewSession: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		PickerNav:  key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "navigate")),
		PickerPick: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if m.state == StatePersonas || m.state == StateSessions {
		return m.handlePickerKey(k)
	}

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, m.cleanup()
		case 'g':
			if m.state == StateInput {
				m.cycleMode()
			}
			return m, nil
		case 's':
			if m.state == StateInput {
				m.toggleSearch()
			}
			return m, nil
		case 't':
			if m.state == StateInput {
				m.toggleThink()
			}
			return m, nil
		case 'p':
			if m.state == StateInput {
				m.openPersonaPicker()
			}
			return m, nil
		case 'o':
			if m.state == StateInput {
				m.openSessionPicker()
			}
			return m, nil
		case 'n':
			if m.state == StateInput {
				m.startNewSession(m.currentPersonaID())
			}
			return m, nil
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput && k.Mod&tea.ModShift == 0 {
			return m.handleSubmit()
		}

	case tea.KeyUp:
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateHistory(-1)
		}

	case tea.KeyDown:
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateHistory(1)
		}

	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			m.cancelSend()
			m.state = StateInput
			m.output.Reset()
			m.rebuildViewportContent()
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Typing stays available even while the model is responding.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handlePickerKey(k tea.Key) (tea.Model, tea.Cmd) {
	switch k.Code {
	case tea.KeyEscape:
		m.state = m.prevState
		m.rebuildViewportContent()
		return m, nil

	case tea.KeyUp:
		if m.pickerIdx > 0 {
			m.pickerIdx--
		}
		m.rebuildViewportContent()
		return m, nil

	case tea.KeyDown:
		if m.pickerIdx < len(m.pickerItems)-1 {
			m.pickerIdx++
		}
		m.rebuildViewportContent()
		return m, nil

	case tea.KeyEnter:
		if len(m.pickerItems) == 0 {
			m.state = m.prevState
			return m, nil
		}
		picked := m.pickerItems[m.pickerIdx]
		if m.state == StatePersonas {
			m.startNewSession(picked.id)
		} else {
			m.loadSession(picked.id)
		}
		m.state = StateInput
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil
	}

	if k.Mod&tea.ModCtrl != 0 && k.Code == 'c' {
		m.state = m.prevState
		m.rebuildViewportContent()
	}
	return m, nil
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second quits.
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, m.cleanup()
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()
		return m, nil

	case StateThinking, StateStreaming:
		m.cancelSend()
		m.state = StateInput
		m.output.Reset()
		m.addMessage(Message{Role: roleSystem, Text: "(تم الإلغاء)"})
		m.rebuildViewportContent()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" {
		return m, nil
	}

	if strings.HasPrefix(prompt, "/") {
		return m.handleSlashCommand(prompt)
	}

	m.history = append(m.history, prompt)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = len(m.history)

	m.addMessage(Message{Role: roleUser, Text: prompt})
	m.input.Reset()
	m.state = StateThinking
	m.rebuildViewportContent()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.spinner.Tick,
		m.startSend(prompt),
	)
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case cmdHelp:
		m.addMessage(Message{
			Role: roleSystem,
			Text: "Commands: " + strings.Join([]string{
				cmdHelp, cmdClear, cmdNew, cmdSessions, cmdPersonas,
				cmdSearch, cmdThink, cmdImage, cmdVideo, cmdExit,
			}, ", ") + "\nShortcuts:\n" +
				"  Enter: send    Shift+Enter: newline\n" +
				"  Ctrl+G: cycle mode    Ctrl+S: search    Ctrl+T: deep thinking\n" +
				"  Ctrl+P: personas    Ctrl+O: sessions    Ctrl+N: new chat\n" +
				"  Ctrl+C: cancel/clear    Ctrl+D: exit    PgUp/PgDn: scroll",
		})
	case cmdClear:
		m.store.ClearMessages(m.sessionID)
		m.messages = nil
	case cmdNew:
		m.startNewSession(m.currentPersonaID())
	case cmdSessions:
		m.openSessionPicker()
	case cmdPersonas:
		m.openPersonaPicker()
	case cmdSearch:
		m.toggleSearch()
	case cmdThink:
		m.toggleThink()
	case cmdImage:
		m.setMode(chat.ModeImage)
	case cmdVideo:
		m.setMode(chat.ModeVideo)
	case cmdExit, cmdQuit:
		return m, m.cleanup()
	default:
		m.addMessage(Message{Role: roleError, Text: "أمر غير معروف: " + cmd})
	}
	m.input.Reset()
	m.rebuildViewportContent()
	return m, nil
}

func (m *Model) cycleMode() {
	switch m.mode {
	case chat.ModeChat:
		m.setMode(chat.ModeImage)
	case chat.ModeImage:
		m.setMode(chat.ModeVideo)
	default:
		m.setMode(chat.ModeChat)
	}
}

// setMode toggles off when the mode is already active, mirroring the
// pill buttons in the web UI.
func (m *Model) setMode(mode chat.Mode) {
	if m.mode == mode {
		m.mode = chat.ModeChat
	} else {
		m.mode = mode
	}
	if m.mode != chat.ModeChat {
		m.useSearch = false
		m.useDeepThinking = false
	}
}

func (m *Model) toggleSearch() {
	m.useSearch = !m.useSearch
	if m.useSearch {
		m.mode = chat.ModeChat
		m.useDeepThinking = false
	}
}

func (m *Model) toggleThink() {
	m.useDeepThinking = !m.useDeepThinking
	if m.useDeepThinking {
		m.mode = chat.ModeChat
		m.useSearch = false
	}
}

func (m *Model) currentPersonaID() string {
	sess, ok := m.store.Session(m.sessionID)
	if !ok {
		return m.personas.Fallback().ID
	}
	return sess.PersonaID
}

func (m *Model) startNewSession(personaID string) {
	if _, ok := m.personas.Get(personaID); !ok {
		personaID = m.personas.Fallback().ID
	}
	sess := m.store.CreateSession(personaID)
	m.sessionID = sess.ID
	m.sessionTitle = sess.Title
	m.messages = nil
	m.rebuildViewportContent()
}

func (m *Model) openPersonaPicker() {
	m.pickerItems = m.pickerItems[:0]
	for _, p := range m.personas.All() {
		label := p.Name
		if p.Tagline != "" {
			label += " — " + p.Tagline
		}
		m.pickerItems = append(m.pickerItems, pickerItem{id: p.ID, label: label})
	}
	m.pickerIdx = 0
	m.prevState = m.state
	m.state = StatePersonas
	m.rebuildViewportContent()
}

func (m *Model) openSessionPicker() {
	m.pickerItems = m.pickerItems[:0]
	for _, s := range m.store.Sessions() {
		label := s.Title
		if p, ok := m.personas.Get(s.PersonaID); ok {
			label += " (" + p.Name + ")"
		}
		m.pickerItems = append(m.pickerItems, pickerItem{id: s.ID, label: label})
	}
	m.pickerIdx = 0
	m.prevState = m.state
	m.state = StateSessions
	m.rebuildViewportContent()
}

func (m *Model) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}

	m.historyIdx += delta
	if m.historyIdx < 0 {
		m.historyIdx = 0
	}
	if m.historyIdx > len(m.history) {
		m.historyIdx = len(m.history)
	}

	if m.historyIdx == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.historyIdx])
		m.input.CursorEnd()
	}

	return m, nil
}

func (m *Model) cancelSend() {
	m.engine.CancelSession(m.sessionID)
	if m.sendCancel != nil {
		m.sendCancel()
		m.sendCancel = nil
	}
}

// cleanup cancels any active send and returns the quit command.
func (m *Model) cleanup() tea.Cmd {
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}
	m.cancelSend()
	m.sendEventCh = nil
	return tea.Quit
}
