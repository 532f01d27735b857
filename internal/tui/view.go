package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/hamzamsaid/hamzawi/internal/chat"
)

// View implements tea.Model. AltScreen with a viewport for scrollable
// message history.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	_, _ = m.viewBuf.WriteString(m.viewport.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// The input stays visible and focusable in every state so the next
	// message can be typed while a reply is still arriving.
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderStatusBar())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderHelpBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from the
// messages and current state.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	if m.state == StatePersonas || m.state == StateSessions {
		m.viewport.SetContent(m.renderPicker())
		return
	}

	_, _ = b.WriteString(m.styles.RenderBanner())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.styles.RenderWelcomeTips())
	_, _ = b.WriteString("\n")

	for _, msg := range m.messages {
		switch msg.Role {
		case roleUser:
			_, _ = b.WriteString(m.styles.User.Render("أنت> "))
			_, _ = b.WriteString(msg.Text)
		case roleAssistant:
			_, _ = b.WriteString(m.styles.Assistant.Render("حمزاوي> "))
			_, _ = b.WriteString(m.markdown.Render(msg.Text))
			if msg.MediaNote != "" {
				_, _ = b.WriteString("\n")
				_, _ = b.WriteString(m.styles.System.Render(msg.MediaNote))
			}
			if len(msg.Citations) > 0 {
				_, _ = b.WriteString("\n")
				_, _ = b.WriteString(m.styles.System.Render("المصادر:"))
				for _, c := range msg.Citations {
					title := c.Title
					if title == "" {
						title = c.URI
					}
					_, _ = b.WriteString("\n")
					_, _ = b.WriteString(m.styles.System.Render("  • " + title + " — " + c.URI))
				}
			}
		case roleSystem:
			_, _ = b.WriteString(m.styles.System.Render(msg.Text))
		case roleError:
			_, _ = b.WriteString(m.styles.Error.Render("خطأ: " + msg.Text))
		}
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateStreaming && m.output.Len() > 0 {
		_, _ = b.WriteString(m.styles.Assistant.Render("حمزاوي> "))
		_, _ = b.WriteString(m.output.String())
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateThinking {
		_, _ = b.WriteString(m.spinner.View())
		if m.sendStatus != "" {
			_, _ = b.WriteString(" " + m.sendStatus + "\n\n")
		} else {
			_, _ = b.WriteString(" جارٍ التفكير...\n\n")
		}
	}

	m.viewport.SetContent(b.String())
}

// renderPicker renders the persona or session selection overlay.
func (m *Model) renderPicker() string {
	var b strings.Builder

	title := "اختر شخصية (محادثة جديدة):"
	empty := "لا توجد شخصيات."
	if m.state == StateSessions {
		title = "اختر محادثة:"
		empty = "لا توجد محادثات."
	}
	_, _ = b.WriteString(m.styles.Header.Render(title))
	_, _ = b.WriteString("\n\n")

	if len(m.pickerItems) == 0 {
		_, _ = b.WriteString(m.styles.System.Render(empty))
		return b.String()
	}

	for i, item := range m.pickerItems {
		if i == m.pickerIdx {
			_, _ = b.WriteString(m.styles.User.Render("› " + item.label))
		} else {
			_, _ = b.WriteString("  " + item.label)
		}
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// renderSeparator returns a horizontal line separator.
func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar shows the session title, persona, and active mode.
func (m *Model) renderStatusBar() string {
	var parts []string

	parts = append(parts, m.sessionTitle)
	parts = append(parts, m.sessionPersonaName())

	switch m.mode {
	case chat.ModeImage:
		parts = append(parts, m.styles.ModeOn.Render("🎨 صورة"))
	case chat.ModeVideo:
		parts = append(parts, m.styles.ModeOn.Render("🎬 فيديو"))
	default:
		if m.useSearch {
			parts = append(parts, m.styles.ModeOn.Render("🔍 بحث"))
		}
		if m.useDeepThinking {
			parts = append(parts, m.styles.ModeOn.Render("🧠 تفكير عميق"))
		}
	}

	return m.styles.StatusBar.Render(strings.Join(parts, "  │  "))
}

// renderHelpBar returns state-appropriate keyboard shortcut help.
func (m *Model) renderHelpBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.Mode, m.keys.Search, m.keys.Think,
			m.keys.Personas, m.keys.Sessions, m.keys.Quit,
		}
	case StateThinking, StateStreaming:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	case StatePersonas, StateSessions:
		bindings = []key.Binding{
			m.keys.PickerNav, m.keys.PickerPick, m.keys.EscCancel,
		}
	}
	return m.help.ShortHelpView(bindings)
}
