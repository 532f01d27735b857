package tui

import (
	"context"
	"errors"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires a type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines + statusLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4)
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case sendStartedMsg:
		m.sendCancel = msg.cancel
		m.sendEventCh = msg.eventCh
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForSend(msg.eventCh)

	case sendTextMsg:
		m.state = StateStreaming
		m.output.WriteString(msg.text)
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForSend(m.sendEventCh)

	case sendStatusMsg:
		m.sendStatus = msg.status
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForSend(m.sendEventCh)

	case sendDoneMsg:
		m.finishSend()

		// Prefer the stored reply text over accumulated chunks; the
		// one-shot paths never stream.
		text := msg.result.text
		if text == "" {
			text = m.output.String()
		}
		m.addMessage(Message{
			Role:      roleAssistant,
			Text:      text,
			Citations: msg.result.citations,
			MediaNote: msg.result.mediaNote,
		})
		m.output.Reset()
		m.sessionTitle = m.refreshTitle()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case sendErrorMsg:
		m.finishSend()

		switch {
		case errors.Is(msg.err, context.Canceled):
			m.addMessage(Message{Role: roleSystem, Text: "(تم الإلغاء)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			m.addMessage(Message{Role: roleError, Text: "انتهت مهلة الطلب. حاول مجددًا بطلب أبسط."})
		default:
			m.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		m.output.Reset()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishSend resets the send lifecycle back to input state.
func (m *Model) finishSend() {
	m.state = StateInput
	m.sendStatus = ""
	if m.sendCancel != nil {
		m.sendCancel()
		m.sendCancel = nil
	}
	m.sendEventCh = nil
}

// refreshTitle re-reads the session title, which the store may have
// generated in the background after the first exchange.
func (m *Model) refreshTitle() string {
	sess, ok := m.store.Session(m.sessionID)
	if !ok {
		return m.sessionTitle
	}
	return sess.Title
}
