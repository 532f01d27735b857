package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// sendBufferSize absorbs chunk bursts during render delays without
// blocking the generation goroutine.
const sendBufferSize = 100

// videoWatchInterval is how often a pending video generation is
// re-checked against the engine.
const videoWatchInterval = 2 * time.Second

// sendEvent is a discriminated union for generation events. Exactly
// one field group is set per event.
type sendEvent struct {
	text   string     // streamed text chunk
	result sendResult // final result, valid when done
	status string     // transient status line (video progress)
	err    error
	done   bool
}

// sendResult is the completed reply prepared for display.
type sendResult struct {
	text      string
	citations []store.Citation
	mediaNote string
}

// Bubble Tea message types for the send lifecycle.
type sendStartedMsg struct {
	eventCh <-chan sendEvent
	cancel  context.CancelFunc
}

type sendTextMsg struct {
	text string
}

type sendStatusMsg struct {
	status string
}

type sendDoneMsg struct {
	result sendResult
}

type sendErrorMsg struct {
	err error
}

// startSend creates a command that runs the full generation in a
// goroutine and feeds events through a union channel.
//
// The goroutine exits when the send completes, fails, or the context
// is canceled. Channel closure signals completion; no WaitGroup.
func (m *Model) startSend(prompt string) tea.Cmd {
	sessionID := m.sessionID
	opts := chat.SendOptions{
		Mode:            m.mode,
		UseSearch:       m.useSearch,
		UseDeepThinking: m.useDeepThinking,
	}

	return func() tea.Msg {
		eventCh := make(chan sendEvent, sendBufferSize)
		ctx, cancel := context.WithTimeout(m.ctx, sendTimeout)

		go func() {
			defer cancel()
			defer close(eventCh)

			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("send panic recovered", "panic", r)
					select {
					case eventCh <- sendEvent{err: fmt.Errorf("send panic: %v", r)}:
					default:
					}
				}
			}()

			opts.OnChunk = func(text string) {
				select {
				case eventCh <- sendEvent{text: text}:
				case <-ctx.Done():
				}
			}

			if err := m.engine.Send(ctx, sessionID, prompt, nil, opts); err != nil {
				emit(ctx, eventCh, sendEvent{err: err})
				return
			}

			if opts.Mode == chat.ModeVideo {
				emit(ctx, eventCh, sendEvent{status: "جارٍ إنشاء الفيديو... قد يستغرق هذا بضع دقائق."})
				if err := m.waitForVideo(ctx, sessionID); err != nil {
					emit(ctx, eventCh, sendEvent{err: err})
					return
				}
			}

			emit(ctx, eventCh, sendEvent{done: true, result: m.collectResult(sessionID)})
		}()

		return sendStartedMsg{eventCh: eventCh, cancel: cancel}
	}
}

func emit(ctx context.Context, ch chan<- sendEvent, ev sendEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// waitForVideo blocks until the background poll resolves the video
// generation, then surfaces its error if it failed.
func (m *Model) waitForVideo(ctx context.Context, sessionID string) error {
	ticker := time.NewTicker(videoWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if m.engine.State(sessionID) != chat.StateIdle {
			continue
		}
		if errMsg := m.engine.LastError(sessionID); errMsg != "" {
			return fmt.Errorf("%s", errMsg)
		}
		return nil
	}
}

// collectResult reads the completed model reply back from the store
// and saves any generated media to disk.
func (m *Model) collectResult(sessionID string) sendResult {
	sess, ok := m.store.Session(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return sendResult{}
	}

	var reply *store.Message
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == store.RoleModel {
			reply = &sess.Messages[i]
			break
		}
	}
	if reply == nil {
		return sendResult{}
	}

	result := sendResult{citations: reply.Grounding}
	for _, p := range reply.Parts {
		if p.Text != "" {
			result.text += p.Text
		}
		if len(p.ImageData) > 0 {
			result.mediaNote = m.saveMedia(reply.ID, "jpg", p.ImageData, "صورة")
		}
		if len(p.VideoData) > 0 {
			result.mediaNote = m.saveMedia(reply.ID, "mp4", p.VideoData, "فيديو")
		}
	}
	return result
}

// saveMedia writes generated media under the media directory and
// returns the placard line shown in the chat.
func (m *Model) saveMedia(messageID, ext string, data []byte, kind string) string {
	if m.mediaDir == "" {
		return "[" + kind + "]"
	}
	if err := os.MkdirAll(m.mediaDir, 0o750); err != nil {
		m.logger.Error("creating media directory", "error", err)
		return "[" + kind + "]"
	}

	path := filepath.Join(m.mediaDir, messageID+"."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		m.logger.Error("saving media", "error", err, "path", path)
		return "[" + kind + "]"
	}
	return fmt.Sprintf("[%s محفوظة في %s]", kind, path)
}

// listenForSend waits for the next send event. Empty events are
// skipped via loop instead of recursion.
func listenForSend(eventCh <-chan sendEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}

		for {
			event, ok := <-eventCh
			if !ok {
				return sendErrorMsg{err: fmt.Errorf("generation ended without completion signal")}
			}

			switch {
			case event.err != nil:
				return sendErrorMsg{err: event.err}
			case event.done:
				return sendDoneMsg{result: event.result}
			case event.status != "":
				return sendStatusMsg{status: event.status}
			case event.text != "":
				return sendTextMsg{text: event.text}
			default:
				continue
			}
		}
	}
}
