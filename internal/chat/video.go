package chat

import (
	"context"
	"time"

	"github.com/hamzamsaid/hamzawi/internal/store"
)

// startVideo kicks off a video generation job and hands the session's
// state to a background poll loop. The loop runs on its own context so
// the originating request can return (and even disconnect) while the
// video renders.
func (e *Engine) startVideo(ctx context.Context, sessionID, placeholderID, prompt string, image *store.Part) error {
	op, err := e.gen.GenerateVideo(ctx, prompt, image)
	if err != nil {
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return ErrClosed
	}
	e.polls[sessionID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.pollVideo(pollCtx, sessionID, placeholderID, op)
	return nil
}

// pollVideo polls the operation until it resolves: first after the
// initial delay, then at the fixed interval. On success the placeholder
// becomes the video part; on failure it becomes an error message and
// the user's message stays. Cancellation (session deleted, engine
// closed) exits without touching the transcript.
func (e *Engine) pollVideo(ctx context.Context, sessionID, placeholderID string, op VideoOperation) {
	defer e.wg.Done()

	timer := time.NewTimer(e.pollInitial)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.dropPoll(sessionID)
			return
		case <-timer.C:
		}

		next, err := e.gen.PollVideo(ctx, op)
		if err != nil {
			if ctx.Err() != nil {
				e.dropPoll(sessionID)
				return
			}
			e.videoFailed(sessionID, placeholderID, err.Error())
			return
		}
		op = next

		if !op.Done() {
			timer.Reset(e.pollInterval)
			continue
		}
		if opErr := op.Err(); opErr != nil {
			e.videoFailed(sessionID, placeholderID, opErr.Error())
			return
		}

		part, err := e.gen.DownloadVideo(ctx, op)
		if err != nil {
			if ctx.Err() != nil {
				e.dropPoll(sessionID)
				return
			}
			e.videoFailed(sessionID, placeholderID, err.Error())
			return
		}

		e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
			m.Parts = []store.Part{part}
		})
		e.finishPoll(sessionID)

		if e.notifier != nil && e.store.NotificationsEnabled() {
			e.notifier.Notify("فيديوك جاهز!", "الفيديو الذي طلبته تم إنشاؤه بنجاح.")
		}
		return
	}
}

// videoFailed records the error and swaps the placeholder's parts for
// the error text. The user message is kept; a video failure is part of
// the transcript, not something to roll back.
func (e *Engine) videoFailed(sessionID, placeholderID, msg string) {
	e.logger.Error("video generation failed", "session", sessionID, "error", msg)

	e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
		m.Parts = []store.Part{{Text: "Error: " + msg}}
	})

	e.mu.Lock()
	e.errs[sessionID] = msg
	e.states[sessionID] = StateIdle
	delete(e.polls, sessionID)
	e.mu.Unlock()
	e.emit()
}

// finishPoll returns the session to idle after a successful video.
func (e *Engine) finishPoll(sessionID string) {
	e.mu.Lock()
	e.states[sessionID] = StateIdle
	delete(e.polls, sessionID)
	e.mu.Unlock()
	e.emit()
}

// dropPoll forgets a canceled poll without touching state; the
// canceling side already cleaned up.
func (e *Engine) dropPoll(sessionID string) {
	e.mu.Lock()
	delete(e.polls, sessionID)
	e.mu.Unlock()
}
