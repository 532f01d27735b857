package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/notify"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// Config wires an Engine.
type Config struct {
	Store     *store.Store
	Generator Generator
	Personas  *persona.Registry
	Notifier  notify.Notifier
	Logger    log.Logger

	// Language pins the response language. Empty or "auto" lets the
	// model follow the user.
	Language string

	// Video poll cadence: first poll after the initial delay, then at
	// the fixed interval until the operation resolves.
	VideoPollInitialDelay time.Duration
	VideoPollInterval     time.Duration
}

// cachedHandle pairs a chat handle with the store history length it is
// in sync with. A send that bypasses the handle (search, image, video)
// grows the store without growing the handle, so the next handle use
// detects the divergence and rebuilds from history.
type cachedHandle struct {
	handle     Handle
	historyLen int
}

// Engine runs generation against sessions. Send blocks until the reply
// resolves, except video mode, which returns after scheduling a
// background poll loop. Safe for concurrent use; at most one send per
// session is in flight.
type Engine struct {
	store    *store.Store
	gen      Generator
	personas *persona.Registry
	notifier notify.Notifier
	logger   log.Logger
	language string

	pollInitial  time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	states  map[string]LoadingState
	errs    map[string]string
	handles map[string]cachedHandle
	polls   map[string]context.CancelFunc
	subs    []func()
	closed  bool

	wg sync.WaitGroup
}

// New creates an Engine and wires the store's title generator to the
// adapter.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Personas == nil {
		reg, err := persona.New(nil)
		if err != nil {
			return nil, err
		}
		cfg.Personas = reg
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.VideoPollInitialDelay <= 0 {
		cfg.VideoPollInitialDelay = 5 * time.Second
	}
	if cfg.VideoPollInterval <= 0 {
		cfg.VideoPollInterval = 10 * time.Second
	}

	e := &Engine{
		store:        cfg.Store,
		gen:          cfg.Generator,
		personas:     cfg.Personas,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		language:     cfg.Language,
		pollInitial:  cfg.VideoPollInitialDelay,
		pollInterval: cfg.VideoPollInterval,
		states:       make(map[string]LoadingState),
		errs:         make(map[string]string),
		handles:      make(map[string]cachedHandle),
		polls:        make(map[string]context.CancelFunc),
	}
	e.store.SetTitleGenerator(e.gen.GenerateTitle)
	return e, nil
}

// Subscribe registers fn to run after every state transition, in
// addition to the store's own mutation notifications.
func (e *Engine) Subscribe(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// State returns the session's loading state (idle when unknown).
func (e *Engine) State(sessionID string) LoadingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[sessionID]; ok {
		return st
	}
	return StateIdle
}

// LastError returns the session's last send error, cleared by the next
// send ("" = none).
func (e *Engine) LastError(sessionID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs[sessionID]
}

// Send runs one generation against the session. The user message
// (image part first, then text) and an empty model placeholder are
// appended together before the provider is called; on failure both are
// removed again and the error is recorded for LastError.
//
// Video mode returns as soon as the operation is started; the poll loop
// owns the session's state until the video resolves.
func (e *Engine) Send(ctx context.Context, sessionID, prompt string, image *store.Part, opts SendOptions) error {
	sess, ok := e.store.Session(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if st, busy := e.states[sessionID]; busy && st != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.states[sessionID] = StateLoading
	delete(e.errs, sessionID)
	e.mu.Unlock()
	e.emit()

	p := e.sessionPersona(sess)
	systemPrompt := e.systemPrompt(p)

	// Streamed and deep-thinking sends go through a stateful handle.
	// Resolve it before the optimistic append so a handle failure
	// leaves the transcript untouched.
	var handle Handle
	if opts.Mode == ModeChat && !opts.UseSearch {
		var err error
		handle, err = e.sessionHandle(ctx, sessionID, systemPrompt, sess.Messages)
		if err != nil {
			e.fail(sessionID, err)
			return err
		}
	}

	userMsg, placeholderID := e.appendPair(sessionID, p.ID, prompt, image)

	var err error
	switch opts.Mode {
	case ModeImage:
		err = e.sendImage(ctx, sessionID, placeholderID, prompt)
	case ModeVideo:
		if err = e.startVideo(ctx, sessionID, placeholderID, prompt, image); err == nil {
			return nil // poll loop owns the state from here
		}
	default:
		err = e.sendChat(ctx, sessionID, placeholderID, handle, systemPrompt, userMsg.Parts, opts)
	}

	if err != nil {
		e.rollback(sessionID, userMsg.ID, placeholderID)
		e.fail(sessionID, err)
		return err
	}

	e.setState(sessionID, StateIdle)
	return nil
}

// sendChat dispatches a text generation: search wins over deep
// thinking, which wins over streaming.
func (e *Engine) sendChat(ctx context.Context, sessionID, placeholderID string, handle Handle, systemPrompt string, parts []store.Part, opts SendOptions) error {
	switch {
	case opts.UseSearch:
		text, citations, err := e.gen.GenerateWithSearch(ctx, systemPrompt, parts)
		if err != nil {
			return err
		}
		e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
			m.Parts = []store.Part{{Text: text}}
			m.Grounding = citations
		})
		return nil

	case opts.UseDeepThinking:
		text, err := handle.Send(ctx, parts)
		if err != nil {
			return err
		}
		e.advanceHandle(sessionID)
		e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
			m.Parts = []store.Part{{Text: text}}
		})
		return nil

	default:
		e.setState(sessionID, StateStreaming)
		var acc string
		final, err := handle.SendStream(ctx, parts, func(chunk string) error {
			acc += chunk
			e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
				m.Parts = []store.Part{{Text: acc}}
			})
			if opts.OnChunk != nil {
				opts.OnChunk(chunk)
			}
			return nil
		})
		if err != nil {
			return err
		}
		e.advanceHandle(sessionID)
		e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
			m.Parts = []store.Part{{Text: final}}
		})
		return nil
	}
}

// sendImage replaces the placeholder with one part per generated image.
func (e *Engine) sendImage(ctx context.Context, sessionID, placeholderID, prompt string) error {
	parts, err := e.gen.GenerateImages(ctx, prompt)
	if err != nil {
		return err
	}
	e.updateMessage(sessionID, placeholderID, func(m *store.Message) {
		m.Parts = parts
	})
	return nil
}

// CancelSession stops any running poll loop and forgets the session's
// engine state. Frontends call it alongside store deletion.
func (e *Engine) CancelSession(sessionID string) {
	e.mu.Lock()
	if cancel, ok := e.polls[sessionID]; ok {
		cancel()
		delete(e.polls, sessionID)
	}
	delete(e.states, sessionID)
	delete(e.errs, sessionID)
	delete(e.handles, sessionID)
	e.mu.Unlock()
	e.emit()
}

// InvalidateHandles drops all cached chat handles, forcing the next
// send to rebuild from stored history. Call after changes that alter
// the system prompt, such as a new display name.
func (e *Engine) InvalidateHandles() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles = make(map[string]cachedHandle)
}

// Close stops all poll loops and waits for them to exit. The engine
// rejects sends afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, cancel := range e.polls {
		cancel()
		delete(e.polls, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
}

// sessionPersona resolves the session's persona, falling back to the
// flagship for unknown IDs.
func (e *Engine) sessionPersona(sess store.Session) persona.Persona {
	if p, ok := e.personas.Get(sess.PersonaID); ok {
		return p
	}
	return e.personas.Fallback()
}

// systemPrompt extends the persona prompt with the user's display name
// and the pinned response language when configured.
func (e *Engine) systemPrompt(p persona.Persona) string {
	prompt := p.SystemPrompt
	if name := e.store.DisplayName(); name != "" {
		prompt += fmt.Sprintf("\n\nاسم المستخدم هو %s. خاطبه باسمه عندما يكون ذلك مناسبًا.", name)
	}
	if e.language != "" && e.language != "auto" {
		prompt += fmt.Sprintf("\n\nأجب دائمًا باللغة التالية: %s.", e.language)
	}
	return prompt
}

// sessionHandle returns the session's cached chat handle, rebuilding it
// from stored history when the store has diverged from the handle.
func (e *Engine) sessionHandle(ctx context.Context, sessionID, systemPrompt string, history []store.Message) (Handle, error) {
	e.mu.Lock()
	cached, ok := e.handles[sessionID]
	e.mu.Unlock()
	if ok && cached.historyLen == len(history) {
		return cached.handle, nil
	}

	handle, err := e.gen.Chat(ctx, systemPrompt, history)
	if err != nil {
		return nil, fmt.Errorf("creating chat session: %w", err)
	}

	e.mu.Lock()
	e.handles[sessionID] = cachedHandle{handle: handle, historyLen: len(history)}
	e.mu.Unlock()
	return handle, nil
}

// advanceHandle records that the cached handle absorbed one exchange
// (user message plus model reply).
func (e *Engine) advanceHandle(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.handles[sessionID]; ok {
		cached.historyLen += 2
		e.handles[sessionID] = cached
	}
}

// appendPair appends the user message and an empty model placeholder in
// a single update and returns them.
func (e *Engine) appendPair(sessionID, personaID, prompt string, image *store.Part) (store.Message, string) {
	now := time.Now()

	var userParts []store.Part
	if image != nil {
		userParts = append(userParts, *image)
	}
	userParts = append(userParts, store.Part{Text: prompt})

	userMsg := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Parts:     userParts,
		PersonaID: personaID,
		Timestamp: now,
	}
	placeholder := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleModel,
		Parts:     []store.Part{{Text: ""}},
		PersonaID: personaID,
		Timestamp: now,
	}

	e.store.UpdateSession(sessionID, func(sess store.Session) store.Session {
		sess.Messages = append(sess.Messages, userMsg, placeholder)
		return sess
	})
	return userMsg, placeholder.ID
}

// rollback removes both optimistic messages by ID.
func (e *Engine) rollback(sessionID, userID, placeholderID string) {
	e.store.UpdateSession(sessionID, func(sess store.Session) store.Session {
		kept := sess.Messages[:0]
		for _, m := range sess.Messages {
			if m.ID == userID || m.ID == placeholderID {
				continue
			}
			kept = append(kept, m)
		}
		sess.Messages = kept
		return sess
	})
}

// updateMessage rewrites one message in place; a deleted session or
// message is a silent no-op.
func (e *Engine) updateMessage(sessionID, messageID string, mutate func(m *store.Message)) {
	e.store.UpdateSession(sessionID, func(sess store.Session) store.Session {
		for i := range sess.Messages {
			if sess.Messages[i].ID == messageID {
				mutate(&sess.Messages[i])
				break
			}
		}
		return sess
	})
}

// fail records the error and returns the session to idle.
func (e *Engine) fail(sessionID string, err error) {
	e.logger.Error("send failed", "session", sessionID, "error", err)
	e.mu.Lock()
	e.errs[sessionID] = err.Error()
	e.states[sessionID] = StateIdle
	e.mu.Unlock()
	e.emit()
}

func (e *Engine) setState(sessionID string, st LoadingState) {
	e.mu.Lock()
	e.states[sessionID] = st
	e.mu.Unlock()
	e.emit()
}

// emit runs subscriber callbacks outside the lock.
func (e *Engine) emit() {
	e.mu.Lock()
	subs := append([]func(){}, e.subs...)
	e.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
