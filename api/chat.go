package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// videoStatePollInterval is how often the SSE handler re-checks the
// engine while a video generation is pending.
const videoStatePollInterval = 500 * time.Millisecond

// chatRequest is the send payload. Image data arrives base64-encoded
// and decodes into Data on unmarshal.
type chatRequest struct {
	SessionID       string     `json:"sessionId"`
	Prompt          string     `json:"prompt"`
	Mode            string     `json:"mode"`
	UseSearch       bool       `json:"useSearch"`
	UseDeepThinking bool       `json:"useDeepThinking"`
	Image           *chatImage `json:"image"`
}

type chatImage struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

type chatHandler struct {
	store  *store.Store
	engine *chat.Engine
	logger log.Logger
}

func newChatHandler(s *store.Store, e *chat.Engine, logger log.Logger) *chatHandler {
	return &chatHandler{store: s, engine: e, logger: logger}
}

func (h *chatHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.send)
	mux.HandleFunc("POST /api/chat/stream", h.stream)
}

func (h *chatHandler) parseRequest(r *http.Request) (chatRequest, chat.SendOptions, *store.Part, error) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, chat.SendOptions{}, nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	if req.SessionID == "" {
		return req, chat.SendOptions{}, nil, errors.New("sessionId is required")
	}
	if req.Prompt == "" {
		return req, chat.SendOptions{}, nil, errors.New("prompt is required")
	}

	opts := chat.SendOptions{
		UseSearch:       req.UseSearch,
		UseDeepThinking: req.UseDeepThinking,
	}
	switch req.Mode {
	case "", string(chat.ModeChat):
		opts.Mode = chat.ModeChat
	case string(chat.ModeImage):
		opts.Mode = chat.ModeImage
	case string(chat.ModeVideo):
		opts.Mode = chat.ModeVideo
	default:
		return req, opts, nil, fmt.Errorf("unknown mode %q", req.Mode)
	}

	var image *store.Part
	if req.Image != nil && len(req.Image.Data) > 0 {
		image = &store.Part{
			ImageData: req.Image.Data,
			ImageMIME: req.Image.MIMEType,
		}
	}
	return req, opts, image, nil
}

// send is the blocking variant: the response is the completed model
// message. Video sends return 202 immediately; the result arrives in
// the session once the background poll completes.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, opts, image, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.engine.Send(r.Context(), req.SessionID, req.Prompt, image, opts); err != nil {
		h.writeSendError(w, err)
		return
	}

	if opts.Mode == chat.ModeVideo {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"sessionId": req.SessionID,
			"state":     h.engine.State(req.SessionID),
		})
		return
	}

	msg, ok := h.lastModelMessage(req.SessionID)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "response message missing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// stream is the SSE variant. Text chunks are forwarded as they arrive;
// video sends emit video-pending and then video-ready (or error) when
// the background poll finishes.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	req, opts, image, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}

	opts.OnChunk = func(text string) {
		sse.event("chunk", map[string]string{"text": text})
	}

	if err := h.engine.Send(r.Context(), req.SessionID, req.Prompt, image, opts); err != nil {
		sse.event("error", map[string]string{"message": err.Error()})
		return
	}

	if opts.Mode == chat.ModeVideo {
		sse.event("video-pending", map[string]string{"sessionId": req.SessionID})
		h.streamVideoResult(r, sse, req.SessionID)
		return
	}

	msg, ok := h.lastModelMessage(req.SessionID)
	if !ok {
		sse.event("error", map[string]string{"message": "response message missing"})
		return
	}
	sse.event("done", map[string]any{"message": msg})
}

// streamVideoResult holds the SSE connection open until the engine
// returns to idle, then reports the outcome. The poll itself is not
// tied to this request: a dropped connection leaves it running and the
// result lands in the session regardless.
func (h *chatHandler) streamVideoResult(r *http.Request, sse *sseWriter, sessionID string) {
	ticker := time.NewTicker(videoStatePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if h.engine.State(sessionID) != chat.StateIdle {
			continue
		}
		if errMsg := h.engine.LastError(sessionID); errMsg != "" {
			sse.event("error", map[string]string{"message": errMsg})
			return
		}
		msg, ok := h.lastModelMessage(sessionID)
		if !ok {
			sse.event("error", map[string]string{"message": "video message missing"})
			return
		}
		// The ready event carries IDs only. Clients fetch the session
		// to pick up the video bytes.
		sse.event("video-ready", map[string]string{
			"sessionId": sessionID,
			"messageId": msg.ID,
		})
		return
	}
}

func (h *chatHandler) lastModelMessage(sessionID string) (store.Message, bool) {
	sess, ok := h.store.Session(sessionID)
	if !ok {
		return store.Message{}, false
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == store.RoleModel {
			return sess.Messages[i], true
		}
	}
	return store.Message{}, false
}

func (h *chatHandler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, "busy", "session already has a request in flight")
	case errors.Is(err, chat.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown_session", "")
	case errors.Is(err, chat.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "")
	default:
		writeError(w, http.StatusInternalServerError, "generation_failed", err.Error())
	}
}

// sseWriter frames server-sent events. Handlers are single-goroutine,
// so no locking is needed.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) event(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload)
	s.flusher.Flush()
}
