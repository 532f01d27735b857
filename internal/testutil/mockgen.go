// Package testutil provides deterministic fakes for engine, API, and
// TUI tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// MockGenerator is a scripted chat.Generator. Zero value streams
// nothing and succeeds; set fields to script replies and failures.
//
// Thread-safe for concurrent use.
type MockGenerator struct {
	mu sync.Mutex

	// Scripted replies.
	Chunks     []string // streamed chunks; joined for one-shot sends
	SearchText string
	Citations  []store.Citation
	ImageParts []store.Part
	VideoPart  store.Part
	Title      string

	// PendingPolls is how many polls report done=false before the
	// operation resolves.
	PendingPolls int

	// Scripted failures. FailAfterChunks bounds how many chunks stream
	// before StreamErr is returned.
	ChatErr         error
	StreamErr       error
	FailAfterChunks int
	SendErr         error
	SearchErr       error
	ImageErr        error
	VideoStartErr   error
	PollErr         error
	VideoOpErr      error // operation resolves done but failed
	DownloadErr     error
	TitleErr        error

	calls         []string
	prompts       []string
	systemPrompts []string
}

// Calls returns the method names invoked, in order.
func (g *MockGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// CallCount returns how many times the named method was invoked.
func (g *MockGenerator) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Prompts returns the text prompts seen by generation calls, in order.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// SystemPrompts returns the system prompts seen by Chat and
// GenerateWithSearch, in order.
func (g *MockGenerator) SystemPrompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.systemPrompts...)
}

func (g *MockGenerator) recordSystemPrompt(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.systemPrompts = append(g.systemPrompts, p)
}

func (g *MockGenerator) record(method, prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, method)
	if prompt != "" {
		g.prompts = append(g.prompts, prompt)
	}
}

func partsText(parts []store.Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Chat implements chat.Generator.
func (g *MockGenerator) Chat(_ context.Context, systemPrompt string, _ []store.Message) (chat.Handle, error) {
	g.record("Chat", "")
	g.recordSystemPrompt(systemPrompt)
	if g.ChatErr != nil {
		return nil, g.ChatErr
	}
	return &mockHandle{gen: g}, nil
}

// GenerateWithSearch implements chat.Generator.
func (g *MockGenerator) GenerateWithSearch(_ context.Context, systemPrompt string, parts []store.Part) (string, []store.Citation, error) {
	g.record("GenerateWithSearch", partsText(parts))
	g.recordSystemPrompt(systemPrompt)
	if g.SearchErr != nil {
		return "", nil, g.SearchErr
	}
	return g.SearchText, g.Citations, nil
}

// GenerateImages implements chat.Generator.
func (g *MockGenerator) GenerateImages(_ context.Context, prompt string) ([]store.Part, error) {
	g.record("GenerateImages", prompt)
	if g.ImageErr != nil {
		return nil, g.ImageErr
	}
	return g.ImageParts, nil
}

// GenerateVideo implements chat.Generator.
func (g *MockGenerator) GenerateVideo(_ context.Context, prompt string, _ *store.Part) (chat.VideoOperation, error) {
	g.record("GenerateVideo", prompt)
	if g.VideoStartErr != nil {
		return nil, g.VideoStartErr
	}
	return &mockVideoOp{remaining: g.PendingPolls, failure: g.VideoOpErr}, nil
}

// PollVideo implements chat.Generator.
func (g *MockGenerator) PollVideo(_ context.Context, op chat.VideoOperation) (chat.VideoOperation, error) {
	g.record("PollVideo", "")
	if g.PollErr != nil {
		return nil, g.PollErr
	}
	prev := op.(*mockVideoOp)
	next := &mockVideoOp{remaining: prev.remaining - 1, failure: prev.failure}
	return next, nil
}

// DownloadVideo implements chat.Generator.
func (g *MockGenerator) DownloadVideo(_ context.Context, _ chat.VideoOperation) (store.Part, error) {
	g.record("DownloadVideo", "")
	if g.DownloadErr != nil {
		return store.Part{}, g.DownloadErr
	}
	return g.VideoPart, nil
}

// GenerateTitle implements chat.Generator.
func (g *MockGenerator) GenerateTitle(_ context.Context, prompt string) (string, error) {
	g.record("GenerateTitle", prompt)
	if g.TitleErr != nil {
		return "", g.TitleErr
	}
	if g.Title == "" {
		return "عنوان تجريبي", nil
	}
	return g.Title, nil
}

type mockHandle struct {
	gen *MockGenerator
}

func (h *mockHandle) SendStream(_ context.Context, _ []store.Part, onChunk func(string) error) (string, error) {
	h.gen.record("SendStream", "")

	var acc strings.Builder
	for i, chunk := range h.gen.Chunks {
		if h.gen.StreamErr != nil && i >= h.gen.FailAfterChunks {
			return "", h.gen.StreamErr
		}
		acc.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return "", err
			}
		}
	}
	if h.gen.StreamErr != nil && len(h.gen.Chunks) <= h.gen.FailAfterChunks {
		return "", h.gen.StreamErr
	}
	return acc.String(), nil
}

func (h *mockHandle) Send(_ context.Context, _ []store.Part) (string, error) {
	h.gen.record("Send", "")
	if h.gen.SendErr != nil {
		return "", h.gen.SendErr
	}
	return strings.Join(h.gen.Chunks, ""), nil
}

type mockVideoOp struct {
	remaining int
	failure   error
}

func (o *mockVideoOp) Done() bool {
	return o.remaining <= 0
}

func (o *mockVideoOp) Err() error {
	if o.Done() {
		return o.failure
	}
	return nil
}
