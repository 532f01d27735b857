// Package chat implements the generation engine behind both frontends:
// per-session loading state, optimistic message appends with rollback,
// streamed and one-shot text generation, image generation, and
// fire-and-forget video generation resolved by a background poll loop.
package chat

import (
	"context"
	"errors"

	"github.com/hamzamsaid/hamzawi/internal/store"
)

// LoadingState is the per-session generation state. A session accepts a
// new send only while idle.
type LoadingState string

const (
	StateIdle      LoadingState = "IDLE"
	StateLoading   LoadingState = "LOADING"
	StateStreaming LoadingState = "STREAMING"
)

// Mode selects what a send produces.
type Mode string

const (
	ModeChat  Mode = "CHAT"
	ModeImage Mode = "IMAGE_GEN"
	ModeVideo Mode = "VIDEO_GEN"
)

// SendOptions control a single send. Search and deep thinking apply to
// ModeChat only; search wins when both are set. OnChunk, when set,
// receives each streamed chunk in addition to the store updates.
type SendOptions struct {
	Mode            Mode
	UseSearch       bool
	UseDeepThinking bool
	OnChunk         func(text string)
}

var (
	// ErrBusy is returned when the session already has a send in flight.
	ErrBusy = errors.New("a generation is already in progress for this session")

	// ErrUnknownSession is returned for a send against a missing session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat engine is closed")
)

// Generator is the slice of the AI adapter the engine consumes.
type Generator interface {
	Chat(ctx context.Context, systemPrompt string, history []store.Message) (Handle, error)
	GenerateWithSearch(ctx context.Context, systemPrompt string, parts []store.Part) (string, []store.Citation, error)
	GenerateImages(ctx context.Context, prompt string) ([]store.Part, error)
	GenerateVideo(ctx context.Context, prompt string, image *store.Part) (VideoOperation, error)
	PollVideo(ctx context.Context, op VideoOperation) (VideoOperation, error)
	DownloadVideo(ctx context.Context, op VideoOperation) (store.Part, error)
	GenerateTitle(ctx context.Context, prompt string) (string, error)
}

// Handle is a stateful chat conversation.
type Handle interface {
	SendStream(ctx context.Context, parts []store.Part, onChunk func(text string) error) (string, error)
	Send(ctx context.Context, parts []store.Part) (string, error)
}

// VideoOperation is a pollable video generation job.
type VideoOperation interface {
	Done() bool
	Err() error
}
