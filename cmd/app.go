package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/hamzamsaid/hamzawi/internal/ai"
	"github.com/hamzamsaid/hamzawi/internal/chat"
	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/notify"
	"github.com/hamzamsaid/hamzawi/internal/persona"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// app bundles the wired application components.
type app struct {
	store    *store.Store
	engine   *chat.Engine
	personas *persona.Registry
	logger   log.Logger
}

// close tears components down in reverse dependency order.
func (a *app) close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// buildApp wires the store, the Gemini client, and the engine.
func buildApp(ctx context.Context, cfg *config.Config, logger log.Logger, notifier notify.Notifier) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cfg.DataDir, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client, err := ai.New(ctx, cfg, logger.With("component", "ai"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	personas, err := persona.New(customPersonas(cfg))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("building persona registry: %w", err)
	}

	engine, err := chat.New(chat.Config{
		Store:                 st,
		Generator:             &generatorAdapter{client: client},
		Personas:              personas,
		Notifier:              notifier,
		Logger:                logger.With("component", "chat"),
		Language:              cfg.Language,
		VideoPollInitialDelay: cfg.VideoPollInitialDelay,
		VideoPollInterval:     cfg.VideoPollInterval,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return &app{
		store:    st,
		engine:   engine,
		personas: personas,
		logger:   logger,
	}, nil
}

// generatorAdapter narrows *ai.Client's concrete return types to the
// engine's interfaces.
type generatorAdapter struct {
	client *ai.Client
}

var _ chat.Generator = (*generatorAdapter)(nil)

func (g *generatorAdapter) Chat(ctx context.Context, systemPrompt string, history []store.Message) (chat.Handle, error) {
	h, err := g.client.Chat(ctx, systemPrompt, history)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (g *generatorAdapter) GenerateWithSearch(ctx context.Context, systemPrompt string, parts []store.Part) (string, []store.Citation, error) {
	return g.client.GenerateWithSearch(ctx, systemPrompt, parts)
}

func (g *generatorAdapter) GenerateImages(ctx context.Context, prompt string) ([]store.Part, error) {
	return g.client.GenerateImages(ctx, prompt)
}

func (g *generatorAdapter) GenerateVideo(ctx context.Context, prompt string, image *store.Part) (chat.VideoOperation, error) {
	op, err := g.client.GenerateVideo(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (g *generatorAdapter) PollVideo(ctx context.Context, op chat.VideoOperation) (chat.VideoOperation, error) {
	v, ok := op.(*ai.VideoOperation)
	if !ok {
		return nil, fmt.Errorf("unexpected video operation type %T", op)
	}
	next, err := g.client.PollVideo(ctx, v)
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (g *generatorAdapter) DownloadVideo(ctx context.Context, op chat.VideoOperation) (store.Part, error) {
	v, ok := op.(*ai.VideoOperation)
	if !ok {
		return store.Part{}, fmt.Errorf("unexpected video operation type %T", op)
	}
	return g.client.DownloadVideo(ctx, v)
}

func (g *generatorAdapter) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	return g.client.GenerateTitle(ctx, prompt)
}

// customPersonas maps config-file persona declarations onto registry
// entries. Entries without an ID or prompt are skipped.
func customPersonas(cfg *config.Config) []persona.Persona {
	var out []persona.Persona
	for _, pc := range cfg.Personas {
		if pc.ID == "" || pc.SystemPrompt == "" {
			continue
		}
		name := pc.Name
		if name == "" {
			name = pc.ID
		}
		out = append(out, persona.Persona{
			ID:           pc.ID,
			Name:         name,
			Tagline:      pc.Tagline,
			Theme:        pc.Theme,
			SystemPrompt: pc.SystemPrompt,
			Custom:       true,
		})
	}
	return out
}
