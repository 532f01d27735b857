package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/notify"
	"github.com/hamzamsaid/hamzawi/internal/tui"
)

// runTUI starts the interactive terminal chat.
func runTUI(cfg *config.Config, logger log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, notify.Log(logger))
	if err != nil {
		return err
	}
	defer a.close()

	model, err := tui.New(ctx, tui.Config{
		Engine:   a.engine,
		Store:    a.store,
		Personas: a.personas,
		Logger:   logger.With("component", "tui"),
		MediaDir: filepath.Join(cfg.DataDir, "media"),
	})
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}
