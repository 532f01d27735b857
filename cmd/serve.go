package cmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/hamzamsaid/hamzawi/api"
	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/notify"
)

// runServe starts the HTTP server with the embedded browser frontend.
// Notifications are delivered by the browser, so the engine's notifier
// only logs.
func runServe(cfg *config.Config, logger log.Logger, args []string) error {
	addr := cfg.ListenAddr
	if len(args) > 0 {
		addr = args[0]
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, notify.Log(logger))
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := api.NewServer(api.Config{
		Store:    a.store,
		Engine:   a.engine,
		Personas: a.personas,
		Logger:   logger.With("component", "api"),
	})
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	logger.Info("server ready", "addr", addr, "ui", "http://"+addr+"/")
	return srv.Run(ctx, addr)
}
