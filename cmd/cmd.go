// Package cmd provides the CLI commands for Hamzawi.
//
// Commands:
//   - (no arguments): interactive terminal chat with a Bubble Tea TUI
//   - serve: HTTP server with the embedded browser frontend
//   - sessions: list, delete, or clear stored sessions
//
// Signal handling and graceful shutdown go through context
// cancellation in every command.
package cmd

import (
	"fmt"
	"os"

	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
)

// Execute is the main entry point for the Hamzawi CLI.
func Execute() error {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			runVersion()
			return nil
		case "help", "--help", "-h":
			runHelp()
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog := log.Setup(cfg.LogFile, cfg.SlogLevel())
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}()

	if len(os.Args) < 2 {
		return runTUI(cfg, logger)
	}

	switch os.Args[1] {
	case "serve":
		return runServe(cfg, logger, os.Args[2:])
	case "sessions":
		return runSessions(cfg, logger, os.Args[2:])
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Hamzawi - شات حمزاوي in your terminal and browser")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  hamzawi                    Start interactive chat (TUI)")
	fmt.Println("  hamzawi serve [addr]       Start HTTP server (default: 127.0.0.1:3400)")
	fmt.Println("  hamzawi sessions list      List stored sessions")
	fmt.Println("  hamzawi sessions delete ID Delete a session")
	fmt.Println("  hamzawi sessions clear ID  Clear a session's messages")
	fmt.Println("  hamzawi --version          Show version information")
	fmt.Println("  hamzawi --help             Show this help")
	fmt.Println()
	fmt.Println("TUI commands:")
	fmt.Println("  /help              Show available commands")
	fmt.Println("  /image, /video     Toggle image or video generation mode")
	fmt.Println("  /search, /think    Toggle search grounding or deep thinking")
	fmt.Println("  /personas          Pick a persona (starts a new chat)")
	fmt.Println("  /sessions          Switch between chats")
	fmt.Println("  /exit, /quit       Exit")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  HAMZAWI_LOG_LEVEL  Optional: debug, info, warn, error")
}
