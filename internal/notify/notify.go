// Package notify abstracts completion notifications so the engine can
// announce finished videos without knowing the frontend: the server
// pushes a browser notification event, the TUI rings the terminal bell.
package notify

import "github.com/hamzamsaid/hamzawi/internal/log"

// Notifier delivers a short user-facing notification.
type Notifier interface {
	Notify(title, body string)
}

// Func adapts a function to the Notifier interface.
type Func func(title, body string)

func (f Func) Notify(title, body string) { f(title, body) }

// Log returns a Notifier that writes notifications to the logger. Used
// where no richer channel exists.
func Log(logger log.Logger) Notifier {
	return Func(func(title, body string) {
		logger.Info("notification", "title", title, "body", body)
	})
}
