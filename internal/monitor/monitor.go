package monitor

import (
	"log/slog"
	"sync"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/watcher"
)

// The process-wide monitor used by StartMonitor and StopMonitor. It holds
// at most one session at a time.
var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
	defaultID       string
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLocked()
}

func defaultLocked() *Registry {
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(slog.Default(), Config{})
	}
	return defaultRegistry
}

// StartMonitor starts the single process-wide session and returns a status
// code: 0 on success, 1 for an invalid root, 2 when sink is nil, 3 when the
// root is too long, 4 when the OS refused the subscription, 5 otherwise.
// Starting while a session is active returns 5.
func StartMonitor(root string, sink watcher.Sink, recursive, debug bool) int {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	reg := defaultLocked()
	if defaultID != "" {
		reg.logger.Error("monitor already running", "session", defaultID)
		return errors.StatusFailed
	}

	sessionID, err := reg.Start(root, sink, recursive, debug)
	if err != nil {
		reg.logger.Error("failed to start monitor", "root", root, "error", err)
		return errors.StatusOf(err)
	}

	defaultID = sessionID
	return errors.StatusOK
}

// StopMonitor stops the process-wide session. It always succeeds and is a
// no-op when nothing is running.
func StopMonitor() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultID == "" {
		return
	}

	reg := defaultLocked()
	if err := reg.Stop(defaultID); err != nil {
		reg.logger.Warn("monitor stopped with error", "error", err)
	}
	defaultID = ""
}
