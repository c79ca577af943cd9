//go:build !linux && !darwin

package watcher

import "log/slog"

func newNativeBackend(logger *slog.Logger) Backend {
	return newFsnotifyBackend(logger)
}
