// Package watcher turns OS change notifications for a directory tree into a
// stable stream of (action, kind, path, old path) events.
//
// A Session owns one watched root. It subscribes through a Backend,
// normalizes each raw Notification into an Event, replays the contents of
// directories that appear, and hands everything to a Sink from a single
// goroutine.
package watcher

import (
	"log/slog"
	"runtime"

	"github.com/listenupapp/dirwatch/internal/errors"
)

// NewBackend returns the notification backend for kind.
// The native backend is picked at build time:
// - Linux: inotify, with rename pairing by cookie.
// - macOS: FSEvents through rjeczalik/notify.
// - Others: fsnotify, walking new directories to extend recursive watches.
func NewBackend(kind BackendKind, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch kind {
	case "", BackendNative:
		logger.Debug("using native notification backend", "platform", runtime.GOOS)
		return newNativeBackend(logger), nil
	case BackendPortable:
		logger.Debug("using fsnotify notification backend", "platform", runtime.GOOS)
		return newFsnotifyBackend(logger), nil
	default:
		return nil, errors.ValidationWithDetails("unknown notification backend", map[string]string{
			"backend": "must be one of: native portable",
		})
	}
}
