//go:build darwin

package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/rjeczalik/notify"
)

func newNativeBackend(logger *slog.Logger) Backend {
	return &fseventsBackend{logger: logger}
}

// fseventsBackend implements Backend with FSEvents through rjeczalik/notify.
// FSEvents watches recursively by itself and reports renames as one
// event per side without pairing, so each side is resolved by whether the
// path still exists.
type fseventsBackend struct {
	logger *slog.Logger
}

type fseventsSubscription struct {
	logger   *slog.Logger
	root     string
	realRoot string
	events   chan notify.EventInfo

	notifications chan Notification
	errors        chan error
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// Subscribe implements Backend.
func (b *fseventsBackend) Subscribe(root string, recursive bool) (Subscription, error) {
	root = filepath.Clean(root)

	// FSEvents reports resolved paths such as /private/var for /var.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}

	s := &fseventsSubscription{
		logger:        b.logger,
		root:          root,
		realRoot:      realRoot,
		events:        make(chan notify.EventInfo, 512),
		notifications: make(chan Notification, 100),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
	}

	target := root
	if recursive {
		target = filepath.Join(root, "...")
	}
	if err := notify.Watch(target, s.events, notify.Create, notify.Remove, notify.Write, notify.Rename); err != nil {
		return nil, errors.RegistrationFailed(err, "failed to watch "+root)
	}

	s.wg.Add(1)
	go s.processEvents()

	return s, nil
}

func (s *fseventsSubscription) processEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case ei := <-s.events:
			select {
			case s.notifications <- s.translate(ei):
			case <-s.done:
				return
			}
		}
	}
}

func (s *fseventsSubscription) translate(ei notify.EventInfo) Notification {
	n := Notification{Path: s.rebase(ei.Path()), Native: uint32(ei.Event())}

	switch ev := ei.Event(); {
	case ev&notify.Rename != 0:
		if _, err := os.Lstat(n.Path); err == nil {
			n.Op = OpCreate
		} else {
			n.Op = OpDelete
		}
	case ev&notify.Create != 0:
		n.Op = OpCreate
	case ev&notify.Remove != 0:
		n.Op = OpDelete
	case ev&notify.Write != 0:
		n.Op = OpModify
	default:
		n.Op = OpOther
	}

	return n
}

// rebase maps a resolved path back under the root as the caller spelled it.
func (s *fseventsSubscription) rebase(path string) string {
	if s.realRoot == s.root {
		return path
	}
	if path == s.realRoot || strings.HasPrefix(path, s.realRoot+"/") {
		return s.root + path[len(s.realRoot):]
	}
	return path
}

// Notifications implements Subscription.
func (s *fseventsSubscription) Notifications() <-chan Notification {
	return s.notifications
}

// Errors implements Subscription. FSEvents reports no runtime errors
// through notify, so the channel only closes.
func (s *fseventsSubscription) Errors() <-chan error {
	return s.errors
}

// Close implements Subscription.
func (s *fseventsSubscription) Close() error {
	s.closeOnce.Do(func() {
		notify.Stop(s.events)
		close(s.done)
		s.wg.Wait()
		close(s.notifications)
		close(s.errors)
	})
	return nil
}
