package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/listenupapp/dirwatch/internal/errors"
)

// fsnotifyBackend implements Backend on top of fsnotify. It builds on every
// platform and is the native backend where no dedicated one exists.
//
// fsnotify reports a rename as a bare Rename on the old path followed by a
// Create on the new one, so moves reach the session as delete plus create.
type fsnotifyBackend struct {
	logger *slog.Logger
}

func newFsnotifyBackend(logger *slog.Logger) *fsnotifyBackend {
	return &fsnotifyBackend{logger: logger}
}

// fsnotifySubscription is one fsnotify watcher covering a root.
type fsnotifySubscription struct {
	logger    *slog.Logger
	watcher   *fsnotify.Watcher
	root      string
	recursive bool

	notifications chan Notification
	errors        chan error
	done          chan struct{}
	closeOnce     sync.Once
	closeErr      error
	wg            sync.WaitGroup
}

// Subscribe implements Backend.
func (b *fsnotifyBackend) Subscribe(root string, recursive bool) (Subscription, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.RegistrationFailed(err, "failed to create fsnotify watcher")
	}

	s := &fsnotifySubscription{
		logger:        b.logger,
		watcher:       w,
		root:          filepath.Clean(root),
		recursive:     recursive,
		notifications: make(chan Notification, 100),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
	}

	if err := w.Add(s.root); err != nil {
		_ = w.Close()
		return nil, errors.RegistrationFailed(err, "failed to watch "+s.root)
	}
	if recursive {
		s.watchTree(s.root, false)
	}

	s.wg.Add(1)
	go s.processEvents()

	return s, nil
}

// watchTree adds every directory below dir. When includeDir is set, dir
// itself is added too. Failures below the root are logged and skipped.
func (s *fsnotifySubscription) watchTree(dir string, includeDir bool) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("failed to access path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || (p == dir && !includeDir) {
			return nil
		}
		if err := s.watcher.Add(p); err != nil {
			s.logger.Warn("failed to add watch", "path", p, "error", err)
			return filepath.SkipDir
		}
		return nil
	})
}

// processEvents processes fsnotify events.
func (s *fsnotifySubscription) processEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.emit(s.translate(event)) {
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; the consumer can only rescan.
				if !s.emit(Notification{Op: OpOther, Path: s.root}) {
					return
				}
			}
			s.reportError(err)
		}
	}
}

// translate maps an fsnotify event, extending the watch to new directories.
func (s *fsnotifySubscription) translate(event fsnotify.Event) Notification {
	n := Notification{Path: event.Name, Native: uint32(event.Op)}

	switch {
	case event.Has(fsnotify.Create):
		n.Op = OpCreate
		if s.recursive && Classify(event.Name) == KindDirectory {
			s.watchTree(event.Name, true)
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		n.Op = OpDelete
	case event.Has(fsnotify.Write):
		n.Op = OpModify
	default:
		n.Op = OpOther
	}

	return n
}

func (s *fsnotifySubscription) emit(n Notification) bool {
	select {
	case s.notifications <- n:
		return true
	case <-s.done:
		return false
	}
}

func (s *fsnotifySubscription) reportError(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warn("backend error channel full", "error", err)
	}
}

// Notifications implements Subscription.
func (s *fsnotifySubscription) Notifications() <-chan Notification {
	return s.notifications
}

// Errors implements Subscription.
func (s *fsnotifySubscription) Errors() <-chan error {
	return s.errors
}

// Close implements Subscription.
func (s *fsnotifySubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.watcher.Close()
		s.wg.Wait()
		close(s.notifications)
		close(s.errors)
	})
	return s.closeErr
}
