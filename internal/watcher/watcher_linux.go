//go:build linux

package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/listenupapp/dirwatch/internal/errors"
	"golang.org/x/sys/unix"
)

// inotifyMask selects the changes reported for every watched directory.
// IN_MOVED_FROM and IN_MOVED_TO carry a shared cookie that lets a rename
// inside the tree be reported as a single move.
const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR

func newNativeBackend(logger *slog.Logger) Backend {
	return &inotifyBackend{logger: logger}
}

// inotifyBackend implements Backend using Linux inotify.
type inotifyBackend struct {
	logger *slog.Logger
}

// inotifySubscription is one inotify instance covering a root.
type inotifySubscription struct {
	logger    *slog.Logger
	root      string
	recursive bool
	fd        int
	wake      [2]int

	mu      sync.Mutex
	watches map[string]int
	wdPaths map[int]string

	notifications chan Notification
	errors        chan error
	done          chan struct{}
	closeOnce     sync.Once
	closeErr      error
	wg            sync.WaitGroup
}

// Subscribe implements Backend.
func (b *inotifyBackend) Subscribe(root string, recursive bool) (Subscription, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, errors.RegistrationFailed(err, "failed to initialize inotify")
	}

	s := &inotifySubscription{
		logger:        b.logger,
		root:          filepath.Clean(root),
		recursive:     recursive,
		fd:            fd,
		watches:       make(map[string]int),
		wdPaths:       make(map[int]string),
		notifications: make(chan Notification, 100),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
	}

	if err := unix.Pipe2(s.wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, errors.RegistrationFailed(err, "failed to create wake pipe")
	}

	if err := s.addWatch(s.root); err != nil {
		s.closeFDs()
		return nil, errors.RegistrationFailed(err, "failed to watch "+s.root)
	}
	if recursive {
		s.watchTree(s.root)
	}

	s.wg.Add(1)
	go s.readEvents()

	return s, nil
}

// watchTree adds a watch for every directory below dir.
// Failures are logged and the walk continues.
func (s *inotifySubscription) watchTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("failed to access path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := s.addWatch(p); err != nil {
			s.logger.Warn("failed to add watch", "path", p, "error", err)
			return filepath.SkipDir
		}
		return nil
	})
}

// addWatch adds an inotify watch for a path.
func (s *inotifySubscription) addWatch(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Always ask the kernel: the path may now name a different inode. The
	// same inode yields the wd it already has.
	wd, err := unix.InotifyAddWatch(s.fd, path, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	if old, ok := s.wdPaths[wd]; ok && old != path && s.watches[old] == wd {
		delete(s.watches, old)
	}
	s.watches[path] = wd
	s.wdPaths[wd] = path
	return nil
}

// watchesWithin returns the wds currently registered at or below dir.
func (s *inotifySubscription) watchesWithin(dir string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wds []int
	for path, wd := range s.watches {
		if within(path, dir) {
			wds = append(wds, wd)
		}
	}
	return wds
}

// unwatch removes the given wds. A path that has since been claimed by a
// newer watch keeps it.
func (s *inotifySubscription) unwatch(wds []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, wd := range wds {
		path, ok := s.wdPaths[wd]
		if !ok {
			continue
		}
		//nolint:gosec // G115: wd is always a small non-negative int from inotify
		_, _ = unix.InotifyRmWatch(s.fd, uint32(wd))
		delete(s.wdPaths, wd)
		if s.watches[path] == wd {
			delete(s.watches, path)
		}
	}
}

// renameTree rewrites the table after a directory moved inside the tree.
// The watches themselves follow the inode and stay valid.
func (s *inotifySubscription) renameTree(oldDir, newDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := make(map[string]int)
	for path, wd := range s.watches {
		if within(path, oldDir) {
			moved[newDir+path[len(oldDir):]] = wd
			delete(s.watches, path)
		}
	}
	for path, wd := range moved {
		s.watches[path] = wd
		s.wdPaths[wd] = path
	}
}

// forget drops a watch the kernel has already removed.
func (s *inotifySubscription) forget(wd int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.wdPaths[wd]; ok {
		delete(s.wdPaths, wd)
		if s.watches[path] == wd {
			delete(s.watches, path)
		}
	}
}

func (s *inotifySubscription) pathOf(wd int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.wdPaths[wd]
	return path, ok
}

// readEvents blocks in poll(2) on the inotify fd and the wake pipe.
func (s *inotifySubscription) readEvents() {
	defer s.wg.Done()

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},      //nolint:gosec // G115: fds are small
		{Fd: int32(s.wake[0]), Events: unix.POLLIN}, //nolint:gosec // G115: fds are small
	}

	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			s.reportError(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}

		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			s.reportError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}

		if n < unix.SizeofInotifyEvent {
			continue
		}

		if !s.parseEvents(buf[:n]) {
			return
		}
	}
}

// batched is a notification waiting for the end of its read batch.
type batched struct {
	n     Notification
	drop  bool
	isDir bool
}

// parseEvents translates one read batch. A rename whose halves share a
// cookie within the batch becomes one OpMove; an unmatched half becomes a
// delete or a create. It returns false once the subscription is closing.
func (s *inotifySubscription) parseEvents(buf []byte) bool {
	out := make([]batched, 0, 16)
	movedFrom := make(map[uint32]int)
	// wds below each unpaired directory, taken before a same-named
	// replacement can be watched later in the batch.
	departed := make(map[uint32][]int)

	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(event.Len)
		if offset > len(buf) {
			break
		}

		mask := event.Mask
		wd := int(event.Wd)

		if mask&unix.IN_Q_OVERFLOW != 0 {
			s.reportError(errors.Internal("inotify queue overflow, events were lost"))
			out = append(out, batched{n: Notification{Op: OpOther, Path: s.root, Native: mask}})
			continue
		}
		if mask&unix.IN_IGNORED != 0 {
			s.forget(wd)
			continue
		}

		dir, ok := s.pathOf(wd)
		if !ok {
			continue
		}

		path := dir
		if event.Len > 0 {
			nameBytes := buf[nameStart:offset]
			path = filepath.Join(dir, string(nameBytes[:clen(nameBytes)]))
		}
		isDir := mask&unix.IN_ISDIR != 0

		switch {
		case mask&unix.IN_CREATE != 0:
			if isDir && s.recursive {
				s.watchTree(path)
			}
			out = append(out, batched{n: Notification{Op: OpCreate, Path: path, Native: mask}, isDir: isDir})

		case mask&unix.IN_MOVED_FROM != 0:
			movedFrom[event.Cookie] = len(out)
			if isDir {
				departed[event.Cookie] = s.watchesWithin(path)
			}
			out = append(out, batched{n: Notification{Op: OpDelete, Path: path, Native: mask}, isDir: isDir})

		case mask&unix.IN_MOVED_TO != 0:
			if i, paired := movedFrom[event.Cookie]; paired {
				delete(movedFrom, event.Cookie)
				delete(departed, event.Cookie)
				out[i].drop = true
				oldPath := out[i].n.Path
				if isDir {
					s.renameTree(oldPath, path)
				}
				out = append(out, batched{n: Notification{Op: OpMove, Path: path, OldPath: oldPath, Native: mask}, isDir: isDir})
				continue
			}
			if isDir && s.recursive {
				s.watchTree(path)
			}
			out = append(out, batched{n: Notification{Op: OpCreate, Path: path, Native: mask}, isDir: isDir})

		case mask&unix.IN_MODIFY != 0:
			out = append(out, batched{n: Notification{Op: OpModify, Path: path, Native: mask}})

		case mask&unix.IN_DELETE != 0:
			out = append(out, batched{n: Notification{Op: OpDelete, Path: path, Native: mask}, isDir: isDir})

		case mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0:
			// Subdirectories are reported by their parent's watch.
			if path == s.root {
				out = append(out, batched{n: Notification{Op: OpDelete, Path: path, Native: mask}, isDir: true})
			}

		default:
			out = append(out, batched{n: Notification{Op: OpOther, Path: path, Native: mask}})
		}
	}

	// Directories moved out of the tree keep their watches until removed.
	for cookie := range movedFrom {
		s.unwatch(departed[cookie])
	}

	for _, b := range out {
		if b.drop {
			continue
		}
		if !s.emit(b.n) {
			return false
		}
	}
	return true
}

func (s *inotifySubscription) emit(n Notification) bool {
	select {
	case s.notifications <- n:
		return true
	case <-s.done:
		return false
	}
}

func (s *inotifySubscription) reportError(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warn("backend error channel full", "error", err)
	}
}

// Notifications implements Subscription.
func (s *inotifySubscription) Notifications() <-chan Notification {
	return s.notifications
}

// Errors implements Subscription.
func (s *inotifySubscription) Errors() <-chan error {
	return s.errors
}

// Close implements Subscription.
func (s *inotifySubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = unix.Write(s.wake[1], []byte{0})
		s.wg.Wait()
		s.closeErr = s.closeFDs()
		close(s.notifications)
		close(s.errors)
	})
	return s.closeErr
}

func (s *inotifySubscription) closeFDs() error {
	err := unix.Close(s.fd)
	_ = unix.Close(s.wake[0])
	_ = unix.Close(s.wake[1])
	return err
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
