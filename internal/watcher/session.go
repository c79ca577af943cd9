package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenupapp/dirwatch/internal/errors"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateIdle is a session that has not been started.
	StateIdle State = iota
	// StateRunning is a session with a live subscription.
	StateRunning
	// StateStopped is terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats are the delivery counters of a session.
type Stats struct {
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Ignored       uint64 `json:"ignored"`
	Synthesized   uint64 `json:"synthesized"`
	PartialWalks  uint64 `json:"partial_walks"`
	BackendErrors uint64 `json:"backend_errors"`
}

// Session watches one root and delivers normalized events to a sink.
//
// A session goes Idle -> Running -> Stopped exactly once. All events are
// delivered from one goroutine, so a sink sees them in the order the
// backend reported them, with each synthesized subtree directly after the
// event that triggered it.
type Session struct {
	backend Backend
	sink    Sink
	logger  *slog.Logger
	opts    Options

	mu      sync.Mutex
	state   State
	root    string
	sub     Subscription
	cancel  context.CancelFunc
	ignore  *ignoreMatcher
	started time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	delivered     atomic.Uint64
	dropped       atomic.Uint64
	ignored       atomic.Uint64
	synthesized   atomic.Uint64
	partialWalks  atomic.Uint64
	backendErrors atomic.Uint64

	dropWarn rate.Sometimes
}

// NewSession creates an idle session. Nothing is registered with the OS
// until Start.
func NewSession(backend Backend, sink Sink, logger *slog.Logger, opts Options) *Session {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		backend:  backend,
		sink:     sink,
		logger:   logger,
		opts:     opts,
		dropWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start validates root, subscribes to it, and begins delivery.
// On error the session stays Idle and nothing is registered.
func (s *Session) Start(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.SessionState("session already " + s.state.String())
	}

	abs, err := s.validate(root)
	if err != nil {
		return err
	}

	ignore, err := compileIgnore(abs, s.opts.IgnorePatterns)
	if err != nil {
		return err
	}

	if s.backend == nil {
		return errors.RegistrationFailed(nil, "no notification backend configured")
	}

	sub, err := s.backend.Subscribe(abs, s.opts.Recursive)
	if err != nil {
		if errors.Is(err, errors.ErrRegistrationFailed) {
			return err
		}
		return errors.RegistrationFailed(err, "failed to subscribe to "+abs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.root = abs
	s.sub = sub
	s.cancel = cancel
	s.ignore = ignore
	s.started = time.Now()
	s.state = StateRunning
	s.running.Store(true)

	s.wg.Add(1)
	go s.deliver(ctx, sub, NewNormalizer(abs))

	s.logger.Info("started monitoring",
		"root", abs,
		"recursive", s.opts.Recursive,
		"debug", s.opts.Debug,
	)
	return nil
}

// validate checks root and returns its absolute form.
func (s *Session) validate(root string) (string, error) {
	if root == "" {
		return "", errors.InvalidPath(errors.ReasonEmpty, "watch root is empty")
	}
	if s.sink == nil {
		return "", errors.SinkUnavailable("no event sink configured")
	}
	if err := s.checkLength(root); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.InvalidPathf(errors.ReasonNotFound, "cannot resolve %s: %v", root, err)
	}
	// A relative root grows when resolved.
	if err := s.checkLength(abs); err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.InvalidPathf(errors.ReasonNotFound, "watch root %s is not accessible: %v", abs, err)
	}
	if !info.IsDir() {
		return "", errors.InvalidPathf(errors.ReasonNotDirectory, "watch root %s is not a directory", abs)
	}

	return abs, nil
}

// checkLength rejects a path at or above the configured limit.
func (s *Session) checkLength(path string) error {
	if len(path) >= s.opts.MaxPathLength {
		return errors.InvalidPathf(errors.ReasonTooLong,
			"watch root %q is %d bytes, limit is %d", path, len(path), s.opts.MaxPathLength)
	}
	return nil
}

// Stop unregisters the subscription and waits for in-flight delivery to
// finish. No event reaches the sink after Stop returns. Stop is safe to
// call any number of times; stopping an idle session just retires it.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateIdle:
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}

	s.state = StateStopped
	s.running.Store(false)
	cancel, sub := s.cancel, s.sub
	s.sub = nil
	s.mu.Unlock()

	cancel()
	err := sub.Close()
	s.wg.Wait()

	stats := s.Stats()
	s.logger.Info("stopped monitoring",
		"root", s.root,
		"uptime", time.Since(s.started).Round(time.Millisecond),
		slog.Group("stats",
			"delivered", stats.Delivered,
			"dropped", stats.Dropped,
			"synthesized", stats.Synthesized,
		),
	)

	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close subscription")
	}
	return nil
}

// Interrupt asks the session to stop delivering without tearing it down.
// It only clears the running flag, so it is safe to call from a signal
// handler. Stop is still required to release the subscription.
func (s *Session) Interrupt() {
	s.running.Store(false)
}

// Running reports whether the session is started and not interrupted.
func (s *Session) Running() bool {
	return s.running.Load()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Root returns the absolute watch root, or "" before Start.
func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Options returns the options the session was created with.
func (s *Session) Options() Options {
	return s.opts
}

// Stats returns a snapshot of the delivery counters.
func (s *Session) Stats() Stats {
	return Stats{
		Delivered:     s.delivered.Load(),
		Dropped:       s.dropped.Load(),
		Ignored:       s.ignored.Load(),
		Synthesized:   s.synthesized.Load(),
		PartialWalks:  s.partialWalks.Load(),
		BackendErrors: s.backendErrors.Load(),
	}
}

// deliver is the session's only delivery goroutine.
func (s *Session) deliver(ctx context.Context, sub Subscription, norm *Normalizer) {
	defer s.wg.Done()

	notes := sub.Notifications()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return

		case n, ok := <-notes:
			if !ok {
				return
			}
			s.handle(ctx, norm, n)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.backendErrors.Add(1)
			s.logger.Warn("notification backend error", "root", norm.root, "error", err)
		}
	}
}

// handle delivers one notification and, for new directories, their subtree.
// Notifications that arrive while interrupted are drained and discarded.
func (s *Session) handle(ctx context.Context, norm *Normalizer, n Notification) {
	if !s.running.Load() {
		return
	}

	if s.opts.Debug {
		s.logger.Debug("raw notification",
			"op", n.Op.String(),
			"path", n.Path,
			"old_path", n.OldPath,
			"native", n.Native,
		)
	}

	ev, synthesize := norm.Normalize(n)
	s.send(ctx, ev)
	if !synthesize {
		return
	}

	for child := range Synthesize(ev.Action, ev.Path, ev.OldPath, s.onPartial) {
		if !s.running.Load() || ctx.Err() != nil {
			return
		}
		s.synthesized.Add(1)
		s.send(ctx, child)
	}
}

func (s *Session) send(ctx context.Context, ev Event) {
	if !s.running.Load() {
		return
	}

	if s.ignore.shouldIgnore(ev.Path) {
		s.ignored.Add(1)
		return
	}

	if s.opts.Debug {
		s.logger.Debug("event", "action", ev.Action.String(), "kind", ev.Kind.String(), "path", ev.Path, "old_path", ev.OldPath)
	}

	if s.sink.Send(ctx, ev) {
		s.delivered.Add(1)
		return
	}

	dropped := s.dropped.Add(1)
	if ctx.Err() != nil {
		return
	}
	s.dropWarn.Do(func() {
		s.logger.Warn("sink rejected event, dropping",
			"path", ev.Path,
			"error", errors.AllocationFailure("sink did not accept event"),
			"dropped", dropped,
		)
	})
}

func (s *Session) onPartial(path string, err error) {
	s.partialWalks.Add(1)
	if s.opts.Debug {
		s.logger.Debug("subtree walk incomplete", "error", errors.PartialSynthesis(err, path))
	}
}
