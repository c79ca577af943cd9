// Package monitor keeps the set of active watch sessions and exposes the
// start/stop boundary used by the CLI and the HTTP API.
package monitor

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/id"
	"github.com/listenupapp/dirwatch/internal/logger"
	"github.com/listenupapp/dirwatch/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// Config holds the settings shared by every session in a registry.
type Config struct {
	Backend        watcher.BackendKind
	IgnorePatterns []string
	MaxPathLength  int

	// DebugWriter receives diagnostics from sessions started with debug
	// enabled (default: stderr).
	DebugWriter io.Writer
}

// Info describes one registered session.
type Info struct {
	ID        string        `json:"id"`
	Root      string        `json:"root"`
	Recursive bool          `json:"recursive"`
	Debug     bool          `json:"debug"`
	State     string        `json:"state"`
	Running   bool          `json:"running"`
	StartedAt time.Time     `json:"started_at"`
	Stats     watcher.Stats `json:"stats"`
}

type entry struct {
	id        string
	session   *watcher.Session
	startedAt time.Time
}

// Registry owns watch sessions keyed by id.
type Registry struct {
	logger      *slog.Logger
	debugLogger *slog.Logger
	cfg         Config

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger, cfg Config) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DebugWriter == nil {
		cfg.DebugWriter = os.Stderr
	}
	debug := logger.New(logger.Config{
		Writer: cfg.DebugWriter,
		Level:  slog.LevelDebug,
	})

	return &Registry{
		logger:      log,
		debugLogger: debug.Logger,
		cfg:         cfg,
		sessions:    make(map[string]*entry),
	}
}

// Start creates a session for root, starts it, and registers it.
// Nothing is registered when Start fails.
func (r *Registry) Start(root string, sink watcher.Sink, recursive, debug bool) (string, error) {
	return r.StartFunc(root, func(string) watcher.Sink { return sink }, recursive, debug)
}

// StartFunc is Start for sinks that need the session id, such as the SSE
// manager. sinkFor is called once, before the session starts.
func (r *Registry) StartFunc(root string, sinkFor func(sessionID string) watcher.Sink, recursive, debug bool) (string, error) {
	backend, err := watcher.NewBackend(r.cfg.Backend, r.logger)
	if err != nil {
		return "", err
	}

	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to generate session id")
	}
	sink := sinkFor(sessionID)

	log := r.logger
	if debug {
		log = r.debugLogger
	}

	session := watcher.NewSession(backend, sink, log.With("session", sessionID), watcher.Options{
		Recursive:      recursive,
		Debug:          debug,
		IgnorePatterns: r.cfg.IgnorePatterns,
		MaxPathLength:  r.cfg.MaxPathLength,
	})
	if err := session.Start(root); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[sessionID] = &entry{id: sessionID, session: session, startedAt: time.Now()}
	r.mu.Unlock()

	return sessionID, nil
}

// Stop stops and unregisters a session.
func (r *Registry) Stop(sessionID string) error {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return errors.NotFoundf("session %s not found", sessionID)
	}
	return e.session.Stop()
}

// Get returns the session registered under id.
func (r *Registry) Get(sessionID string) (*watcher.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Describe returns the Info for one session.
func (r *Registry) Describe(sessionID string) (Info, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return Info{}, errors.NotFoundf("session %s not found", sessionID)
	}
	return describe(e), nil
}

// List returns every registered session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		infos = append(infos, describe(e))
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// InterruptAll clears the running flag of every session. It does not
// block on teardown.
func (r *Registry) InterruptAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.sessions {
		e.session.Interrupt()
	}
}

// StopAll stops every session in parallel and empties the registry.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	clear(r.sessions)
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(e.session.Stop)
	}
	return g.Wait()
}

// Shutdown implements do.Shutdowner.
func (r *Registry) Shutdown() error {
	return r.StopAll()
}

func describe(e *entry) Info {
	opts := e.session.Options()
	return Info{
		ID:        e.id,
		Root:      e.session.Root(),
		Recursive: opts.Recursive,
		Debug:     opts.Debug,
		State:     e.session.State().String(),
		Running:   e.session.Running(),
		StartedAt: e.startedAt,
		Stats:     e.session.Stats(),
	}
}
