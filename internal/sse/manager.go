package sse

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenupapp/dirwatch/internal/id"
	"github.com/listenupapp/dirwatch/internal/watcher"
)

const (
	queueSize         = 1000
	clientBufferSize  = 100
	heartbeatInterval = 30 * time.Second
)

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// SessionID limits delivery to one watch session.
	// Empty string means "receive all".
	SessionID string

	dropped atomic.Uint64
}

// Dropped returns how many events were skipped because the client's
// buffer was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// wants reports whether ev should go to this client. Events without a
// session (heartbeats) go to everyone.
func (c *Client) wants(ev Event) bool {
	return c.SessionID == "" || ev.SessionID == "" || ev.SessionID == c.SessionID
}

// Stats summarizes the manager for health reporting.
type Stats struct {
	Clients     int    `json:"clients"`
	Broadcast   uint64 `json:"broadcast"`
	Rejected    uint64 `json:"rejected"`
	ClientDrops uint64 `json:"client_drops"`
}

// Manager fans watch events out to connected SSE clients.
//
// Emit only queues; a single loop started with Start numbers each event
// and hands it to every interested client without blocking. A slow client
// loses events rather than holding up the watch sessions behind it.
type Manager struct {
	logger    *slog.Logger
	queue     chan Event
	heartbeat time.Duration
	seq       uint64 // owned by the Start loop

	mu      sync.RWMutex
	clients map[string]*Client

	// closed is set under closeMu before queue is closed.
	closeMu sync.RWMutex
	closed  bool
	loop    sync.WaitGroup

	broadcastCount atomic.Uint64
	rejected       atomic.Uint64
	clientDrops    atomic.Uint64
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		queue:     make(chan Event, queueSize),
		heartbeat: heartbeatInterval,
		clients:   make(map[string]*Client),
	}
}

// Start runs the broadcast loop until ctx is canceled or Shutdown is
// called. Run it once, in its own goroutine. Every client is closed when
// the loop exits.
func (m *Manager) Start(ctx context.Context) {
	m.loop.Add(1)
	defer m.loop.Done()
	defer m.closeAllClients()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	m.logger.Info("SSE manager starting")

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.seq++
			event.ID = m.seq
			m.broadcast(event)

		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			return
		}
	}
}

// Shutdown stops accepting events and waits, bounded by ctx, for the
// queued ones to reach clients. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		m.loop.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.logger.Info("SSE manager shutdown complete")
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timeout, some events may be lost")
	}
	return nil
}

// Emit queues an event for broadcasting. It reports false when the event
// was dropped because the queue is full or the manager is shut down.
func (m *Manager) Emit(event Event) bool {
	// The read lock keeps Shutdown from closing the queue mid-send.
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		m.rejected.Add(1)
		return false
	}

	select {
	case m.queue <- event:
		return true
	default:
		m.rejected.Add(1)
		m.logger.Error("SSE event queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.String("session_id", event.SessionID))
		return false
	}
}

// Sink returns a watcher.Sink that broadcasts one session's changes.
func (m *Manager) Sink(sessionID string) watcher.Sink {
	return watcher.SinkFunc(func(_ context.Context, ev watcher.Event) bool {
		return m.Emit(NewChangeEvent(sessionID, ev))
	})
}

func (m *Manager) broadcast(event Event) {
	var delivered, dropped, filtered int

	m.mu.RLock()
	for _, client := range m.clients {
		if !client.wants(event) {
			filtered++
			continue
		}
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			client.dropped.Add(1)
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.Uint64("event_id", event.ID))
		}
	}
	m.mu.RUnlock()

	if event.Type == EventHeartbeat {
		return
	}
	m.broadcastCount.Add(1)
	m.clientDrops.Add(uint64(dropped))
	m.logger.Debug("event broadcast",
		slog.String("event_type", string(event.Type)),
		slog.Uint64("event_id", event.ID),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("filtered", filtered),
			slog.Int("dropped", dropped)))
}

// Connect registers a new SSE client and returns the client object.
// With a non-empty sessionID only that session's events are delivered.
func (m *Manager) Connect(sessionID string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		SessionID:   sessionID,
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("session_id", sessionID),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels. Unknown ids are
// ignored, so a client closed by shutdown can still disconnect.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	closeClient(client)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Uint64("dropped", client.Dropped()),
		slog.Int("total_clients", total))
}

// Clients returns an iterator over all connected clients.
func (m *Manager) Clients() iter.Seq[*Client] {
	return func(yield func(*Client) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		for _, client := range m.clients {
			if !yield(client) {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Clients:     m.ClientCount(),
		Broadcast:   m.broadcastCount.Load(),
		Rejected:    m.rejected.Load(),
		ClientDrops: m.clientDrops.Load(),
	}
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		closeClient(client)
	}
	m.logger.Info("all SSE clients disconnected", slog.Int("count", len(clients)))
}

func closeClient(c *Client) {
	close(c.Done)
	close(c.EventChan)
}
