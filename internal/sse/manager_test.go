package sse

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/listenupapp/dirwatch/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestManager_BroadcastFiltersBySession(t *testing.T) {
	m := NewManager(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	all, err := m.Connect("")
	require.NoError(t, err)
	onlyA, err := m.Connect("ws-a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	change := watcher.Event{Action: watcher.ActionCreated, Kind: watcher.KindFile, Path: "/w/b.txt"}
	require.True(t, m.Sink("ws-b").Send(ctx, change))
	require.True(t, m.Sink("ws-a").Send(ctx, change))

	first := receive(t, all)
	assert.Equal(t, "ws-b", first.SessionID)
	assert.Equal(t, EventChange, first.Type)
	assert.Equal(t, change, first.Data)
	assert.Equal(t, "ws-a", receive(t, all).SessionID)

	assert.Equal(t, "ws-a", receive(t, onlyA).SessionID)
}

func TestManager_LifecycleEventsReachEveryone(t *testing.T) {
	m := NewManager(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("ws-a")
	require.NoError(t, err)

	require.True(t, m.Emit(NewSessionStartedEvent("ws-a", "/w", true)))

	ev := receive(t, c)
	assert.Equal(t, EventSessionStarted, ev.Type)
	assert.Equal(t, SessionEventData{Root: "/w", Recursive: true}, ev.Data)
}

func TestManager_Disconnect(t *testing.T) {
	m := NewManager(discardLogger())

	c, err := m.Connect("")
	require.NoError(t, err)
	assert.Contains(t, c.ID, "sse-")

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)

	assert.Zero(t, m.ClientCount())
	_, ok := <-c.Done
	assert.False(t, ok)
}

func TestManager_EmitAfterShutdownDrops(t *testing.T) {
	m := NewManager(discardLogger())
	go m.Start(context.Background())

	c, err := m.Connect("")
	require.NoError(t, err)

	// Wait for the broadcast loop before shutting it down.
	require.True(t, m.Emit(NewHeartbeatEvent()))
	assert.Equal(t, EventHeartbeat, receive(t, c).Type)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))

	assert.False(t, m.Emit(NewHeartbeatEvent()))
	assert.False(t, m.Sink("ws-a").Send(ctx, watcher.Event{Path: "/w/a"}))

	_, ok := <-c.Done
	assert.False(t, ok, "shutdown closes clients")
}

func TestManager_EmitWhenQueueFull(t *testing.T) {
	m := NewManager(discardLogger())
	m.queue = make(chan Event, 1)

	assert.True(t, m.Emit(NewHeartbeatEvent()))
	assert.False(t, m.Emit(NewHeartbeatEvent()))
	assert.Equal(t, uint64(1), m.Stats().Rejected)
}

func TestManager_NumbersEventsInBroadcastOrder(t *testing.T) {
	m := NewManager(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("")
	require.NoError(t, err)

	require.True(t, m.Emit(NewSessionStartedEvent("ws-a", "/w", true)))
	require.True(t, m.Sink("ws-a").Send(ctx, watcher.Event{Path: "/w/a"}))
	require.True(t, m.Emit(NewSessionStoppedEvent("ws-a", "/w")))

	for want := uint64(1); want <= 3; want++ {
		assert.Equal(t, want, receive(t, c).ID)
	}
	assert.Equal(t, uint64(3), m.Stats().Broadcast)
}

func TestManager_SlowClientDrops(t *testing.T) {
	m := NewManager(discardLogger())

	slow, err := m.Connect("")
	require.NoError(t, err)

	// Broadcast directly so the test controls timing.
	for i := range clientBufferSize + 2 {
		m.broadcast(Event{ID: uint64(i + 1), Type: EventChange})
	}

	assert.Equal(t, uint64(2), slow.Dropped())
	stats := m.Stats()
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, uint64(2), stats.ClientDrops)
	assert.Equal(t, uint64(1), receive(t, slow).ID, "buffered events keep their order")
}

func TestManager_Clients(t *testing.T) {
	m := NewManager(discardLogger())
	for range 3 {
		_, err := m.Connect("")
		require.NoError(t, err)
	}

	count := 0
	for range m.Clients() {
		count++
	}
	assert.Equal(t, 3, count)
}
