package sse

import (
	"time"

	"github.com/listenupapp/dirwatch/internal/watcher"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventChange carries one filesystem change as its wire tuple.
	EventChange EventType = "fs.change"

	// EventSessionStarted is sent when a watch session is registered.
	EventSessionStarted EventType = "session.started"
	// EventSessionStopped is sent when a watch session is stopped.
	EventSessionStopped EventType = "session.stopped"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	// ID is assigned by the manager when the event is broadcast and
	// increases by one per event. A client that sees a gap missed events.
	// Heartbeats carry no id.
	ID        uint64    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// SessionID names the watch session the event belongs to. Clients that
	// subscribed to one session only receive its events.
	SessionID string `json:"session_id,omitempty"`
}

// SessionEventData is the data payload for session lifecycle events.
type SessionEventData struct {
	Root      string `json:"root"`
	Recursive bool   `json:"recursive"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewChangeEvent creates an fs.change event. The data is the change tuple,
// e.g. [0,1,"/w/a.txt",null].
func NewChangeEvent(sessionID string, change watcher.Event) Event {
	return Event{
		Type:      EventChange,
		SessionID: sessionID,
		Data:      change,
		Timestamp: time.Now(),
	}
}

// NewSessionStartedEvent creates a session.started event.
func NewSessionStartedEvent(sessionID, root string, recursive bool) Event {
	return Event{
		Type:      EventSessionStarted,
		SessionID: sessionID,
		Data:      SessionEventData{Root: root, Recursive: recursive},
		Timestamp: time.Now(),
	}
}

// NewSessionStoppedEvent creates a session.stopped event.
func NewSessionStoppedEvent(sessionID, root string) Event {
	return Event{
		Type:      EventSessionStopped,
		SessionID: sessionID,
		Data:      SessionEventData{Root: root},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
