package watcher

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink receives delivered events. Send reports false when the event could
// not be accepted; the session then counts it as dropped.
//
// A session calls Send from a single goroutine, in delivery order.
type Sink interface {
	Send(ctx context.Context, ev Event) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) bool

// Send calls f(ctx, ev).
func (f SinkFunc) Send(ctx context.Context, ev Event) bool {
	return f(ctx, ev)
}

// ChannelSink is a bounded queue between a session and its consumer.
// Send blocks while the buffer is full and gives up when the session stops.
type ChannelSink struct {
	ch        chan Event
	closeOnce sync.Once
}

// NewChannelSink creates a channel sink with the given buffer capacity.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity < 0 {
		capacity = 0
	}
	return &ChannelSink{ch: make(chan Event, capacity)}
}

// Send implements Sink.
func (s *ChannelSink) Send(ctx context.Context, ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Events returns the channel for receiving delivered events.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the event channel. Call it only after every session using
// the sink has stopped.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// WriterSink writes each event as one JSON tuple per line.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink creates a sink that encodes events to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Send implements Sink. A write error drops the event.
func (s *WriterSink) Send(_ context.Context, ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev) == nil
}
