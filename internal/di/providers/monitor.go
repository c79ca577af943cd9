package providers

import (
	"context"
	"io"
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/dirwatch/internal/config"
	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/logger"
	"github.com/listenupapp/dirwatch/internal/monitor"
	"github.com/listenupapp/dirwatch/internal/sse"
	"github.com/listenupapp/dirwatch/internal/watcher"
)

// ProvideRegistry provides the session registry. The registry implements
// do.Shutdownable and stops every remaining session on shutdown.
func ProvideRegistry(i do.Injector) (*monitor.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return monitor.NewRegistry(log.Logger, monitor.Config{
		Backend:        watcher.BackendKind(cfg.Watch.Backend),
		IgnorePatterns: cfg.Watch.Ignore,
		MaxPathLength:  cfg.Watch.MaxPathLength,
	}), nil
}

// EventStreamHandle pumps delivered events to an output as JSON tuples,
// one per line. Sessions feed it through its bounded channel.
type EventStreamHandle struct {
	*watcher.ChannelSink
	done chan struct{}
}

// Shutdown implements do.Shutdownable. Sessions writing to the stream must
// be stopped first; the container's dependency order guarantees it.
func (h *EventStreamHandle) Shutdown() error {
	h.Close()
	<-h.done
	return nil
}

// ProvideEventStream provides the stdout event stream used when no API
// listener is configured.
func ProvideEventStream(i do.Injector) (*EventStreamHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return newEventStream(os.Stdout, cfg.Watch.BufferSize, log), nil
}

func newEventStream(w io.Writer, capacity int, log *logger.Logger) *EventStreamHandle {
	h := &EventStreamHandle{
		ChannelSink: watcher.NewChannelSink(capacity),
		done:        make(chan struct{}),
	}
	out := watcher.NewWriterSink(w)

	go func() {
		defer close(h.done)
		for ev := range h.Events() {
			if !out.Send(context.Background(), ev) {
				log.Warn("failed to write event", "path", ev.Path)
			}
		}
	}()

	return h
}

// RootSessionsHandle tracks the sessions started for the configured roots.
type RootSessionsHandle struct {
	registry *monitor.Registry
	ids      []string
}

// IDs returns the ids of the configured root sessions in root order.
func (h *RootSessionsHandle) IDs() []string {
	return h.ids
}

// Shutdown implements do.Shutdownable.
func (h *RootSessionsHandle) Shutdown() error {
	var errs []error
	for _, sessionID := range h.ids {
		if err := h.registry.Stop(sessionID); err != nil && !errors.Is(err, errors.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProvideRootSessions starts one session per configured root. Events go to
// the SSE manager when the API is enabled, otherwise to the stdout stream.
func ProvideRootSessions(i do.Injector) (*RootSessionsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*monitor.Registry](i)

	var (
		sinkFor func(sessionID string) watcher.Sink
		emitter *sse.Manager
	)
	if cfg.Server.Listen != "" {
		emitter = do.MustInvoke[*SSEManagerHandle](i).Manager
		sinkFor = emitter.Sink
	} else {
		stream := do.MustInvoke[*EventStreamHandle](i)
		sinkFor = func(string) watcher.Sink { return stream }
	}

	h := &RootSessionsHandle{registry: registry}
	for _, root := range cfg.Watch.Roots {
		sessionID, err := registry.StartFunc(root, sinkFor, cfg.Watch.Recursive, cfg.Watch.Debug)
		if err != nil {
			log.Error("Failed to watch root", "root", root, "status", errors.StatusOf(err), "error", err)
			_ = h.Shutdown()
			return nil, err
		}
		h.ids = append(h.ids, sessionID)

		if emitter != nil {
			emitter.Emit(sse.NewSessionStartedEvent(sessionID, root, cfg.Watch.Recursive))
		}
	}

	log.Info("Watching configured roots", "count", len(h.ids))

	return h, nil
}
