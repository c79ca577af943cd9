package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// writeTimeout is reset after every frame so a hung client is dropped.
	writeTimeout = 60 * time.Second
	// retryMillis tells EventSource clients how long to wait before reconnecting.
	retryMillis = 3000
)

// Handler streams change events at GET /api/v1/events.
// The optional "session" query parameter limits the stream to one session.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Check if request context is already canceled (early client disconnect).
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	fw := &frameWriter{w: w, rc: http.NewResponseController(w), logger: h.logger}
	if err := fw.rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session")
	client, err := h.manager.Connect(sessionID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	fw.retry = retryMillis
	if err := fw.write(0, "connected", map[string]string{
		"client_id":  client.ID,
		"session_id": sessionID,
		"message":    "SSE connection established",
	}); err != nil {
		log.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	h.stream(r.Context(), fw, client, log)
}

// stream copies the client's events to the connection until either side
// goes away. Heartbeats come from the manager.
func (h *Handler) stream(ctx context.Context, fw *frameWriter, client *Client, log *slog.Logger) {
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				log.Info("client closed by manager")
				return
			}
			if err := fw.write(event.ID, string(event.Type), event); err != nil {
				// Client disconnect is normal, not an error condition.
				log.Info("client disconnected during send")
				return
			}

		case <-client.Done:
			log.Info("client closed by manager")
			return

		case <-ctx.Done():
			log.Info("client context canceled")
			return
		}
	}
}

// frameWriter writes server-sent event frames to one connection.
type frameWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
	buf    bytes.Buffer

	// retry is sent with the next frame only.
	retry int
}

// write sends one frame and flushes it. A zero id is omitted.
func (f *frameWriter) write(id uint64, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	f.buf.Reset()
	if f.retry > 0 {
		f.buf.WriteString("retry: " + strconv.Itoa(f.retry) + "\n")
		f.retry = 0
	}
	if id != 0 {
		f.buf.WriteString("id: " + strconv.FormatUint(id, 10) + "\n")
	}
	f.buf.WriteString("event: " + eventType + "\n")
	f.buf.WriteString("data: ")
	f.buf.Write(payload)
	f.buf.WriteString("\n\n")

	if _, err := f.w.Write(f.buf.Bytes()); err != nil {
		return err
	}
	if err := f.rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so hung connections time out.
	if err := f.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		f.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
