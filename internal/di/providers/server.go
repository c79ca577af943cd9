package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/dirwatch/internal/api"
	"github.com/listenupapp/dirwatch/internal/config"
	"github.com/listenupapp/dirwatch/internal/logger"
	"github.com/listenupapp/dirwatch/internal/monitor"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler  *api.Server
	listener net.Listener
	timeout  time.Duration
}

// ListenAddr returns the address the server is listening on.
func (h *HTTPServerHandle) ListenAddr() string {
	return h.listener.Addr().String()
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer h.handler.Close()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the SSE API server. The listener is bound
// before returning so address errors surface at bootstrap.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	registry := do.MustInvoke[*monitor.Registry](i)

	handler := api.NewServer(registry, sseHandle.Manager, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		SessionRate: cfg.Server.SessionRate,
	}, log.Logger)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		handler.Close()
		return nil, err
	}

	// No write timeout: event streams stay open and set their own deadlines.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Event streams never go idle, so close them as soon as shutdown begins.
	srv.RegisterOnShutdown(func() {
		if err := sseHandle.Shutdown(); err != nil {
			log.Warn("SSE manager shutdown", "error", err)
		}
	})

	// Start in background
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", ln.Addr().String())

	return &HTTPServerHandle{
		Server:   srv,
		handler:  handler,
		listener: ln,
		timeout:  shutdownTimeout(cfg.Server.ShutdownTimeout),
	}, nil
}
