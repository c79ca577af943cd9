package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/listenupapp/dirwatch/internal/http/response"
)

// requestLogger logs each request through the structured logger.
// The event stream is logged on connect only since it stays open.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// limitSessionStarts rate limits session creation per client IP. Every
// session holds OS watch descriptors, so starts are the expensive call.
func (s *Server) limitSessionStarts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.startLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if !s.startLimiter.Allow(key) {
			s.logger.Warn("Rate limit exceeded", "ip", key, "path", r.URL.Path)
			response.TooManyRequests(w, "Too many session starts. Please try again later.", s.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's remote host. middleware.RealIP has
// already applied any forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
