package api

import (
	"net/http"
	"strconv"

	"github.com/listenupapp/dirwatch/internal/http/response"
)

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	components := map[string]ComponentHealth{
		"sessions": s.checkSessions(),
		"sse":      s.checkSSEManager(),
	}

	overall := "healthy"
	for _, c := range components {
		if c.Status != "healthy" {
			overall = "degraded"
		}
	}

	response.Success(w, HealthResponse{Status: overall, Components: components}, s.logger)
}

// checkSessions reports how many registered sessions are delivering events.
// A registered session whose running flag was cleared counts as degraded.
func (s *Server) checkSessions() ComponentHealth {
	if s.registry == nil {
		return ComponentHealth{Status: "degraded", Message: "registry not configured"}
	}

	total, running := 0, 0
	for _, info := range s.registry.List() {
		total++
		if info.Running {
			running++
		}
	}

	status := "healthy"
	if running < total {
		status = "degraded"
	}
	return ComponentHealth{
		Status:  status,
		Message: strconv.Itoa(running) + "/" + strconv.Itoa(total) + " sessions running",
	}
}

// checkSSEManager reports connected clients and any events lost to slow ones.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: "degraded", Message: "SSE manager not configured"}
	}

	stats := s.sseManager.Stats()
	msg := formatSSEStatus(stats.Clients)
	if lost := stats.ClientDrops + stats.Rejected; lost > 0 {
		msg += ", " + strconv.FormatUint(lost, 10) + " events dropped"
	}
	return ComponentHealth{Status: "healthy", Message: msg}
}

func formatSSEStatus(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return strconv.Itoa(count) + " connected clients"
	}
}
