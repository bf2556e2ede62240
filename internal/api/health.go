package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by /api/v1/health.
type HealthResponse struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	RuntimeConnected bool              `json:"runtime_connected"`
	Mode             string            `json:"mode"`
	Frame            uint64            `json:"frame"`
	WebSocketClients int               `json:"websocket_clients"`
	Components       map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok" when every registered component is healthy and
// "degraded" otherwise. The runtime being disconnected is reported but
// does not degrade the service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:           "ok",
		Version:          s.version,
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		RuntimeConnected: s.tracker.Connected(),
		Mode:             s.tracker.Mode().String(),
		Frame:            s.tracker.LastStats().Frame,
		WebSocketClients: s.hub.ClientCount(),
	}

	if len(s.healthChecks) > 0 {
		names := make([]string, 0, len(s.healthChecks))
		for name := range s.healthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.healthChecks[name](ctx); err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
