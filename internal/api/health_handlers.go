package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narrateapp/narrate-server/internal/store/remote"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)

	huma.Register(s.api, huma.Operation{
		OperationID: "remoteHealthCheck",
		Method:      http.MethodGet,
		Path:        "/health/remote",
		Summary:     "Remote store health",
		Description: "Probes the remote catalog store and reports round-trip latency",
		Tags:        []string{"Health"},
	}, s.handleRemoteHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := make(map[string]ComponentHealth)
	overall := "healthy"

	// A down or missing remote never makes the server unhealthy: the local
	// cache keeps the catalog available.
	remoteHealth := s.checkRemote(ctx)
	components["remote"] = remoteHealth
	if remoteHealth.Status != "healthy" {
		overall = "degraded"
	}

	storageHealth := s.checkStorage()
	components["storage"] = storageHealth
	if storageHealth.Status == "degraded" && overall == "healthy" {
		overall = "degraded"
	}

	sseHealth := s.checkSSEManager()
	components["sse"] = sseHealth
	if sseHealth.Status != "healthy" && overall == "healthy" {
		overall = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// RemoteHealthOutput wraps the probe result for Huma.
type RemoteHealthOutput struct {
	Body remote.ProbeResult
}

func (s *Server) handleRemoteHealthCheck(ctx context.Context, _ *struct{}) (*RemoteHealthOutput, error) {
	result := s.services.Sync.Probe(ctx)
	return &RemoteHealthOutput{Body: result}, nil
}

// checkRemote probes the remote catalog store.
func (s *Server) checkRemote(ctx context.Context) ComponentHealth {
	if s.services == nil || s.services.Sync == nil || !s.services.Sync.RemoteConfigured() {
		return ComponentHealth{
			Status:  "degraded",
			Message: "remote store not configured",
		}
	}

	result := s.services.Sync.Probe(ctx)
	latency := (time.Duration(result.LatencyMs) * time.Millisecond).String()

	if !result.Connected {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency,
			Message: result.Message,
		}
	}
	return ComponentHealth{
		Status:  "healthy",
		Latency: latency,
	}
}

// checkStorage reports whether object storage is wired. There is no cheap
// probe endpoint, so this only distinguishes configured from not.
func (s *Server) checkStorage() ComponentHealth {
	if s.storage == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "object storage not configured",
		}
	}
	return ComponentHealth{Status: "healthy"}
}

// checkSSEManager verifies the SSE event system is running.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "SSE manager not configured",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Message: formatSSEStatus(s.sseManager.ClientCount()),
	}
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
