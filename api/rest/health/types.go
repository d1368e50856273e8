package health

import "context"

const (
	serviceName = "coursepilot"
	version     = "1.0.0"
)

// Response represents the health check response
type Response struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type PingResponse struct {
	Message string `json:"message"`
}

// a dependency the server cannot work without
type Check func(ctx context.Context) error
