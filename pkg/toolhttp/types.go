package toolhttp

import (
	"time"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

// Header names understood by the server.
const (
	HeaderCallerID  = "X-Caller-ID"
	HeaderSessionID = "X-Session-ID"
	HeaderTraceID   = "X-Trace-ID"
	HeaderSignature = "X-Toolkit-Signature"
)

// ServerOptions configures the HTTP adapter
type ServerOptions struct {
	Host               string        // Server host (default: "127.0.0.1")
	Port               int           // Server port (default: 8080)
	RateLimitPerMinute int           // Requests per minute per caller (0 = unlimited)
	RateLimitBurst     int           // Token bucket size (default: 1)
	CachePurgeSchedule string        // Cron spec for clearing the shared cache (empty = never)
	ShutdownTimeout    time.Duration // Grace period for in-flight requests (default: 10s)
	SharedSecret       string        // When set, POST bodies must be signed
	MaxBodyBytes       int64         // Request body limit (default: 1MiB)
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	ToolCount int     `json:"toolCount"`
	Timestamp int64   `json:"timestamp"`
}

// ToolsResponse is returned by GET /tools
type ToolsResponse struct {
	Tools []toolexecutor.Descriptor `json:"tools"`
}

// ErrorResponse is the body of non-tool errors (bad request, rate limit).
type ErrorResponse struct {
	Error string `json:"error"`
}
