package toolhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

// traceMiddleware seeds the request context with trace, run, request and
// caller ids and opens the request span.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.NewRequestContext(r.Context(), r.Header.Get(HeaderTraceID))
		ctx = tracing.NewRunContext(ctx)
		ctx = tracing.WithCallerID(ctx, callerID(r))
		ctx = tracing.WithRequestID(ctx, middleware.GetReqID(r.Context()))

		ctx, span := tracing.StartSpan(ctx, nil, tracerName, "http.request",
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		)
		defer span.End()

		w.Header().Set(HeaderTraceID, tracing.GetTraceID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := routePattern(r)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, strconv.Itoa(status), duration)
		}

		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("HTTP request completed")
	})
}

func (s *Server) drainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
			return
		}
		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		caller := remoteHost(r)
		if ok, retryAfter := s.limiter.Allow(caller); !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			s.logger.Warn().
				Str("caller", caller).
				Str("path", r.URL.Path).
				Int("retryAfter", seconds).
				Msg("Rate limit exceeded")
			if s.metrics != nil {
				s.metrics.HTTPRateLimitedTotal.Inc()
			}
			s.audit.Security(r.Context(), "rate_limited", caller, "denied", map[string]interface{}{
				"path":      r.URL.Path,
				"caller_id": callerID(r),
			})
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyMiddleware bounds the body and checks the signature when a shared
// secret is configured. The body is restored for the handler.
func (s *Server) bodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}

		if s.options.SharedSecret != "" {
			signature := r.Header.Get(HeaderSignature)
			if signature == "" || !verifySignature(rawBody, signature, s.options.SharedSecret) {
				s.logger.Warn().
					Str("caller", callerID(r)).
					Str("path", r.URL.Path).
					Msg("Invalid request signature")
				s.audit.Security(r.Context(), "signature_rejected", callerID(r), "denied", map[string]interface{}{
					"path": r.URL.Path,
				})
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
				return
			}
		}

		r.Body = io.NopCloser(bytes.NewReader(rawBody))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count := s.executor.Registry().Len()
	if s.metrics != nil {
		s.metrics.RegisteredToolsActive.Set(float64(count))
	}

	status := "ok"
	code := http.StatusOK
	if s.shuttingDown.Load() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Uptime:    time.Since(s.startTime).Seconds(),
		ToolCount: count,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	descriptors := s.executor.Registry().Descriptors()
	if tag := r.URL.Query().Get("tag"); tag != "" {
		filtered := descriptors[:0]
		for _, d := range descriptors {
			if hasTag(d.Tags, tag) {
				filtered = append(filtered, d)
			}
		}
		descriptors = filtered
	}
	writeJSON(w, http.StatusOK, ToolsResponse{Tools: descriptors})
}

func (s *Server) handleDescribeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, err := s.executor.Registry().Lookup(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, def.Descriptor())
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req toolexecutor.RemoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.ToolCall.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "toolCall.toolName is required"})
		return
	}

	result := s.executor.ExecuteCall(r.Context(), req.ToolCall, s.newExecContext(r))
	if result.Failed() {
		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Info().
			Str("tool", result.ToolName).
			Str("call_id", result.ID).
			Str("code", result.Error.Code).
			Msg("Remote tool call failed")
	}

	writeJSON(w, statusForResult(result), result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req toolexecutor.BatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	results := s.executor.ExecuteBatch(r.Context(), req.ToolCalls, s.newExecContext(r))
	writeJSON(w, http.StatusOK, toolexecutor.BatchResponse{Results: results})
}

// statusForResult maps a ToolResult to an HTTP status. The body is the
// ToolResult either way.
func statusForResult(result toolexecutor.ToolResult) int {
	if !result.Failed() {
		return http.StatusOK
	}
	switch result.Error.Code {
	case toolexecutor.CodeInputValidation:
		return http.StatusBadRequest
	case toolexecutor.CodeNotFound:
		return http.StatusNotFound
	case toolexecutor.CodeServerOnly:
		return http.StatusForbidden
	case toolexecutor.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// callerID identifies the rate-limit and identity subject of a request.
// callerID is the self-reported caller, falling back to the remote host. It
// labels logs and identities only; rate limits key on remoteHost.
func callerID(r *http.Request) string {
	if id := r.Header.Get(HeaderCallerID); id != "" {
		return id
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routePattern returns the chi route pattern when routing has happened,
// otherwise the request path.
func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil && ctx.RoutePattern() != "" {
		return ctx.RoutePattern()
	}
	return r.URL.Path
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
