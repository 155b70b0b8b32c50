package audit

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

// Event types.
const (
	TypeTool     = "tool"
	TypeSecurity = "security"
	TypeConfig   = "config"
)

// Event is one line of the audit log.
type Event struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // caller id
	Action    string                 `json:"action"`          // e.g. "execute:add", "signature_rejected"
	Status    string                 `json:"status"`          // "success", "failure", "denied"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// Logger writes audit events as JSON lines.
type Logger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{
		logger: zerolog.New(w),
	}
}

// Open returns a Logger appending to the file at path.
func Open(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := New(file)
	l.closer = file
	return l, nil
}

// Record writes an event. The trace id comes from the active span, else
// from the request trace context. Events are also added to the span.
func (a *Logger) Record(ctx context.Context, event Event) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	} else if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// ObserveTool records terminal executor events. It is a toolexecutor.Observer.
func (a *Logger) ObserveTool(ev toolexecutor.Event) {
	if a == nil || !ev.State.Terminal() {
		return
	}

	status := "success"
	metadata := map[string]interface{}{
		"call_id":     ev.CallID,
		"state":       string(ev.State),
		"attempts":    ev.Attempt,
		"cached":      ev.Cached,
		"duration_ms": ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		status = "failure"
		metadata["error_code"] = toolexecutor.NewErrorInfo(ev.Err).Code
	}

	a.Record(context.Background(), Event{
		Type:     TypeTool,
		Action:   "execute:" + ev.Tool,
		Status:   status,
		Metadata: metadata,
		TraceID:  ev.TraceID,
	})
}

// Security records an access decision such as a rejected signature.
func (a *Logger) Security(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	a.Record(ctx, Event{
		Type:     TypeSecurity,
		Actor:    actor,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// Config records a configuration change.
func (a *Logger) Config(ctx context.Context, action string, metadata map[string]interface{}) {
	a.Record(ctx, Event{
		Type:     TypeConfig,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}

// Close closes the underlying file, if any.
func (a *Logger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
