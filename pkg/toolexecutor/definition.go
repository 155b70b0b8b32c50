package toolexecutor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harun/toolkit/pkg/schema"
)

// Handler is the canonical tool handler shape.
type Handler func(ctx context.Context, input map[string]interface{}, ec *ExecutionContext) (interface{}, error)

// InputHandler is the single-argument handler shape for tools that do not
// need the execution context.
type InputHandler func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// RenderFunc turns tool output into a presentation value. The executor never
// calls it; it is carried for discovery by rendering layers.
type RenderFunc func(output interface{}) (interface{}, error)

// AdaptInput converts an InputHandler into a Handler.
func AdaptInput(h InputHandler) Handler {
	if h == nil {
		return nil
	}
	return func(ctx context.Context, input map[string]interface{}, _ *ExecutionContext) (interface{}, error) {
		return h(ctx, input)
	}
}

// Typed converts a handler over typed input and output into a Handler. The
// validated input is decoded into I before fn is called.
func Typed[I any, O any](fn func(ctx context.Context, input I, ec *ExecutionContext) (O, error)) Handler {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, input map[string]interface{}, ec *ExecutionContext) (interface{}, error) {
		typed, err := schema.Decode[I](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, typed, ec)
	}
}

// Metadata holds execution policy and open descriptive flags for a tool.
type Metadata struct {
	// Retry is the total number of attempts. Values <= 1 disable retry.
	Retry int
	// Timeout bounds a single attempt. Zero disables the timeout.
	Timeout time.Duration
	// Cache enables result caching keyed by tool name and validated input.
	Cache bool
	// AIOptimized marks tools tuned for agentic callers.
	AIOptimized bool
	// Extra carries open key/value metadata.
	Extra map[string]interface{}
}

func (m Metadata) clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// toMap renders metadata for descriptors.
func (m Metadata) toMap() map[string]interface{} {
	out := map[string]interface{}{
		"retry":       m.Retry,
		"timeoutMs":   m.Timeout.Milliseconds(),
		"cache":       m.Cache,
		"aiOptimized": m.AIOptimized,
	}
	for k, v := range m.Extra {
		if _, reserved := out[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

// ToolDefinition is the sealed description of a tool. It is created by
// Builder.Build and never mutated afterwards.
type ToolDefinition struct {
	name          string
	description   string
	tags          []string
	inputSchema   schema.Validator
	outputSchema  schema.Validator
	serverHandler Handler
	clientHandler Handler
	middleware    []Middleware
	serverOnly    bool
	metadata      Metadata
	render        RenderFunc
}

// Name returns the tool name.
func (d *ToolDefinition) Name() string { return d.name }

// Description returns the human-readable description.
func (d *ToolDefinition) Description() string { return d.description }

// Tags returns the sorted tag set.
func (d *ToolDefinition) Tags() []string { return append([]string(nil), d.tags...) }

// HasTag reports whether tag is in the tag set.
func (d *ToolDefinition) HasTag(tag string) bool {
	i := sort.SearchStrings(d.tags, tag)
	return i < len(d.tags) && d.tags[i] == tag
}

// InputSchema returns the input validator.
func (d *ToolDefinition) InputSchema() schema.Validator { return d.inputSchema }

// OutputSchema returns the informational output validator, or nil.
func (d *ToolDefinition) OutputSchema() schema.Validator { return d.outputSchema }

// ServerHandler returns the authoritative handler.
func (d *ToolDefinition) ServerHandler() Handler { return d.serverHandler }

// ClientHandler returns the client handler, or nil.
func (d *ToolDefinition) ClientHandler() Handler { return d.clientHandler }

// HasClientHandler reports whether a client handler is set.
func (d *ToolDefinition) HasClientHandler() bool { return d.clientHandler != nil }

// IsServerOnly reports whether the tool refuses client execution.
func (d *ToolDefinition) IsServerOnly() bool { return d.serverOnly }

// Middleware returns a copy of the tool middleware in registration order.
func (d *ToolDefinition) Middleware() []Middleware {
	return append([]Middleware(nil), d.middleware...)
}

// Metadata returns a copy of the tool metadata.
func (d *ToolDefinition) Metadata() Metadata { return d.metadata.clone() }

// Render returns the render hook, or nil.
func (d *ToolDefinition) Render() RenderFunc { return d.render }

// selectHandler picks the handler for the given execution context.
func (d *ToolDefinition) selectHandler(ec *ExecutionContext) (Handler, error) {
	if ec.IsServer {
		return d.serverHandler, nil
	}
	if d.serverOnly {
		return nil, &ServerOnlyViolation{Tool: d.name}
	}
	if d.clientHandler != nil {
		return d.clientHandler, nil
	}
	return d.serverHandler, nil
}

func (d *ToolDefinition) String() string {
	return fmt.Sprintf("tool(%s)", d.name)
}
