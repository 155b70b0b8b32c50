package toolexecutor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/toolkit/pkg/schema"
)

// Defaults applied by Builder.AI when the corresponding policy is unset.
const (
	DefaultAIRetry   = 3
	DefaultAITimeout = 30 * time.Second
)

// Builder assembles a ToolDefinition step by step. Nothing is registered
// until Register is called.
type Builder struct {
	name          string
	description   string
	tags          map[string]struct{}
	inputSchema   schema.Validator
	outputSchema  schema.Validator
	serverHandler Handler
	clientHandler Handler
	middleware    []Middleware
	serverOnly    bool
	metadata      Metadata
	cacheSet      bool
	render        RenderFunc
}

// NewTool starts a builder for a tool with the given name.
func NewTool(name string) *Builder {
	return &Builder{
		name: name,
		tags: make(map[string]struct{}),
	}
}

// Describe sets the description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// Tag adds tags to the tag set.
func (b *Builder) Tag(tags ...string) *Builder {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			b.tags[tag] = struct{}{}
		}
	}
	return b
}

// Input sets the input validator.
func (b *Builder) Input(v schema.Validator) *Builder {
	b.inputSchema = v
	return b
}

// Output sets the informational output validator.
func (b *Builder) Output(v schema.Validator) *Builder {
	b.outputSchema = v
	return b
}

// Execute sets the server handler.
func (b *Builder) Execute(h Handler) *Builder {
	b.serverHandler = h
	return b
}

// ExecuteInput sets a single-argument server handler.
func (b *Builder) ExecuteInput(h InputHandler) *Builder {
	b.serverHandler = AdaptInput(h)
	return b
}

// Client sets the client handler.
func (b *Builder) Client(h Handler) *Builder {
	b.clientHandler = h
	return b
}

// ClientInput sets a single-argument client handler.
func (b *Builder) ClientInput(h InputHandler) *Builder {
	b.clientHandler = AdaptInput(h)
	return b
}

// Use appends middleware. The first middleware added wraps outermost.
func (b *Builder) Use(mw ...Middleware) *Builder {
	for _, m := range mw {
		if m != nil {
			b.middleware = append(b.middleware, m)
		}
	}
	return b
}

// ServerOnly forbids client execution.
func (b *Builder) ServerOnly() *Builder {
	b.serverOnly = true
	return b
}

// Retry sets the total number of attempts.
func (b *Builder) Retry(attempts int) *Builder {
	b.metadata.Retry = attempts
	return b
}

// Timeout sets the per-attempt timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.metadata.Timeout = d
	return b
}

// Cache enables result caching.
func (b *Builder) Cache() *Builder {
	b.metadata.Cache = true
	b.cacheSet = true
	return b
}

// NoCache turns result caching off, including the default applied by AI.
func (b *Builder) NoCache() *Builder {
	b.metadata.Cache = false
	b.cacheSet = true
	return b
}

// AI marks the tool AI-optimized and fills unset policies with defaults:
// 3 attempts, a 30s timeout and caching.
func (b *Builder) AI() *Builder {
	b.metadata.AIOptimized = true
	if b.metadata.Retry == 0 {
		b.metadata.Retry = DefaultAIRetry
	}
	if b.metadata.Timeout == 0 {
		b.metadata.Timeout = DefaultAITimeout
	}
	if !b.cacheSet {
		b.metadata.Cache = true
	}
	return b
}

// Meta sets an open metadata key.
func (b *Builder) Meta(key string, value interface{}) *Builder {
	if b.metadata.Extra == nil {
		b.metadata.Extra = make(map[string]interface{})
	}
	b.metadata.Extra[key] = value
	return b
}

// Render sets the render hook.
func (b *Builder) Render(fn RenderFunc) *Builder {
	b.render = fn
	return b
}

// Build seals the definition. It fails only when no server handler is set.
func (b *Builder) Build() (*ToolDefinition, error) {
	if b.serverHandler == nil {
		return nil, &BuildError{
			Tool:   b.name,
			Reason: fmt.Sprintf("%s must have an execute handler", b.name),
		}
	}

	input := b.inputSchema
	if input == nil {
		input = schema.Empty()
	}

	tags := make([]string, 0, len(b.tags))
	for tag := range b.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return &ToolDefinition{
		name:          b.name,
		description:   b.description,
		tags:          tags,
		inputSchema:   input,
		outputSchema:  b.outputSchema,
		serverHandler: b.serverHandler,
		clientHandler: b.clientHandler,
		middleware:    append([]Middleware(nil), b.middleware...),
		serverOnly:    b.serverOnly,
		metadata:      b.metadata.clone(),
		render:        b.render,
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *ToolDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// Register builds the definition and registers it.
func (b *Builder) Register(r *Registry) (*ToolDefinition, error) {
	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := r.Register(def); err != nil {
		return nil, err
	}
	return def, nil
}
