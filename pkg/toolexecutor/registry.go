package toolexecutor

import (
	"container/list"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry is a name-keyed store of tool definitions. List preserves
// insertion order. Registering a taken name fails; there is no overwrite.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*list.Element
	order  *list.List
	logger zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for registration events. The default is
// the global zerolog logger.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*list.Element),
		order:  list.New(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds def. It fails with *NameConflictError if the name is taken.
func (r *Registry) Register(def *ToolDefinition) error {
	if def == nil {
		return errors.New("tool definition cannot be nil")
	}
	if def.name == "" {
		return errors.New("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.name]; exists {
		return &NameConflictError{Tool: def.name}
	}

	r.tools[def.name] = r.order.PushBack(def)

	r.logger.Info().Str("tool", def.name).Msg("Tool registered")

	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	elem, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return elem.Value.(*ToolDefinition), true
}

// Lookup is like Get but returns *NotFoundError on a miss.
func (r *Registry) Lookup(name string) (*ToolDefinition, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Tool: name}
	}
	return def, nil
}

// List returns all definitions in insertion order.
func (r *Registry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ToolDefinition, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*ToolDefinition))
	}
	return out
}

// Names returns all tool names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*ToolDefinition).name)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Remove deletes the tool and reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, exists := r.tools[name]
	if !exists {
		return false
	}

	r.order.Remove(elem)
	delete(r.tools, name)

	r.logger.Info().Str("tool", name).Msg("Tool unregistered")

	return true
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = make(map[string]*list.Element)
	r.order.Init()
}

// Descriptors returns capability descriptors in insertion order.
func (r *Registry) Descriptors() []Descriptor {
	defs := r.List()
	out := make([]Descriptor, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Descriptor())
	}
	return out
}
