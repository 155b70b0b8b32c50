package toolexecutor

import (
	"context"
	"errors"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolkit/pkg/schema"
)

// State is a step of the per-call state machine.
type State string

const (
	StateInit              State = "init"
	StateValidating        State = "validating"
	StateRunningMiddleware State = "running_middleware"
	StateRunningHandler    State = "running_handler"
	StateSucceeded         State = "succeeded"
	StateFailedResolution  State = "failed_resolution"
	StateFailedValidation  State = "failed_validation"
	StateFailedHandler     State = "failed_handler"
	StateFailedTimeout     State = "failed_timeout"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailedResolution, StateFailedValidation, StateFailedHandler, StateFailedTimeout:
		return true
	}
	return false
}

// Event reports a state transition of one call. Terminal events carry the
// duration, attempt count, cache flag and error. TraceID is taken from the
// call context.
type Event struct {
	CallID   string
	TraceID  string
	Tool     string
	State    State
	Attempt  int
	Cached   bool
	Duration time.Duration
	Err      error
}

// Observer receives events. It may be called from several goroutines.
type Observer func(Event)

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry sets the registry used for name lookups.
func WithRegistry(r *Registry) Option {
	return func(te *Executor) {
		if r != nil {
			te.registry = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(te *Executor) { te.logger = logger }
}

// WithBackoff sets the retry backoff.
func WithBackoff(b Backoff) Option {
	return func(te *Executor) { te.backoff = b }
}

// WithDefaultTimeout applies d to tools that declare no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(te *Executor) { te.defaultTimeout = d }
}

// WithBatchLimit bounds batch fan-out. Zero means unbounded.
func WithBatchLimit(n int) Option {
	return func(te *Executor) { te.batchLimit = n }
}

// WithMiddleware adds middleware wrapped outside every tool's own middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(te *Executor) {
		for _, m := range mw {
			if m != nil {
				te.middleware = append(te.middleware, m)
			}
		}
	}
}

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(te *Executor) {
		if o != nil {
			te.observers = append(te.observers, o)
		}
	}
}

// WithTraceIDFunc sets how the trace id reported on events is read from the
// call context. The default reads the active OpenTelemetry span.
func WithTraceIDFunc(fn func(context.Context) string) Option {
	return func(te *Executor) {
		if fn != nil {
			te.traceID = fn
		}
	}
}

func withSleep(s sleepFunc) Option {
	return func(te *Executor) { te.sleep = s }
}

// Executor validates input, selects a handler and runs it through the
// middleware chain under the tool's cache, retry and timeout policies.
type Executor struct {
	registry       *Registry
	logger         zerolog.Logger
	backoff        Backoff
	sleep          sleepFunc
	defaultTimeout time.Duration
	batchLimit     int
	middleware     []Middleware
	observers      []Observer
	traceID        func(context.Context) string
}

// New creates an Executor over the default registry unless WithRegistry is given.
func New(opts ...Option) *Executor {
	te := &Executor{
		registry: Default(),
		logger:   log.Logger,
		backoff:  DefaultBackoff(),
		sleep:    sleepContext,
		traceID:  spanTraceID,
	}
	for _, opt := range opts {
		opt(te)
	}

	te.logger.Debug().Msg("Tool executor initialized")

	return te
}

// Registry returns the registry used for name lookups.
func (te *Executor) Registry() *Registry {
	return te.registry
}

// Execute runs the named tool and returns its output or an error.
func (te *Executor) Execute(ctx context.Context, name string, input interface{}, ec *ExecutionContext) (interface{}, error) {
	callID := NewCallID()
	def, err := te.registry.Lookup(name)
	if err != nil {
		te.resolutionFailed(ctx, callID, name, err)
		return nil, err
	}

	out, _, err := te.run(ctx, def, callID, input, ec)
	return out, err
}

// ExecuteDefinition runs def directly, bypassing the registry.
func (te *Executor) ExecuteDefinition(ctx context.Context, def *ToolDefinition, input interface{}, ec *ExecutionContext) (interface{}, error) {
	if def == nil {
		return nil, errors.New("tool definition cannot be nil")
	}
	out, _, err := te.run(ctx, def, NewCallID(), input, ec)
	return out, err
}

// ExecuteCall runs call and wraps the outcome. It never returns an error;
// failures are reported in ToolResult.Error with a nil Output.
func (te *Executor) ExecuteCall(ctx context.Context, call ToolCall, ec *ExecutionContext) ToolResult {
	id := call.ID
	if id == "" {
		id = NewCallID()
	}
	result := ToolResult{ID: id, ToolName: call.ToolName}

	def, err := te.registry.Lookup(call.ToolName)
	if err != nil {
		te.resolutionFailed(ctx, id, call.ToolName, err)
		result.setError(err)
		return result
	}

	out, stats, err := te.run(ctx, def, id, call.Input, ec)
	result.Metadata = map[string]interface{}{
		"duration_ms": stats.duration.Milliseconds(),
		"attempts":    stats.attempts,
		"cached":      stats.cached,
	}
	if err != nil {
		result.setError(err)
		return result
	}

	result.Output = out
	return result
}

// ExecuteBatch runs calls concurrently and returns results in call order.
// One failing call never affects the others.
func (te *Executor) ExecuteBatch(ctx context.Context, calls []ToolCall, ec *ExecutionContext) []ToolResult {
	results := make([]ToolResult, len(calls))

	var g errgroup.Group
	if te.batchLimit > 0 {
		g.SetLimit(te.batchLimit)
	}

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = te.ExecuteCall(ctx, call, ec)
			return nil
		})
	}
	_ = g.Wait()

	te.logger.Debug().Int("calls", len(calls)).Msg("Tool batch completed")

	return results
}

type callStats struct {
	attempts int
	cached   bool
	duration time.Duration
}

func (te *Executor) run(ctx context.Context, def *ToolDefinition, callID string, input interface{}, ec *ExecutionContext) (interface{}, callStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	stats := callStats{}
	tool := def.name

	finish := func(state State, out interface{}, err error) (interface{}, callStats, error) {
		stats.duration = time.Since(start)
		te.emit(ctx, Event{
			CallID:   callID,
			Tool:     tool,
			State:    state,
			Attempt:  stats.attempts,
			Cached:   stats.cached,
			Duration: stats.duration,
			Err:      err,
		})
		if err != nil {
			te.logger.Error().
				Str("tool", tool).
				Str("call_id", callID).
				Str("state", string(state)).
				Int("attempts", stats.attempts).
				Dur("duration", stats.duration).
				Err(err).
				Msg("Tool execution failed")
			return nil, stats, err
		}
		te.logger.Debug().
			Str("tool", tool).
			Str("call_id", callID).
			Int("attempts", stats.attempts).
			Bool("cached", stats.cached).
			Dur("duration", stats.duration).
			Msg("Tool execution completed")
		return out, stats, nil
	}

	te.emit(ctx, Event{CallID: callID, Tool: tool, State: StateInit})
	ec = ec.withDefaults()

	te.emit(ctx, Event{CallID: callID, Tool: tool, State: StateValidating})
	parsed, err := def.inputSchema.Validate(input)
	if err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			verr = &schema.ValidationError{Fields: []schema.FieldError{{Field: schema.RootField, Message: err.Error()}}}
		}
		return finish(StateFailedValidation, nil, &InputValidationError{Tool: tool, Cause: verr})
	}

	handler, err := def.selectHandler(ec)
	if err != nil {
		return finish(StateFailedResolution, nil, err)
	}

	meta := def.metadata

	var key string
	if meta.Cache {
		key, err = cacheKey(tool, parsed)
		if err != nil {
			te.logger.Warn().Str("tool", tool).Err(err).Msg("Tool cache disabled for call")
			key = ""
		} else if cached, ok := ec.Cache.Get(key); ok {
			stats.cached = true
			return finish(StateSucceeded, cloneValue(cached), nil)
		}
	}

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = te.defaultTimeout
	}

	mws := make([]Middleware, 0, len(te.middleware)+len(def.middleware))
	mws = append(mws, te.middleware...)
	mws = append(mws, def.middleware...)

	ctx = ContextWithExecContext(ctx, ec)

	te.logger.Debug().
		Str("tool", tool).
		Str("call_id", callID).
		Bool("server", ec.IsServer).
		Msg("Executing tool")

	attemptOnce := func(ctx context.Context, attempt int) (interface{}, error) {
		stats.attempts = attempt
		if attempt > 1 {
			te.logger.Warn().Str("tool", tool).Str("call_id", callID).Int("attempt", attempt).Msg("Retrying tool execution")
		}

		ctx = withCallInfo(ctx, CallInfo{ID: callID, Tool: tool, Attempt: attempt})
		chain := buildChain(tool, mws, handler, ec, func() {
			te.emit(ctx, Event{CallID: callID, Tool: tool, State: StateRunningHandler, Attempt: attempt})
		})

		te.emit(ctx, Event{CallID: callID, Tool: tool, State: StateRunningMiddleware, Attempt: attempt})
		return withTimeout(tool, timeout, func(ctx context.Context) (interface{}, error) {
			return chain(ctx, cloneInput(parsed))
		})(ctx)
	}

	out, err := withRetry(meta.Retry, te.backoff, te.sleep, attemptOnce)(ctx)
	if err != nil {
		state := StateFailedHandler
		if errors.Is(err, ErrTimeout) {
			state = StateFailedTimeout
		}
		return finish(state, nil, err)
	}

	if key != "" {
		ec.Cache.Set(key, cloneValue(out))
	}

	return finish(StateSucceeded, out, nil)
}

func (te *Executor) resolutionFailed(ctx context.Context, callID, tool string, err error) {
	te.logger.Error().Str("tool", tool).Str("call_id", callID).Err(err).Msg("Tool not found")
	te.emit(ctx, Event{CallID: callID, Tool: tool, State: StateFailedResolution, Err: err})
}

func (te *Executor) emit(ctx context.Context, ev Event) {
	if len(te.observers) == 0 {
		return
	}
	if ctx != nil {
		ev.TraceID = te.traceID(ctx)
	}
	for _, o := range te.observers {
		o(ev)
	}
}

func spanTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

func cloneInput(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NewCallID returns a fresh correlation id for a tool call.
func NewCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "call-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}
