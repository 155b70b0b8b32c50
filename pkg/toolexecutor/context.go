package toolexecutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Cache is the key/value store carried by an ExecutionContext. Concurrent
// writes to the same key are last-write-wins.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Delete(key string)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]interface{}
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]interface{})}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *MemoryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear drops every entry and returns how many were removed.
func (c *MemoryCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.items = make(map[string]interface{})
	return n
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// FetchRequest describes a request made through a Fetcher.
type FetchRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
}

// Fetcher performs a request and returns the parsed response.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (interface{}, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (interface{}, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (interface{}, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches JSON over HTTP. Non-2xx responses are errors.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a 30s timeout client.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{Client: client}
}

// Fetch sends req and decodes the JSON response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (interface{}, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s failed: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s %s: unexpected status %d", method, req.URL, resp.StatusCode)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Identity describes the caller on whose behalf a tool runs.
type Identity struct {
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Roles      []string          `json:"roles,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Extensions carries integration-specific values.
type Extensions map[string]interface{}

// ExecutionContext is the capability bag passed into an invocation.
// It may be shared across calls; any holder may mutate Cache.
type ExecutionContext struct {
	Cache      Cache
	Fetch      Fetcher
	IsServer   bool
	Identity   *Identity
	Extensions Extensions
}

// ContextOption overrides a field of a new ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithCache supplies a cache, typically to share it across calls.
func WithCache(c Cache) ContextOption {
	return func(ec *ExecutionContext) { ec.Cache = c }
}

// WithFetcher supplies the fetch capability.
func WithFetcher(f Fetcher) ContextOption {
	return func(ec *ExecutionContext) { ec.Fetch = f }
}

// WithServer sets the environment flag.
func WithServer(isServer bool) ContextOption {
	return func(ec *ExecutionContext) { ec.IsServer = isServer }
}

// WithIdentity sets the caller identity.
func WithIdentity(id *Identity) ContextOption {
	return func(ec *ExecutionContext) { ec.Identity = id }
}

// WithExtension sets one extension value.
func WithExtension(key string, value interface{}) ContextOption {
	return func(ec *ExecutionContext) {
		if ec.Extensions == nil {
			ec.Extensions = make(Extensions)
		}
		ec.Extensions[key] = value
	}
}

// NewContext creates an ExecutionContext with a fresh cache, the default HTTP
// fetcher and the environment flag from DetectServer, then applies opts.
func NewContext(opts ...ContextOption) *ExecutionContext {
	ec := &ExecutionContext{
		Cache:      NewMemoryCache(),
		Fetch:      NewHTTPFetcher(nil),
		IsServer:   DetectServer(),
		Extensions: make(Extensions),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ec)
		}
	}
	if ec.Cache == nil {
		ec.Cache = NewMemoryCache()
	}
	return ec
}

// DetectServer reports whether the process runs in a server environment.
// Browser and WASI targets are treated as clients.
func DetectServer() bool {
	return runtime.GOOS != "js" && runtime.GOOS != "wasip1"
}

// withDefaults returns ec with missing capabilities filled in. The cache
// pointer is kept so sharing survives.
func (ec *ExecutionContext) withDefaults() *ExecutionContext {
	if ec == nil {
		return NewContext()
	}
	if ec.Cache != nil && ec.Fetch != nil && ec.Extensions != nil {
		return ec
	}
	out := *ec
	if out.Cache == nil {
		out.Cache = NewMemoryCache()
	}
	if out.Fetch == nil {
		out.Fetch = NewHTTPFetcher(nil)
	}
	if out.Extensions == nil {
		out.Extensions = make(Extensions)
	}
	return &out
}

// Extension returns the extension value under key if it has type T.
func Extension[T any](ec *ExecutionContext, key string) (T, bool) {
	var zero T
	if ec == nil || ec.Extensions == nil {
		return zero, false
	}
	v, ok := ec.Extensions[key].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a context.Context for tool handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a context.Context.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if execCtx, ok := v.(*ExecutionContext); ok {
			return execCtx
		}
	}
	return nil
}

// CallInfo identifies the invocation in progress.
type CallInfo struct {
	ID      string
	Tool    string
	Attempt int
}

type callInfoKey struct{}

func withCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext returns the invocation identity set by the executor.
func CallInfoFromContext(ctx context.Context) (CallInfo, bool) {
	if ctx == nil {
		return CallInfo{}, false
	}
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
