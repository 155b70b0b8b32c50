package toolhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolkit/internal/audit"
	"github.com/harun/toolkit/internal/metrics"
	"github.com/harun/toolkit/pkg/schema"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

type fixture struct {
	server  *Server
	http    *httptest.Server
	metrics *metrics.Metrics
	fetches *int32
}

func newFixture(t *testing.T, options ServerOptions, extra ...Option) *fixture {
	t.Helper()

	var fetches int32
	reg := toolexecutor.NewRegistry()
	_, err := toolexecutor.NewTool("add").
		Tag("math").
		Input(schema.Object(schema.Number("a"), schema.Number("b"))).
		ExecuteInput(func(_ context.Context, in map[string]interface{}) (interface{}, error) {
			return in["a"].(float64) + in["b"].(float64), nil
		}).
		Register(reg)
	require.NoError(t, err)

	_, err = toolexecutor.NewTool("lookup").
		Input(schema.Object(schema.String("q"))).
		Execute(func(ctx context.Context, in map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			return ec.Fetch.Fetch(ctx, toolexecutor.FetchRequest{URL: "mem://" + in["q"].(string)})
		}).
		Cache().
		Register(reg)
	require.NoError(t, err)

	_, err = toolexecutor.NewTool("whoami").
		Execute(func(_ context.Context, _ map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			return map[string]interface{}{"user": ec.Identity.UserID, "server": ec.IsServer}, nil
		}).
		Register(reg)
	require.NoError(t, err)

	m := metrics.NewMetrics()
	executor := toolexecutor.New(
		toolexecutor.WithRegistry(reg),
		toolexecutor.WithLogger(zerolog.Nop()),
		toolexecutor.WithObserver(m.Observe),
	)

	fetcher := toolexecutor.FetcherFunc(func(_ context.Context, req toolexecutor.FetchRequest) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		return strings.TrimPrefix(req.URL, "mem://"), nil
	})

	s, err := NewServer(options, executor, zerolog.Nop(), append([]Option{WithMetrics(m), WithFetcher(fetcher)}, extra...)...)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &fixture{server: s, http: ts, metrics: m, fetches: &fetches}
}

func (f *fixture) post(t *testing.T, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.http.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNewServerDefaults(t *testing.T) {
	s, err := NewServer(ServerOptions{}, toolexecutor.New(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 8080, s.options.Port)
	assert.Equal(t, "127.0.0.1", s.options.Host)
	assert.Equal(t, 10*time.Second, s.options.ShutdownTimeout)
	assert.Nil(t, s.limiter, "rate limiting is off by default")
	assert.Nil(t, s.scheduler)
}

func TestNewServerErrors(t *testing.T) {
	_, err := NewServer(ServerOptions{}, nil, zerolog.Nop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tool executor is required")

	_, err = NewServer(ServerOptions{CachePurgeSchedule: "whenever"}, toolexecutor.New(), zerolog.Nop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache purge schedule")
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderTraceID))

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.ToolCount)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.RegisteredToolsActive))
}

func TestHandleListAndDescribe(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	resp, err := http.Get(f.http.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	list := decode[ToolsResponse](t, resp)
	require.Len(t, list.Tools, 3)
	assert.Equal(t, "add", list.Tools[0].Name)

	resp, err = http.Get(f.http.URL + "/tools?tag=math")
	require.NoError(t, err)
	defer resp.Body.Close()
	list = decode[ToolsResponse](t, resp)
	require.Len(t, list.Tools, 1)

	resp, err = http.Get(f.http.URL + "/tools/lookup")
	require.NoError(t, err)
	defer resp.Body.Close()
	desc := decode[toolexecutor.Descriptor](t, resp)
	assert.Equal(t, "lookup", desc.Name)
	assert.Equal(t, true, desc.Metadata["cache"])

	resp, err = http.Get(f.http.URL + "/tools/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleExecute(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	t.Run("success", func(t *testing.T) {
		resp := f.post(t, "/tools/execute", toolexecutor.RemoteRequest{
			ToolCall: toolexecutor.ToolCall{ID: "c1", ToolName: "add", Input: map[string]interface{}{"a": 5, "b": 3}},
		}, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		result := decode[toolexecutor.ToolResult](t, resp)
		assert.Equal(t, "c1", result.ID)
		assert.Equal(t, 8.0, result.Output)
		assert.Nil(t, result.Error)
	})

	t.Run("validation failure", func(t *testing.T) {
		resp := f.post(t, "/tools/execute", toolexecutor.RemoteRequest{
			ToolCall: toolexecutor.ToolCall{ID: "c2", ToolName: "add", Input: map[string]interface{}{"a": "x"}},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		result := decode[toolexecutor.ToolResult](t, resp)
		require.NotNil(t, result.Error)
		assert.Equal(t, toolexecutor.CodeInputValidation, result.Error.Code)
		assert.Nil(t, result.Output)
	})

	t.Run("unknown tool", func(t *testing.T) {
		resp := f.post(t, "/tools/execute", toolexecutor.RemoteRequest{
			ToolCall: toolexecutor.ToolCall{ID: "c3", ToolName: "nope"},
		}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		result := decode[toolexecutor.ToolResult](t, resp)
		assert.Equal(t, toolexecutor.CodeNotFound, result.Error.Code)
	})

	t.Run("missing tool name", func(t *testing.T) {
		resp := f.post(t, "/tools/execute", map[string]interface{}{"toolCall": map[string]interface{}{}}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(f.http.URL+"/tools/execute", "application/json", strings.NewReader(`{nope`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("runs server side with caller identity", func(t *testing.T) {
		resp := f.post(t, "/tools/execute", toolexecutor.RemoteRequest{
			ToolCall: toolexecutor.ToolCall{ID: "c4", ToolName: "whoami"},
		}, map[string]string{HeaderCallerID: "agent-7"})

		result := decode[toolexecutor.ToolResult](t, resp)
		assert.Equal(t, map[string]interface{}{"user": "agent-7", "server": true}, result.Output)
	})
}

func TestSharedCacheAndPurge(t *testing.T) {
	f := newFixture(t, ServerOptions{})
	call := toolexecutor.RemoteRequest{
		ToolCall: toolexecutor.ToolCall{ToolName: "lookup", Input: map[string]interface{}{"q": "go"}},
	}

	for i := 0; i < 3; i++ {
		resp := f.post(t, "/tools/execute", call, nil)
		result := decode[toolexecutor.ToolResult](t, resp)
		assert.Equal(t, "go", result.Output)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(f.fetches), "remote calls share one cache")
	assert.Equal(t, 1, f.server.Cache().Len())

	assert.Equal(t, 1, f.server.PurgeCache())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ToolCachePurgesTotal))

	f.post(t, "/tools/execute", call, nil)
	assert.Equal(t, int32(2), atomic.LoadInt32(f.fetches))
}

func TestHandleBatch(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	resp := f.post(t, "/tools/batch", toolexecutor.BatchRequest{ToolCalls: []toolexecutor.ToolCall{
		{ID: "1", ToolName: "add", Input: map[string]interface{}{"a": 1, "b": 2}},
		{ID: "2", ToolName: "missing"},
		{ID: "3", ToolName: "add", Input: map[string]interface{}{"a": 3, "b": 4}},
	}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	batch := decode[toolexecutor.BatchResponse](t, resp)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, 3.0, batch.Results[0].Output)
	assert.Equal(t, toolexecutor.CodeNotFound, batch.Results[1].Error.Code)
	assert.Equal(t, 7.0, batch.Results[2].Output)
}

func TestRateLimitMiddleware(t *testing.T) {
	f := newFixture(t, ServerOptions{RateLimitPerMinute: 1, RateLimitBurst: 2})

	get := func(caller string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, f.http.URL+"/tools", nil)
		require.NoError(t, err)
		if caller != "" {
			req.Header.Set(HeaderCallerID, caller)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("").StatusCode)
	assert.Equal(t, http.StatusOK, get("").StatusCode)

	limited := get("")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRateLimitedTotal))

	t.Run("caller header does not reset the limit", func(t *testing.T) {
		for _, caller := range []string{"a", "b", "c"} {
			assert.Equal(t, http.StatusTooManyRequests, get(caller).StatusCode, caller)
		}
	})

	t.Run("forwarded headers are not trusted", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.http.URL+"/tools", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		req.Header.Set("X-Real-IP", "203.0.113.7")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})

	// Health is not rate limited
	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignatureRequired(t *testing.T) {
	f := newFixture(t, ServerOptions{SharedSecret: "s3cret"})
	body := toolexecutor.RemoteRequest{
		ToolCall: toolexecutor.ToolCall{ID: "s", ToolName: "add", Input: map[string]interface{}{"a": 1, "b": 1}},
	}

	resp := f.post(t, "/tools/execute", body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.post(t, "/tools/execute", body, map[string]string{HeaderSignature: "sha256=deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp = f.post(t, "/tools/execute", body, map[string]string{HeaderSignature: Sign(data, "s3cret")})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRejectionsAreAudited(t *testing.T) {
	buf := &bytes.Buffer{}
	f := newFixture(t, ServerOptions{SharedSecret: "s3cret", RateLimitPerMinute: 1, RateLimitBurst: 1}, WithAudit(audit.New(buf)))
	body := toolexecutor.RemoteRequest{ToolCall: toolexecutor.ToolCall{ToolName: "add"}}

	resp := f.post(t, "/tools/execute", body, map[string]string{HeaderCallerID: "mallory"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.post(t, "/tools/execute", body, map[string]string{HeaderCallerID: "mallory"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "signature_rejected", first["action"])
	assert.Equal(t, "mallory", first["actor"])
	assert.NotEmpty(t, first["trace_id"])
	assert.Equal(t, "rate_limited", second["action"])
	assert.Equal(t, "denied", second["status"])
}

func TestTraceIDHeader(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderTraceID, "trace-from-caller")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-from-caller", resp.Header.Get(HeaderTraceID))

	a, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer a.Body.Close()
	b, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer b.Body.Close()
	assert.NotEqual(t, a.Header.Get(HeaderTraceID), b.Header.Get(HeaderTraceID), "each request gets a fresh trace")
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, ServerOptions{MaxBodyBytes: 16})

	resp := f.post(t, "/tools/execute", toolexecutor.RemoteRequest{
		ToolCall: toolexecutor.ToolCall{ToolName: "add", Input: map[string]interface{}{"a": 1, "b": 1}},
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	f := newFixture(t, ServerOptions{})

	resp, err := http.Get(f.http.URL + "/tools/add")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("/tools/{name}", "GET", "200")))

	resp, err = http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStopRejectsNewRequests(t *testing.T) {
	f := newFixture(t, ServerOptions{ShutdownTimeout: 50 * time.Millisecond})
	require.NoError(t, f.server.Stop())

	resp, err := http.Get(f.http.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
