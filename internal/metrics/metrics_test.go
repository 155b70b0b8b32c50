package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	require.NotNil(t, m)
	assert.NotNil(t, m.Registry())
	assert.NotNil(t, m.ToolExecutionsTotal)
	assert.NotNil(t, m.ToolExecutionDuration)
	assert.NotNil(t, m.ToolExecutionErrorsTotal)
	assert.NotNil(t, m.ToolCacheHitsTotal)
	assert.NotNil(t, m.HTTPRequestsTotal)
}

func TestObserve(t *testing.T) {
	m := NewMetrics()

	m.Observe(toolexecutor.Event{Tool: "add", State: toolexecutor.StateRunningHandler, Attempt: 1})
	assert.Equal(t, 0, testutil.CollectAndCount(m.ToolExecutionsTotal))

	m.Observe(toolexecutor.Event{Tool: "add", State: toolexecutor.StateSucceeded, Attempt: 1, Duration: 10 * time.Millisecond})
	m.Observe(toolexecutor.Event{Tool: "add", State: toolexecutor.StateSucceeded, Cached: true})
	m.Observe(toolexecutor.Event{
		Tool:    "add",
		State:   toolexecutor.StateFailedTimeout,
		Attempt: 3,
		Err:     &toolexecutor.TimeoutError{Tool: "add", After: time.Second},
	})
	m.Observe(toolexecutor.Event{
		Tool:  "ghost",
		State: toolexecutor.StateFailedResolution,
		Err:   &toolexecutor.NotFoundError{Tool: "ghost"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("add", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionErrorsTotal.WithLabelValues("add", toolexecutor.CodeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionErrorsTotal.WithLabelValues(UnknownTool, toolexecutor.CodeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues(UnknownTool, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCacheHitsTotal.WithLabelValues("add")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolRetriesTotal.WithLabelValues("add")))

	// Histogram series exist for the executed tool only.
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolExecutionDuration))
}

func TestObserve_AsExecutorObserver(t *testing.T) {
	m := NewMetrics()

	reg := toolexecutor.NewRegistry()
	_, err := toolexecutor.NewTool("flaky").
		Execute(func(ctx context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			return nil, errors.New("down")
		}).
		Register(reg)
	require.NoError(t, err)

	te := toolexecutor.New(
		toolexecutor.WithRegistry(reg),
		toolexecutor.WithLogger(zerolog.Nop()),
		toolexecutor.WithObserver(m.Observe),
	)

	_, err = te.Execute(context.Background(), "flaky", nil, toolexecutor.NewContext(toolexecutor.WithServer(true)))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("flaky", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionErrorsTotal.WithLabelValues("flaky", toolexecutor.CodeHandler)))
}

func TestObserve_UnresolvedNamesShareOneSeries(t *testing.T) {
	m := NewMetrics()
	te := toolexecutor.New(
		toolexecutor.WithRegistry(toolexecutor.NewRegistry()),
		toolexecutor.WithLogger(zerolog.Nop()),
		toolexecutor.WithObserver(m.Observe),
	)

	for i := 0; i < 20; i++ {
		_, err := te.Execute(context.Background(), fmt.Sprintf("bogus-%d", i), nil, nil)
		require.Error(t, err)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolExecutionsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolExecutionErrorsTotal))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues(UnknownTool, "error")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("/tools", http.MethodGet, "200", 5*time.Millisecond)
	m.ToolExecutionsTotal.WithLabelValues("echo", "success").Inc()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tool_executions_total")
	assert.Contains(t, string(body), `route="/tools"`)
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.ToolExecutionsTotal.WithLabelValues("echo", "success").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m1.ToolExecutionsTotal.WithLabelValues("echo", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.ToolExecutionsTotal.WithLabelValues("echo", "success")))
}
