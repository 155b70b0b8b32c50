package toolhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

func TestClient(t *testing.T) {
	f := newFixture(t, ServerOptions{SharedSecret: "s3cret"})
	client := NewClient(f.http.URL+"/", WithSecret("s3cret"), WithCallerID("cli"))
	ctx := context.Background()

	tools, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 3)

	desc, err := client.Describe(ctx, "add")
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, desc.Tags)

	_, err = client.Describe(ctx, "missing")
	assert.Error(t, err)

	result, err := client.Execute(ctx, toolexecutor.ToolCall{ID: "1", ToolName: "whoami"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"user": "cli", "server": true}, result.Output)

	t.Run("tool failures are results", func(t *testing.T) {
		result, err := client.Execute(ctx, toolexecutor.ToolCall{ID: "2", ToolName: "missing"})
		require.NoError(t, err)
		require.True(t, result.Failed())
		assert.Equal(t, toolexecutor.CodeNotFound, result.Error.Code)
	})

	t.Run("batch", func(t *testing.T) {
		results, err := client.Batch(ctx, []toolexecutor.ToolCall{
			{ID: "a", ToolName: "add", Input: map[string]interface{}{"a": 2, "b": 2}},
			{ID: "b", ToolName: "add", Input: map[string]interface{}{"a": "2"}},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 4.0, results[0].Output)
		assert.Equal(t, toolexecutor.CodeInputValidation, results[1].Error.Code)
	})

	t.Run("bad secret is a transport error", func(t *testing.T) {
		bad := NewClient(f.http.URL, WithSecret("wrong"))
		_, err := bad.Execute(ctx, toolexecutor.ToolCall{ToolName: "add"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid signature")
	})
}

func TestClientForwardsTraceID(t *testing.T) {
	seen := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(HeaderTraceID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tools": []}`))
	}))
	defer ts.Close()

	ctx := tracing.WithTraceID(context.Background(), "trace-cli")
	_, err := NewClient(ts.URL).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trace-cli", <-seen)
}
