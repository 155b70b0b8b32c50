package coretools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

func setup(t *testing.T, opts Options) *toolexecutor.Executor {
	t.Helper()
	reg := toolexecutor.NewRegistry()
	require.NoError(t, RegisterCoreTools(reg, opts))
	return toolexecutor.New(
		toolexecutor.WithRegistry(reg),
		toolexecutor.WithLogger(zerolog.Nop()),
		toolexecutor.WithBackoff(toolexecutor.Backoff{}),
	)
}

func TestRegisterCoreTools(t *testing.T) {
	reg := toolexecutor.NewRegistry()
	require.NoError(t, RegisterCoreTools(reg, Options{}))

	assert.Equal(t, []string{"echo", "add", "fetch_json", "search", "read_file", "write_file"}, reg.Names())

	readFile, _ := reg.Get("read_file")
	assert.True(t, readFile.IsServerOnly())
	search, _ := reg.Get("search")
	assert.True(t, search.HasClientHandler())
	assert.True(t, search.Metadata().Cache)

	err := RegisterCoreTools(reg, Options{})
	assert.ErrorIs(t, err, toolexecutor.ErrNameConflict)

	assert.Error(t, RegisterCoreTools(nil, Options{}))
}

func TestEchoAndAdd(t *testing.T) {
	te := setup(t, Options{})
	ctx := context.Background()

	out, err := te.Execute(ctx, "echo", map[string]interface{}{"message": "hi", "upper": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, echoOutput{Message: "HI"}, out)

	out, err = te.Execute(ctx, "add", map[string]interface{}{"a": 5, "b": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, out)

	_, err = te.Execute(ctx, "add", map[string]interface{}{"a": "5"}, nil)
	assert.ErrorIs(t, err, toolexecutor.ErrInputValidation)
}

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"method": r.Method, "path": r.URL.Path})
	}))
	defer server.Close()

	te := setup(t, Options{})
	ec := toolexecutor.NewContext(toolexecutor.WithServer(true))

	out, err := te.Execute(context.Background(), "fetch_json", map[string]interface{}{"url": server.URL + "/items"}, ec)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"method": "GET", "path": "/items"}, out)

	t.Run("rejects unknown method", func(t *testing.T) {
		_, err := te.Execute(context.Background(), "fetch_json", map[string]interface{}{"url": server.URL, "method": "PATCH"}, ec)
		assert.ErrorIs(t, err, toolexecutor.ErrInputValidation)
	})

	t.Run("retries failed fetches", func(t *testing.T) {
		var calls int32
		flaky := toolexecutor.FetcherFunc(func(ctx context.Context, req toolexecutor.FetchRequest) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, assert.AnError
			}
			return "ok", nil
		})
		out, err := te.Execute(context.Background(), "fetch_json", map[string]interface{}{"url": "http://example.com/x"},
			toolexecutor.NewContext(toolexecutor.WithFetcher(flaky)))
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})
}

func TestSearch(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"q":     r.URL.Query().Get("q"),
			"limit": r.URL.Query().Get("limit"),
		})
	}))
	defer server.Close()

	te := setup(t, Options{SearchURL: server.URL + "/search"})

	t.Run("server fetches and caches", func(t *testing.T) {
		ec := toolexecutor.NewContext(toolexecutor.WithServer(true))
		input := map[string]interface{}{"q": "golang"}

		first, err := te.Execute(context.Background(), "search", input, ec)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"q": "golang", "limit": "5"}, first)

		second, err := te.Execute(context.Background(), "search", input, ec)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("client reads pre-seeded cache", func(t *testing.T) {
		before := atomic.LoadInt32(&hits)
		ec := toolexecutor.NewContext(toolexecutor.WithServer(false))
		ec.Cache.Set("rust", "X")

		out, err := te.Execute(context.Background(), "search", map[string]interface{}{"q": "rust"}, ec)
		require.NoError(t, err)
		assert.Equal(t, "X", out)
		assert.Equal(t, before, atomic.LoadInt32(&hits))
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := te.Execute(context.Background(), "search", map[string]interface{}{"q": ""}, nil)
		assert.ErrorIs(t, err, toolexecutor.ErrInputValidation)
	})

	t.Run("unconfigured endpoint", func(t *testing.T) {
		bare := setup(t, Options{})
		_, err := bare.Execute(context.Background(), "search", map[string]interface{}{"q": "go"},
			toolexecutor.NewContext(toolexecutor.WithServer(true)))
		assert.ErrorIs(t, err, toolexecutor.ErrHandler)
		assert.Contains(t, err.Error(), "search endpoint is not configured")
	})
}

func TestFileTools(t *testing.T) {
	root := t.TempDir()
	te := setup(t, Options{WorkspaceRoot: root})
	server := toolexecutor.NewContext(toolexecutor.WithServer(true))
	ctx := context.Background()

	_, err := te.Execute(ctx, "write_file", map[string]interface{}{"path": "notes/a.txt", "content": "hello"}, server)
	require.NoError(t, err)
	_, err = te.Execute(ctx, "write_file", map[string]interface{}{"path": "notes/a.txt", "content": " world", "append": true}, server)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	out, err := te.Execute(ctx, "read_file", map[string]interface{}{"path": "notes/a.txt", "max_bytes": 5}, server)
	require.NoError(t, err)
	result := out.(map[string]interface{})
	assert.Equal(t, "hello", result["content"])
	assert.Equal(t, true, result["truncated"])

	out, err = te.Execute(ctx, "read_file", map[string]interface{}{"path": "notes/a.txt"}, server)
	require.NoError(t, err)
	assert.Equal(t, false, out.(map[string]interface{})["truncated"])

	t.Run("overwrite truncates", func(t *testing.T) {
		_, err := te.Execute(ctx, "write_file", map[string]interface{}{"path": "notes/a.txt", "content": "x"}, server)
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(root, "notes", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
	})

	t.Run("escape is rejected", func(t *testing.T) {
		_, err := te.Execute(ctx, "read_file", map[string]interface{}{"path": "../secret"}, server)
		assert.ErrorIs(t, err, toolexecutor.ErrHandler)
		assert.Contains(t, err.Error(), "outside workspace root")
	})

	t.Run("client context is refused", func(t *testing.T) {
		_, err := te.Execute(ctx, "read_file", map[string]interface{}{"path": "notes/a.txt"},
			toolexecutor.NewContext(toolexecutor.WithServer(false)))
		assert.ErrorIs(t, err, toolexecutor.ErrServerOnly)
	})

	t.Run("extension overrides root", func(t *testing.T) {
		other := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(other, "b.txt"), []byte("other"), 0644))
		ec := toolexecutor.NewContext(toolexecutor.WithServer(true), toolexecutor.WithExtension(ExtWorkspaceRoot, other))

		out, err := te.Execute(ctx, "read_file", map[string]interface{}{"path": "b.txt"}, ec)
		require.NoError(t, err)
		assert.Equal(t, "other", out.(map[string]interface{})["content"])
	})
}

func TestResolvePathInWorkspace(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "ws")

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "a/b.txt", want: filepath.Join(root, "a", "b.txt")},
		{name: "absolute inside", path: filepath.Join(root, "c.txt"), want: filepath.Join(root, "c.txt")},
		{name: "dot dot prefix in name", path: "..notes", want: filepath.Join(root, "..notes")},
		{name: "parent", path: "../etc/passwd", wantErr: true},
		{name: "url", path: "file:///etc/passwd", wantErr: true},
		{name: "blank", path: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePathInWorkspace(root, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
