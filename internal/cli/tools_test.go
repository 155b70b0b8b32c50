package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

func TestToolsList(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "toolkit.json")

	t.Run("table", func(t *testing.T) {
		out, err := runCLI(t, configPath, "tools", "list")
		require.NoError(t, err)

		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "fetch_json")
		assert.Contains(t, out, "retry=3 timeout=10000ms")
		assert.Contains(t, out, "read_file")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runCLI(t, configPath, "tools", "list", "--format", "json")
		require.NoError(t, err)

		var descriptors []toolexecutor.Descriptor
		require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
		require.Len(t, descriptors, 6)
		assert.Equal(t, "echo", descriptors[0].Name)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := runCLI(t, configPath, "tools", "list", "-f", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "- name: add")
		assert.Contains(t, out, "serverOnly: true")
	})

	t.Run("tag filter", func(t *testing.T) {
		out, err := runCLI(t, configPath, "tools", "list", "--format", "json", "--tag", "fs")
		require.NoError(t, err)

		var descriptors []toolexecutor.Descriptor
		require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
		require.Len(t, descriptors, 2)
		assert.Equal(t, "read_file", descriptors[0].Name)
		assert.Equal(t, "write_file", descriptors[1].Name)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runCLI(t, configPath, "tools", "list", "--format", "xml")
		assert.Error(t, err)
	})
}

func TestToolsDescribe(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "toolkit.json")

	out, err := runCLI(t, configPath, "tools", "describe", "search")
	require.NoError(t, err)

	var desc toolexecutor.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "search", desc.Name)
	assert.True(t, desc.HasClientHandler)
	assert.Equal(t, "object", desc.InputSchema["type"])

	_, err = runCLI(t, configPath, "tools", "describe", "nope")
	assert.ErrorIs(t, err, toolexecutor.ErrNotFound)

	_, err = runCLI(t, configPath, "tools", "describe")
	assert.Error(t, err, "name is required")
}

func TestPolicySummary(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]interface{}
		want string
	}{
		{name: "none", meta: map[string]interface{}{"retry": 0, "timeoutMs": int64(0), "cache": false}, want: "-"},
		{name: "local values", meta: map[string]interface{}{"retry": 2, "timeoutMs": int64(500), "cache": true}, want: "retry=2 timeout=500ms cache"},
		{name: "decoded values", meta: map[string]interface{}{"retry": 3.0, "timeoutMs": 0.0}, want: "retry=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policySummary(tt.meta))
		})
	}
}
