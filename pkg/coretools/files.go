package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/toolkit/pkg/schema"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

const defaultMaxReadBytes = 200000

func readFileTool(opts Options) *toolexecutor.Builder {
	return toolexecutor.NewTool("read_file").
		Describe("Read a file from the workspace.").
		Tag("fs").
		Input(schema.Object(
			schema.String("path").MinLength(1).Describe("Path relative to the workspace root"),
			schema.Integer("max_bytes").Default(defaultMaxReadBytes).Min(1),
		)).
		Execute(func(_ context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			workspaceRoot, err := resolveWorkspaceRoot(ec, opts)
			if err != nil {
				return nil, err
			}
			pathValue, _ := input["path"].(string)
			target, err := resolvePathInWorkspace(workspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			maxBytes := int64(defaultMaxReadBytes)
			if raw, ok := input["max_bytes"].(float64); ok && raw > 0 {
				maxBytes = int64(raw)
			}

			data, truncated, err := readFileWithLimit(target, maxBytes)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":      pathValue,
				"content":   string(data),
				"truncated": truncated,
				"bytes":     len(data),
			}, nil
		}).
		ServerOnly()
}

func writeFileTool(opts Options) *toolexecutor.Builder {
	return toolexecutor.NewTool("write_file").
		Describe("Write content to a file in the workspace.").
		Tag("fs").
		Input(schema.Object(
			schema.String("path").MinLength(1),
			schema.String("content"),
			schema.Bool("append").Default(false),
		)).
		Execute(func(_ context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			workspaceRoot, err := resolveWorkspaceRoot(ec, opts)
			if err != nil {
				return nil, err
			}
			pathValue, _ := input["path"].(string)
			target, err := resolvePathInWorkspace(workspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}
			content, _ := input["content"].(string)
			appendMode, _ := input["append"].(bool)

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}
			if err := writeFile(target, content, appendMode); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":   pathValue,
				"bytes":  len(content),
				"append": appendMode,
			}, nil
		}).
		ServerOnly()
}

func writeFile(target, content string, appendMode bool) error {
	flag := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(target, flag, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func resolveWorkspaceRoot(ec *toolexecutor.ExecutionContext, opts Options) (string, error) {
	if root, ok := toolexecutor.Extension[string](ec, ExtWorkspaceRoot); ok && strings.TrimSpace(root) != "" {
		return filepath.Clean(root), nil
	}
	if strings.TrimSpace(opts.WorkspaceRoot) != "" {
		return filepath.Clean(opts.WorkspaceRoot), nil
	}
	return "", fmt.Errorf("workspace root is not configured")
}

func resolvePathInWorkspace(workspaceRoot string, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(workspaceRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(workspaceRoot, candidate)
	if err != nil {
		return "", err
	}
	if rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..") {
		return candidate, nil
	}
	return "", fmt.Errorf("path %q is outside workspace root", pathValue)
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	truncated := false
	extra := make([]byte, 1)
	if n, _ := file.Read(extra); n > 0 {
		truncated = true
	}
	return buf.Bytes(), truncated, nil
}
