package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

func newExecCmd(opts *rootOptions) *cobra.Command {
	var (
		input   string
		callID  string
		client  bool
		remote  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec <name>",
		Short: "Execute a tool and print its result",
		Long: `Execute a tool by name with JSON input and print the ToolResult.
The command fails when the tool call fails; the result is printed either way.`,
		Example: `  toolkit exec add --input '{"a": 5, "b": 3}'
  toolkit exec search --input '{"q": "golang"}' --client`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(input)) {
				return fmt.Errorf("--input is not valid JSON")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = tracing.NewRunContext(ctx)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			call := toolexecutor.ToolCall{
				ID:       callID,
				ToolName: args[0],
				Input:    json.RawMessage(input),
			}

			var result toolexecutor.ToolResult
			if remote != "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				result, err = newRemoteClient(remote, cfg.Server.SharedSecret).Execute(ctx, call)
				if err != nil {
					return err
				}
			} else {
				rt, err := opts.newRuntime(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer rt.Close()

				ec := toolexecutor.NewContext(toolexecutor.WithServer(!client))
				result = rt.executor.ExecuteCall(ctx, call, ec)
			}

			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("tool %s failed (%s): %s", result.ToolName, result.Error.Code, result.Error.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "{}", "tool input as a JSON object")
	cmd.Flags().StringVar(&callID, "id", "", "call id (generated when empty)")
	cmd.Flags().BoolVar(&client, "client", false, "run in client context (uses the client handler when present)")
	cmd.Flags().StringVar(&remote, "remote", "", "execute on a remote server instead")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for the call")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		client bool
		remote string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Execute a batch of tool calls concurrently",
		Long: `Execute the tool calls in a JSON file concurrently and print the results
in call order. The file holds either {"toolCalls": [...]} or a bare array of
{"id", "toolName", "input"} objects. Individual failures do not fail the batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := readBatchFile(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = tracing.NewRunContext(ctx)

			var results []toolexecutor.ToolResult
			if remote != "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				results, err = newRemoteClient(remote, cfg.Server.SharedSecret).Batch(ctx, calls)
				if err != nil {
					return err
				}
			} else {
				rt, err := opts.newRuntime(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer rt.Close()

				ec := toolexecutor.NewContext(toolexecutor.WithServer(!client))
				results = rt.executor.ExecuteBatch(ctx, calls, ec)
			}

			return writeJSON(cmd.OutOrStdout(), toolexecutor.BatchResponse{Results: results})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with the tool calls (- for stdin)")
	cmd.Flags().BoolVar(&client, "client", false, "run in client context")
	cmd.Flags().StringVar(&remote, "remote", "", "execute on a remote server instead")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readBatchFile(path string) ([]toolexecutor.ToolCall, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var calls []toolexecutor.ToolCall
		if err := json.Unmarshal(data, &calls); err != nil {
			return nil, fmt.Errorf("invalid batch file: %w", err)
		}
		return calls, nil
	}

	var req toolexecutor.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}
	return req.ToolCalls, nil
}

func readAllStdin() ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(os.Stdin)
	return buf.Bytes(), err
}
