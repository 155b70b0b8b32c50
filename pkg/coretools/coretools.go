package coretools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/toolkit/pkg/schema"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

// ExtWorkspaceRoot is the ExecutionContext extension key that overrides
// Options.WorkspaceRoot for a single call.
const ExtWorkspaceRoot = "workspace_root"

// Options configures core tool registration.
type Options struct {
	// WorkspaceRoot confines read_file and write_file.
	WorkspaceRoot string
	// SearchURL is the JSON endpoint queried by the search tool.
	SearchURL string
}

// RegisterCoreTools registers the built-in tools into reg.
func RegisterCoreTools(reg *toolexecutor.Registry, opts Options) error {
	if reg == nil {
		return errors.New("tool registry is required")
	}

	builders := []*toolexecutor.Builder{
		echoTool(),
		addTool(),
		fetchJSONTool(),
		searchTool(opts),
		readFileTool(opts),
		writeFileTool(opts),
	}

	for _, b := range builders {
		if _, err := b.Register(reg); err != nil {
			return fmt.Errorf("failed to register core tool: %w", err)
		}
	}
	return nil
}

type echoInput struct {
	Message string `json:"message"`
	Upper   bool   `json:"upper"`
}

type echoOutput struct {
	Message string `json:"message"`
}

func echoTool() *toolexecutor.Builder {
	return toolexecutor.NewTool("echo").
		Describe("Return the message unchanged, or upper-cased.").
		Tag("util").
		Input(schema.Object(
			schema.String("message").Describe("Text to echo"),
			schema.Bool("upper").Default(false),
		)).
		Execute(toolexecutor.Typed(func(_ context.Context, in echoInput, _ *toolexecutor.ExecutionContext) (echoOutput, error) {
			if in.Upper {
				return echoOutput{Message: strings.ToUpper(in.Message)}, nil
			}
			return echoOutput{Message: in.Message}, nil
		})).
		AI()
}

func addTool() *toolexecutor.Builder {
	return toolexecutor.NewTool("add").
		Describe("Add two numbers.").
		Tag("math", "util").
		Input(schema.Object(
			schema.Number("a"),
			schema.Number("b"),
		)).
		Output(schema.MustCompile(map[string]interface{}{"type": "number"})).
		ExecuteInput(func(_ context.Context, input map[string]interface{}) (interface{}, error) {
			a, _ := input["a"].(float64)
			b, _ := input["b"].(float64)
			return a + b, nil
		})
}
