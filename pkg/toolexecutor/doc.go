// Package toolexecutor defines, registers and executes named tools.
//
// Invariants:
// - Tool names are unique within a Registry; registering a taken name fails.
// - Input is schema-validated before any middleware or handler runs.
// - Middleware registered first wraps outermost.
// - Policies apply in a fixed order: cache check, retry(timeout(chain)), cache store.
// - Validation and resolution errors are never retried.
// - Batch results keep call order; one failure never aborts the others.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry()
//	_, _ = toolexecutor.NewTool("add").
//		Input(schema.Object(schema.Number("a"), schema.Number("b"))).
//		ExecuteInput(func(ctx context.Context, in map[string]interface{}) (interface{}, error) {
//			return in["a"].(float64) + in["b"].(float64), nil
//		}).
//		Register(reg)
//
//	exec := toolexecutor.New(toolexecutor.WithRegistry(reg))
//	sum, err := exec.Execute(ctx, "add", map[string]interface{}{"a": 5, "b": 3}, nil)
package toolexecutor
