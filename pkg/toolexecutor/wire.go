package toolexecutor

// ToolCall is a request to run a tool. Input is raw and unvalidated.
type ToolCall struct {
	ID       string      `json:"id"`
	ToolName string      `json:"toolName"`
	Input    interface{} `json:"input,omitempty"`
}

// ToolResult is the outcome of a ToolCall. On failure Output is nil and
// Error is set.
type ToolResult struct {
	ID       string                 `json:"id"`
	ToolName string                 `json:"toolName"`
	Output   interface{}            `json:"output"`
	Error    *ErrorInfo             `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	err error
}

// Failed reports whether the call failed.
func (r ToolResult) Failed() bool {
	return r.Error != nil
}

// Err returns the original error for failed results. It is nil for results
// decoded from JSON.
func (r ToolResult) Err() error {
	return r.err
}

func (r *ToolResult) setError(err error) {
	r.Output = nil
	r.Error = NewErrorInfo(err)
	r.err = err
}

// RemoteRequest is the remote invocation request body.
type RemoteRequest struct {
	ToolCall ToolCall `json:"toolCall"`
}

// BatchRequest is the remote batch invocation request body.
type BatchRequest struct {
	ToolCalls []ToolCall `json:"toolCalls"`
}

// BatchResponse is the remote batch invocation response body.
type BatchResponse struct {
	Results []ToolResult `json:"results"`
}
