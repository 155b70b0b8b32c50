package toolhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

// Client calls a remote tool server.
type Client struct {
	baseURL    string
	secret     string
	callerID   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSecret signs request bodies with secret.
func WithSecret(secret string) ClientOption {
	return func(c *Client) { c.secret = secret }
}

// WithCallerID sets the caller identity sent with each request.
func WithCallerID(id string) ClientOption {
	return func(c *Client) { c.callerID = id }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the descriptors of all remote tools.
func (c *Client) List(ctx context.Context) ([]toolexecutor.Descriptor, error) {
	var resp ToolsResponse
	if _, err := c.do(ctx, http.MethodGet, "/tools", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// Describe returns the descriptor of one remote tool.
func (c *Client) Describe(ctx context.Context, name string) (toolexecutor.Descriptor, error) {
	var desc toolexecutor.Descriptor
	if _, err := c.do(ctx, http.MethodGet, "/tools/"+url.PathEscape(name), nil, &desc); err != nil {
		return toolexecutor.Descriptor{}, err
	}
	return desc, nil
}

// Execute runs one call remotely. Tool failures come back in the result;
// the error is reserved for transport problems.
func (c *Client) Execute(ctx context.Context, call toolexecutor.ToolCall) (toolexecutor.ToolResult, error) {
	var result toolexecutor.ToolResult
	_, err := c.do(ctx, http.MethodPost, "/tools/execute", toolexecutor.RemoteRequest{ToolCall: call}, &result)
	return result, err
}

// Batch runs calls remotely and returns results in call order.
func (c *Client) Batch(ctx context.Context, calls []toolexecutor.ToolCall) ([]toolexecutor.ToolResult, error) {
	var resp toolexecutor.BatchResponse
	if _, err := c.do(ctx, http.MethodPost, "/tools/batch", toolexecutor.BatchRequest{ToolCalls: calls}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.secret != "" {
			req.Header.Set(HeaderSignature, Sign(payload, c.secret))
		}
	}
	if c.callerID != "" {
		req.Header.Set(HeaderCallerID, c.callerID)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set(HeaderTraceID, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s (status %d)", method, path, e.Error, resp.StatusCode)
		}
		// Failed tool results carry their own error whatever the status.
		if _, isResult := out.(*toolexecutor.ToolResult); !isResult {
			return resp.StatusCode, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
