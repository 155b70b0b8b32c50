package coretools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harun/toolkit/pkg/schema"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

type fetchInput struct {
	URL     string                 `json:"url" jsonschema:"format=uri,description=Absolute URL of a JSON resource"`
	Method  string                 `json:"method,omitempty" jsonschema:"enum=GET,enum=POST,enum=PUT,enum=DELETE"`
	Headers map[string]string      `json:"headers,omitempty"`
	Body    map[string]interface{} `json:"body,omitempty"`
}

func fetchJSONTool() *toolexecutor.Builder {
	return toolexecutor.NewTool("fetch_json").
		Describe("Fetch a JSON document over HTTP.").
		Tag("web").
		Input(schema.MustFromStruct(&fetchInput{})).
		Execute(toolexecutor.Typed(func(ctx context.Context, in fetchInput, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			return ec.Fetch.Fetch(ctx, toolexecutor.FetchRequest{
				Method:  in.Method,
				URL:     in.URL,
				Headers: in.Headers,
				Body:    bodyOrNil(in.Body),
			})
		})).
		Retry(3).
		Timeout(10 * time.Second)
}

func bodyOrNil(body map[string]interface{}) interface{} {
	if len(body) == 0 {
		return nil
	}
	return body
}

func searchTool(opts Options) *toolexecutor.Builder {
	endpoint := strings.TrimSpace(opts.SearchURL)

	fetch := func(ctx context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
		if endpoint == "" {
			return nil, fmt.Errorf("search endpoint is not configured")
		}
		query, _ := input["q"].(string)
		limit, _ := input["limit"].(float64)

		target, err := searchURL(endpoint, query, int(limit))
		if err != nil {
			return nil, err
		}
		return ec.Fetch.Fetch(ctx, toolexecutor.FetchRequest{URL: target})
	}

	return toolexecutor.NewTool("search").
		Describe("Query the configured search endpoint.").
		Tag("web").
		Input(schema.Object(
			schema.String("q").MinLength(1).Describe("Search query"),
			schema.Integer("limit").Default(5).Min(1).Max(50),
		)).
		Execute(fetch).
		Client(func(ctx context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext) (interface{}, error) {
			query, _ := input["q"].(string)
			if cached, ok := ec.Cache.Get(query); ok {
				return cached, nil
			}
			out, err := fetch(ctx, input, ec)
			if err != nil {
				return nil, err
			}
			ec.Cache.Set(query, out)
			return out, nil
		}).
		Retry(2).
		Timeout(15 * time.Second).
		Cache()
}

func searchURL(endpoint, query string, limit int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
