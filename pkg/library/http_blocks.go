package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// maxResponseBody caps recorded HTTP bodies so a misbehaving endpoint
// cannot balloon traces.
const maxResponseBody = 4 << 20

func registerHTTP(reg *blocks.Registry, opts Options) {
	requestInputs := []blocks.InputSpec{
		{Name: "method", Kind: blocks.InputField, Type: "string", Default: "GET"},
		{Name: "url", Kind: blocks.InputField, Type: "string", Required: true},
		{Name: "headers", Kind: blocks.InputField, Type: "map"},
		{Name: "body", Kind: blocks.InputValue, Type: "any"},
		{Name: "timeout", Kind: blocks.InputField, Type: "string"},
	}

	reg.Register(&blocks.Descriptor{
		Type:     "http.request",
		Category: "http",
		Summary:  "Perform an HTTP request.",
		Doc: "Structured bodies are JSON-encoded with a matching Content-Type. " +
			"The output carries `status`, `headers`, `body`, and `json` when " +
			"the response is JSON.",
		Inputs:    requestInputs,
		Statement: true,
		Output:    "map",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			return doRequest(ctx, ec, call, opts, call.StringOr("method", "GET"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "http.get",
		Category: "http",
		Summary:  "Perform an HTTP GET.",
		Inputs: []blocks.InputSpec{
			{Name: "url", Kind: blocks.InputField, Type: "string", Required: true},
			{Name: "headers", Kind: blocks.InputField, Type: "map"},
			{Name: "timeout", Kind: blocks.InputField, Type: "string"},
		},
		Statement: true,
		Output:    "map",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			return doRequest(ctx, ec, call, opts, http.MethodGet)
		},
	})
}

func doRequest(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call, opts Options, method string) (any, error) {
	client := ec.HTTP
	if client == nil {
		client = opts.HTTP
	}

	if timeout := call.Duration("timeout", 0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reqBody io.Reader
	contentType := ""
	switch body := call.Params["body"].(type) {
	case nil:
	case string:
		reqBody = strings.NewReader(body)
	case []byte:
		reqBody = bytes.NewReader(body)
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), call.String("url"), reqBody)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, v := range call.Map("headers") {
		req.Header.Set(name, fmt.Sprint(v))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]any, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}

	out := map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(raw),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "json") && len(raw) > 0 {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			out["json"] = parsed
		}
	}

	ec.Logger.Debug("http request",
		"method", method, "url", call.String("url"),
		"status", resp.StatusCode, "bytes", len(raw))
	return out, nil
}
