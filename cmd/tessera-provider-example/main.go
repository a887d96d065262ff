// tessera-provider-example is a minimal external block provider. It serves
// as the reference implementation of the provider protocol (newline-
// delimited JSON-RPC 2.0 over stdio) and as the fixture for the plugin
// host's integration tests.
//
// Declare it in tessera.yaml to try it out:
//
//	providers:
//	  demo:
//	    command: tessera-provider-example
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ormasoftchile/tessera/pkg/plugins"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int64             `json:"id"`
	Result  any               `json:"result,omitempty"`
	Error   *plugins.RPCError `json:"error,omitempty"`
}

var catalog = plugins.DescribeResult{
	Name:    "demo",
	Version: "0.1.0",
	Blocks: []plugins.BlockInfo{
		{
			Type:     "demo.reverse",
			Category: "demo",
			Summary:  "Reverse a string.",
			Output:   "string",
			Inputs: []plugins.InputInfo{
				{Name: "text", Type: "string", Required: true},
			},
		},
		{
			Type:     "demo.sum",
			Category: "demo",
			Summary:  "Add two numbers.",
			Output:   "number",
			Inputs: []plugins.InputInfo{
				{Name: "a", Type: "number", Required: true},
				{Name: "b", Type: "number", Required: true},
			},
		},
	},
}

func main() {
	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			continue
		}

		// Notifications carry no id and get no response.
		if req.ID == nil {
			if req.Method == plugins.MethodShutdown {
				out.Flush()
				os.Exit(0)
			}
			continue
		}

		resp := response{JSONRPC: "2.0", ID: *req.ID}
		switch req.Method {
		case plugins.MethodDescribe:
			resp.Result = catalog
		case plugins.MethodExecute:
			var params plugins.ExecuteParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				resp.Error = &plugins.RPCError{Code: -32602, Message: err.Error()}
				break
			}
			output, err := execute(params)
			if err != nil {
				resp.Error = &plugins.RPCError{Code: -32000, Message: err.Error()}
				break
			}
			resp.Result = plugins.ExecuteResult{Output: output}
		default:
			resp.Error = &plugins.RPCError{
				Code:    -32601,
				Message: fmt.Sprintf("method %q not found", req.Method),
			}
		}

		enc.Encode(resp)
		out.Flush()
	}
}

func execute(params plugins.ExecuteParams) (any, error) {
	switch params.Block {
	case "demo.reverse":
		text, ok := params.Params["text"].(string)
		if !ok {
			return nil, fmt.Errorf("demo.reverse: text must be a string")
		}
		runes := []rune(text)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	case "demo.sum":
		a, okA := toNumber(params.Params["a"])
		b, okB := toNumber(params.Params["b"])
		if !okA || !okB {
			return nil, fmt.Errorf("demo.sum: a and b must be numbers")
		}
		return a + b, nil
	default:
		return nil, fmt.Errorf("unknown block %q", params.Block)
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
