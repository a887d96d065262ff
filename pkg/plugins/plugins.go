// Package plugins hosts external block providers: subprocesses declared in
// project config that speak newline-delimited JSON-RPC 2.0 over stdio. At
// startup each provider answers provider/describe with its block catalog;
// the host registers proxy descriptors that forward block/execute calls to
// the subprocess. Registration goes through the shared registry, so a
// provider block with a built-in's type overrides the built-in.
package plugins

import "fmt"

// JSON-RPC methods of the provider protocol.
const (
	MethodDescribe = "provider/describe"
	MethodExecute  = "block/execute"
	MethodShutdown = "provider/shutdown" // notification, no response
)

// BlockInfo is a provider-declared block descriptor on the wire.
type BlockInfo struct {
	Type      string      `json:"type"`
	Category  string      `json:"category,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	Doc       string      `json:"doc,omitempty"`
	Output    string      `json:"output,omitempty"`
	Statement bool        `json:"statement,omitempty"`
	Inputs    []InputInfo `json:"inputs,omitempty"`
}

// InputInfo declares one input of a provider block. Provider inputs are
// always value positions; statement slots stay host-side.
type InputInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`
	Doc      string `json:"doc,omitempty"`
}

// DescribeResult is the provider/describe response payload.
type DescribeResult struct {
	Name    string      `json:"name,omitempty"`
	Version string      `json:"version,omitempty"`
	Blocks  []BlockInfo `json:"blocks"`
}

// ExecuteParams is the block/execute request payload. Params arrive fully
// resolved; the provider never sees nested steps or variables.
type ExecuteParams struct {
	Block  string         `json:"block"`
	Params map[string]any `json:"params"`
	RunID  string         `json:"run_id,omitempty"`
	Case   string         `json:"case,omitempty"`
}

// ExecuteResult is the block/execute response payload.
type ExecuteResult struct {
	Output any `json:"output"`
}

// RPCError is a JSON-RPC error object returned by a provider.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}
