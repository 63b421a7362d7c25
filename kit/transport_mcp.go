package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolSpec describes one MCP tool: its name, description, and the object
// schema for its arguments.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

func (s ToolSpec) tool() *mcp.Tool {
	schema := map[string]any{
		"type":       "object",
		"properties": s.Properties,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return &mcp.Tool{Name: s.Name, Description: s.Description, InputSchema: schema}
}

// RegisterTool registers an Endpoint as an MCP tool. Arguments decode into
// a fresh Req passed to the endpoint as *Req. Decode and endpoint failures
// are reported as tool errors the agent can read, never protocol errors.
func RegisterTool[Req any](srv *mcp.Server, spec ToolSpec, enrich func(context.Context) context.Context, endpoint Endpoint) {
	srv.AddTool(spec.tool(), func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := new(Req)
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, req); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		if enrich != nil {
			ctx = enrich(ctx)
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal response: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
