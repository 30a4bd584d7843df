package middleware

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// WrapTool runs a tool handler behind the chain. It is the dispatch surface
// for tools: an error from any stage or the handler becomes an error result
// with an "Error: " prefix instead of a protocol error.
func WrapTool(chain *Chain, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inv := NewInvocation(KindTool, request.Method, request.Params.Name, request.GetArguments())
		out, err := chain.Execute(ctx, inv, func(ctx context.Context, _ *Invocation) (any, error) {
			return h(ctx, request)
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		result, ok := out.(*mcp.CallToolResult)
		if !ok || result == nil {
			return mcp.NewToolResultError("Error: tool returned no result"), nil
		}
		return result, nil
	}
}

// WrapResource runs a resource handler behind the chain. Errors are returned
// to mcp-go unchanged.
func WrapResource(chain *Chain, h server.ResourceHandlerFunc) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		inv := NewInvocation(KindResource, request.Method, request.Params.URI, nil)
		out, err := chain.Execute(ctx, inv, func(ctx context.Context, _ *Invocation) (any, error) {
			return h(ctx, request)
		})
		if err != nil {
			return nil, err
		}
		contents, _ := out.([]mcp.ResourceContents)
		return contents, nil
	}
}

// WrapPrompt runs a prompt handler behind the chain. Errors are returned to
// mcp-go unchanged.
func WrapPrompt(chain *Chain, h server.PromptHandlerFunc) server.PromptHandlerFunc {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]any
		if len(request.Params.Arguments) > 0 {
			args = make(map[string]any, len(request.Params.Arguments))
			for k, v := range request.Params.Arguments {
				args[k] = v
			}
		}
		inv := NewInvocation(KindPrompt, request.Method, request.Params.Name, args)
		out, err := chain.Execute(ctx, inv, func(ctx context.Context, _ *Invocation) (any, error) {
			return h(ctx, request)
		})
		if err != nil {
			return nil, err
		}
		result, _ := out.(*mcp.GetPromptResult)
		return result, nil
	}
}
