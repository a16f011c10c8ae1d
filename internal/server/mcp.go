package server

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tidal-mcp/internal/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the implementation name reported during initialization.
const Name = "tidal-mcp"

// Dispatcher lists the tools to serve. [tools.Dispatcher] implements it.
type Dispatcher interface {
	Tools() []tools.Tool
}

// NewMCPServer creates an MCP server exposing every tool of d.
func NewMCPServer(d Dispatcher, version string, logger *log.Logger) *mcp.Server {
	srv := mcp.NewServer(
		&mcp.Implementation{Name: Name, Version: version},
		&mcp.ServerOptions{Instructions: tools.Instructions},
	)

	for _, tool := range d.Tools() {
		srv.AddTool(toolFor(tool.Definition), handlerFor(tool, logger))
	}
	return srv
}

// RunStdio serves srv over stdin and stdout until ctx ends or the client disconnects.
func RunStdio(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func toolFor(def tools.Definition) *mcp.Tool {
	destructive, openWorld := def.Destructive, def.OpenWorld
	return &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Annotations: &mcp.ToolAnnotations{
			Title:           def.Title,
			ReadOnlyHint:    def.ReadOnly,
			IdempotentHint:  def.Idempotent,
			DestructiveHint: &destructive,
			OpenWorldHint:   &openWorld,
		},
	}
}

func handlerFor(tool tools.Tool, logger *log.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("recovered panic in tool handler", "tool", tool.Name, "panic", r)
				res = toCallResult(tools.Failure{Status: tools.StatusError, Message: "Operation failed: internal error"})
				err = nil
			}
		}()

		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		return toCallResult(tool.Handler(ctx, args)), nil
	}
}

// toCallResult sends the envelope as JSON text and as structured content.
func toCallResult(r tools.Result) *mcp.CallToolResult {
	data, err := json.Marshal(r)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: `{"status":"error","message":"Operation failed: internal error"}`}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: r,
		IsError:           !r.OK(),
	}
}
