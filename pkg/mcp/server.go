// Package mcp exposes compile, validate and run as MCP tools for agents.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the qaflow tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"qaflow",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("qaflow/validate",
			mcp.WithDescription("Validate candidate actions without storing anything"),
			mcp.WithString("actions", mcp.Required(), mcp.Description(`JSON array of candidate actions, e.g. [{"action":"navigate","url":"/"}]`)),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("qaflow/compile",
			mcp.WithDescription("Compile candidate actions into a stored test case"),
			mcp.WithString("actions", mcp.Required(), mcp.Description("JSON array of candidate actions")),
			mcp.WithString("source", mcp.Required(), mcp.Description("Source artifact the scenario describes, e.g. src/Login.tsx")),
			mcp.WithString("mode", mcp.Description("strict or lossy (default lossy)")),
			mcp.WithString("target", mcp.Description("Target application URL")),
		),
		h.HandleCompile,
	)

	s.AddTool(
		mcp.NewTool("qaflow/list",
			mcp.WithDescription("List stored test case names"),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("qaflow/run",
			mcp.WithDescription("Execute stored test cases and return the run report"),
			mcp.WithString("names", mcp.Description("Comma-separated test case names (default: all)")),
			mcp.WithString("target", mcp.Description("Override the target application URL")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("qaflow/schema",
			mcp.WithDescription("Export JSON Schema for actions or stored test cases"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'actions' or 'testcase'")),
		),
		h.HandleSchema,
	)

	return s
}
