// Package mcptools exposes doc tracking as MCP tools.
//
// Each tool follows the same shape:
//   - a struct holding a Loader, injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() loads a fresh session for the requested page, applies the
//     operation and returns a text result
package mcptools

import (
	"context"
	"fmt"

	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Loader builds a loaded session for a page reference (URL or file path).
// The caller closes the session.
type Loader func(ctx context.Context, ref string) (*tracker.Session, error)

// NewServer returns an MCP server with every doc tool registered.
func NewServer(version string, load Loader) *server.MCPServer {
	s := server.NewMCPServer(
		"doctrack",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	Register(s, load)
	return s
}

// Register adds the doc tools to s.
func Register(s *server.MCPServer, load Loader) {
	structure := NewStructureTool(load)
	s.AddTool(structure.Definition(), structure.Handle)

	completion := NewSetCompletionTool(load)
	s.AddTool(completion.Definition(), completion.Handle)

	notes := NewSaveNotesTool(load)
	s.AddTool(notes.Definition(), notes.Handle)

	remove := NewRemoveTool(load)
	s.AddTool(remove.Definition(), remove.Handle)

	progress := NewProgressTool(load)
	s.AddTool(progress.Definition(), progress.Handle)
}

const instructions = `doctrack tracks reading progress through documentation sites.
Call doc_structure with a page URL to see its table of contents and item ids,
then doc_set_completion, doc_save_notes or doc_remove with one of those ids.
Completion and removal cascade to every child item.`

func urlParam() mcp.ToolOption {
	return mcp.WithString("url",
		mcp.Required(),
		mcp.Description("Documentation page URL or local file path"),
	)
}

func idParam() mcp.ToolOption {
	return mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Item id as shown by doc_structure (starts with item-)"),
	)
}

func viewParam() mcp.ToolOption {
	return mcp.WithString("view",
		mcp.Description("Which tree the id refers to: sidebar (default) or headings"),
		mcp.Enum("sidebar", "headings"),
	)
}

func viewArg(req mcp.CallToolRequest) types.ViewKind {
	if req.GetString("view", "sidebar") == "headings" {
		return types.ViewHeadings
	}
	return types.ViewSidebar
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// open validates the common url argument and loads a session.
func open(ctx context.Context, load Loader, req mcp.CallToolRequest) (*tracker.Session, *mcp.CallToolResult) {
	ref := req.GetString("url", "")
	if ref == "" {
		return nil, mcp.NewToolResultError("'url' is required")
	}
	sess, err := load(ctx, ref)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to load %s: %v", ref, err))
	}
	return sess, nil
}
