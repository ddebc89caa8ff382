package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lotas/doctrack/internal/render"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
	"github.com/mark3labs/mcp-go/mcp"
)

// StructureTool handles doc_structure.
type StructureTool struct {
	load Loader
}

func NewStructureTool(load Loader) *StructureTool {
	return &StructureTool{load: load}
}

func (t *StructureTool) Definition() mcp.Tool {
	return mcp.NewTool("doc_structure",
		mcp.WithDescription(
			"Extract the table of contents of a documentation page with per-item completion, notes "+
				"and ids. Removed items are hidden.",
		),
		urlParam(),
		mcp.WithString("format",
			mcp.Description("Output format: text (default, one line per item with its id), markdown or json"),
			mcp.Enum("text", "markdown", "json"),
		),
	)
}

func (t *StructureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := open(ctx, t.load, req)
	if errResult != nil {
		return errResult, nil
	}
	defer sess.Close()

	st := sess.Structure()
	switch req.GetString("format", "text") {
	case "markdown":
		return mcp.NewToolResultText(render.Markdown(st)), nil
	case "json":
		out, err := render.JSON(st)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode: %v", err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nProgress: %s\n\n", st.Title, sess.Progress())
	writeRows(&b, st.Sidebar)
	if len(st.Headings) > 0 {
		fmt.Fprintf(&b, "\nHeadings (%s):\n", sess.HeadingProgress())
		writeRows(&b, st.Headings)
	}
	for _, w := range st.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func writeRows(b *strings.Builder, nodes []*types.NavNode) {
	for _, r := range render.Rows(nodes, nil, false) {
		fmt.Fprintf(b, "%s%s %s  (%s)\n", strings.Repeat("  ", r.Depth), render.Checkbox(r.Node), r.Node.Title, r.Node.ID)
	}
}

// SetCompletionTool handles doc_set_completion.
type SetCompletionTool struct {
	load Loader
}

func NewSetCompletionTool(load Loader) *SetCompletionTool {
	return &SetCompletionTool{load: load}
}

func (t *SetCompletionTool) Definition() mcp.Tool {
	return mcp.NewTool("doc_set_completion",
		mcp.WithDescription("Mark an item and all of its children as completed or not completed."),
		urlParam(),
		idParam(),
		mcp.WithBoolean("completed",
			mcp.Description("New completion state (default: true)"),
		),
		viewParam(),
	)
}

func (t *SetCompletionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	sess, errResult := open(ctx, t.load, req)
	if errResult != nil {
		return errResult, nil
	}
	defer sess.Close()

	completed := boolArg(req, "completed", true)
	changes, err := sess.SetCompletion(ctx, viewArg(req), id, completed)
	return mutationResult(sess, changes, err, fmt.Sprintf("completed=%v", completed))
}

// SaveNotesTool handles doc_save_notes.
type SaveNotesTool struct {
	load Loader
}

func NewSaveNotesTool(load Loader) *SaveNotesTool {
	return &SaveNotesTool{load: load}
}

func (t *SaveNotesTool) Definition() mcp.Tool {
	return mcp.NewTool("doc_save_notes",
		mcp.WithDescription("Replace the free-text notes of one item. Children are not affected."),
		urlParam(),
		idParam(),
		mcp.WithString("notes",
			mcp.Description("Notes text; empty clears them"),
		),
	)
}

func (t *SaveNotesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	sess, errResult := open(ctx, t.load, req)
	if errResult != nil {
		return errResult, nil
	}
	defer sess.Close()

	changes, err := sess.SaveNotes(ctx, id, req.GetString("notes", ""))
	return mutationResult(sess, changes, err, "notes saved")
}

// RemoveTool handles doc_remove.
type RemoveTool struct {
	load Loader
}

func NewRemoveTool(load Loader) *RemoveTool {
	return &RemoveTool{load: load}
}

func (t *RemoveTool) Definition() mcp.Tool {
	return mcp.NewTool("doc_remove",
		mcp.WithDescription(
			"Hide an item and its children from tracking. Completion and notes are kept, "+
				"so restore=true brings them back unchanged.",
		),
		urlParam(),
		idParam(),
		mcp.WithBoolean("restore",
			mcp.Description("Un-hide instead of hide (default: false)"),
		),
		viewParam(),
	)
}

func (t *RemoveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	sess, errResult := open(ctx, t.load, req)
	if errResult != nil {
		return errResult, nil
	}
	defer sess.Close()

	var (
		changes []types.Change
		err     error
		action  = "removed"
	)
	if boolArg(req, "restore", false) {
		action = "restored"
		changes, err = sess.Restore(ctx, viewArg(req), id)
	} else {
		changes, err = sess.MarkRemoved(ctx, viewArg(req), id)
	}
	return mutationResult(sess, changes, err, action)
}

// ProgressTool handles doc_progress.
type ProgressTool struct {
	load Loader
}

func NewProgressTool(load Loader) *ProgressTool {
	return &ProgressTool{load: load}
}

func (t *ProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("doc_progress",
		mcp.WithDescription("Report completion progress of a documentation page's sidebar and tracked headings."),
		urlParam(),
	)
}

func (t *ProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, errResult := open(ctx, t.load, req)
	if errResult != nil {
		return errResult, nil
	}
	defer sess.Close()

	return mcp.NewToolResultText(fmt.Sprintf("Sidebar: %s\nHeadings: %s\n", sess.Progress(), sess.HeadingProgress())), nil
}

func mutationResult(sess *tracker.Session, changes []types.Change, err error, action string) (*mcp.CallToolResult, error) {
	if err != nil && !errors.Is(err, tracker.ErrPersist) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(changes) == 0 {
		return mcp.NewToolResultError("no item with that id on this page"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d item(s)\n", action, len(changes))
	for _, c := range changes {
		fmt.Fprintf(&b, "  %s\n", c.ID)
	}
	fmt.Fprintf(&b, "Progress: %s\n", sess.Progress())
	if err != nil {
		fmt.Fprintf(&b, "warning: %v\n", err)
	}
	return mcp.NewToolResultText(b.String()), nil
}
