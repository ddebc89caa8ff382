package render

import (
	"encoding/json"
	"time"

	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
)

type jsonExport struct {
	URL             string           `json:"url"`
	Title           string           `json:"title,omitempty"`
	ExportedAt      time.Time        `json:"exported_at"`
	Progress        types.Progress   `json:"progress"`
	HeadingProgress types.Progress   `json:"heading_progress"`
	Sidebar         []*types.NavNode `json:"sidebar"`
	Headings        []*types.NavNode `json:"headings"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// JSON formats an annotated page as a JSON document.
func JSON(s types.Structure) (string, error) {
	out := jsonExport{
		URL:             s.URL,
		Title:           s.Title,
		ExportedAt:      timeNow(),
		Progress:        tracker.ComputeProgress(s.Sidebar),
		HeadingProgress: tracker.ComputeProgress(s.Headings),
		Sidebar:         s.Sidebar,
		Headings:        s.Headings,
		Warnings:        s.Warnings,
	}
	if out.Sidebar == nil {
		out.Sidebar = []*types.NavNode{}
	}
	if out.Headings == nil {
		out.Headings = []*types.NavNode{}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
