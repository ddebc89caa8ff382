package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/types"
)

type wireNode struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Href     string     `json:"href"`
	Level    int        `json:"level"`
	Children []wireNode `json:"children"`
}

// ParseStructure converts a "docStructure" message into a Structure. Nodes
// the extension sent without an id get one derived from their href.
func ParseStructure(msg IncomingMsg) (types.Structure, error) {
	s := types.Structure{
		URL:      msg.URL,
		Title:    msg.Title,
		Sidebar:  []*types.NavNode{},
		Headings: []*types.NavNode{},
	}

	if len(msg.Payload) > 0 {
		var nodes []wireNode
		if err := json.Unmarshal(msg.Payload, &nodes); err != nil {
			return s, fmt.Errorf("parse payload: %w", err)
		}
		s.Sidebar = convertNodes(nodes, msg.URL, 1)
	}
	if len(msg.Headings) > 0 {
		var nodes []wireNode
		if err := json.Unmarshal(msg.Headings, &nodes); err != nil {
			return s, fmt.Errorf("parse headings: %w", err)
		}
		s.Headings = convertNodes(nodes, msg.URL, 1)
	}
	if len(s.Sidebar) == 0 {
		s.Warnings = append(s.Warnings, "extension sent no sidebar items")
	}
	return s, nil
}

func convertNodes(wire []wireNode, pageURL string, level int) []*types.NavNode {
	out := make([]*types.NavNode, 0, len(wire))
	for _, w := range wire {
		n := &types.NavNode{
			ID:      w.ID,
			Title:   strings.TrimSpace(w.Title),
			Address: w.Href,
			Level:   w.Level,
		}
		if n.Level <= 0 {
			n.Level = level
		}
		if n.ID == "" {
			if w.Href == "" {
				applog.Info("ws.parse.skip", "title", w.Title)
				continue
			}
			id := identity.ForLink(w.Href, pageURL)
			n.ID, n.Address, n.Link = id.ID, id.Address, id.Link
		}
		n.Children = convertNodes(w.Children, pageURL, n.Level+1)
		out = append(out, n)
	}
	return out
}
