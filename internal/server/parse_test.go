package server

import (
	"encoding/json"
	"testing"
)

func TestParseStructure(t *testing.T) {
	payload := `[
		{"id": "item-x", "title": " Getting Started ", "href": "/manual/gs/", "level": 1, "children": [
			{"title": "Install", "href": "install.html", "level": 2, "children": []},
			{"title": "No href", "level": 2}
		]}
	]`
	headings := `[{"id": "item-_manual_gs__intro", "title": "Intro", "href": "#intro", "level": 2}]`

	s, err := ParseStructure(IncomingMsg{
		Type:     TypeDocStructure,
		URL:      "https://docs.example.org/manual/gs/index.html",
		Title:    "Getting Started",
		Payload:  json.RawMessage(payload),
		Headings: json.RawMessage(headings),
	})
	if err != nil {
		t.Fatalf("ParseStructure: %v", err)
	}
	if len(s.Sidebar) != 1 {
		t.Fatalf("expected 1 root, got %d", len(s.Sidebar))
	}
	root := s.Sidebar[0]
	if root.ID != "item-x" || root.Title != "Getting Started" {
		t.Errorf("root = %+v", root)
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 child (href-less skipped), got %d", len(root.Children))
	}
	child := root.Children[0]
	if child.ID != "item-_manual_gs_install_html" || child.Address != "/manual/gs/install.html" {
		t.Errorf("derived id = %q address = %q", child.ID, child.Address)
	}
	if child.Children == nil {
		t.Error("children should be empty, not nil")
	}
	if len(s.Headings) != 1 || s.Headings[0].Level != 2 {
		t.Errorf("headings = %+v", s.Headings)
	}
}

func TestParseStructureMissingLevel(t *testing.T) {
	s, err := ParseStructure(IncomingMsg{
		URL:     "https://x.org/",
		Payload: json.RawMessage(`[{"id":"a","title":"A","children":[{"id":"b","title":"B"}]}]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Sidebar[0].Level != 1 || s.Sidebar[0].Children[0].Level != 2 {
		t.Errorf("levels = %d, %d", s.Sidebar[0].Level, s.Sidebar[0].Children[0].Level)
	}
}

func TestParseStructureEmpty(t *testing.T) {
	s, err := ParseStructure(IncomingMsg{URL: "https://x.org/"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Sidebar == nil || len(s.Warnings) != 1 {
		t.Errorf("structure = %+v", s)
	}
}

func TestParseStructureInvalid(t *testing.T) {
	if _, err := ParseStructure(IncomingMsg{Payload: json.RawMessage(`{"not":"a list"}`)}); err == nil {
		t.Error("expected error")
	}
}
