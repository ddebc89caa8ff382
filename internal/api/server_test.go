package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lotas/doctrack/internal/config"
	"github.com/lotas/doctrack/internal/server"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/types"
	"nhooyr.io/websocket"
)

func testServer(t *testing.T, bridge *server.Server) (*httptest.Server, *storage.StateStore) {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewStateStore(db)
	cfg := config.Config{RequestTimeout: 2 * time.Second}
	ts := httptest.NewServer(NewServer(store, bridge, slog.New(slog.DiscardHandler), cfg))
	t.Cleanup(ts.Close)
	return ts, store
}

func post(t *testing.T, ts *httptest.Server, path string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s response %q: %v", path, raw, err)
		}
	}
	return resp.StatusCode
}

func sampleNodes() []*types.NavNode {
	leaf := func(id string) *types.NavNode {
		return &types.NavNode{ID: id, Title: id, Children: []*types.NavNode{}}
	}
	return []*types.NavNode{{
		ID: "A", Title: "A", Children: []*types.NavNode{leaf("B"), {ID: "C", Title: "C", Children: []*types.NavNode{leaf("D")}}},
	}}
}

func TestHealth(t *testing.T) {
	ts, _ := testServer(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["extension"] != false {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

func TestStateSetMergesOnWrite(t *testing.T) {
	ts, _ := testServer(t, nil)

	code := post(t, ts, "/api/state/set", map[string]any{
		"updates": map[string]any{"item-a": map[string]any{"completed": true, "notes": "x"}},
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("set status = %d", code)
	}
	post(t, ts, "/api/state/set", map[string]any{
		"updates": map[string]any{"item-a": map[string]any{"completed": false}},
	}, nil)

	var got struct {
		States map[string]types.ItemState `json:"states"`
	}
	if code := post(t, ts, "/api/state/get", map[string]any{"ids": []string{"item-a", "item-missing"}}, &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if got.States["item-a"] != (types.ItemState{Notes: "x"}) {
		t.Errorf("item-a = %+v", got.States["item-a"])
	}
	if _, ok := got.States["item-missing"]; ok {
		t.Error("missing ids should be absent")
	}
}

func TestCompletionCascade(t *testing.T) {
	ts, store := testServer(t, nil)

	var resp mutationResponse
	code := post(t, ts, "/api/completion", map[string]any{
		"nodes": sampleNodes(), "id": "A", "completed": true,
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Changes) != 4 || resp.Progress.Percent != 100 {
		t.Errorf("resp = %+v", resp)
	}

	states, _ := store.GetMany(context.Background(), []string{"A", "B", "C", "D"})
	for _, id := range []string{"A", "B", "C", "D"} {
		if !states[id].Completed {
			t.Errorf("%s not stored as completed", id)
		}
	}

	// Unknown id is a no-op.
	code = post(t, ts, "/api/completion", map[string]any{
		"nodes": sampleNodes(), "id": "nope", "completed": false,
	}, &resp)
	if code != http.StatusOK || len(resp.Changes) != 0 {
		t.Errorf("unknown id: %d %+v", code, resp.Changes)
	}
}

func TestRemoveRestoreAndProgress(t *testing.T) {
	ts, _ := testServer(t, nil)

	post(t, ts, "/api/completion", map[string]any{"nodes": sampleNodes(), "id": "B", "completed": true}, nil)

	var resp mutationResponse
	if code := post(t, ts, "/api/remove", map[string]any{"nodes": sampleNodes(), "id": "C"}, &resp); code != http.StatusOK {
		t.Fatalf("remove status = %d", code)
	}
	if len(resp.Changes) != 2 || !resp.Changes[0].State.Removed {
		t.Errorf("remove changes = %+v", resp.Changes)
	}

	if code := post(t, ts, "/api/progress", map[string]any{"nodes": sampleNodes()}, &resp); code != http.StatusOK {
		t.Fatalf("progress status = %d", code)
	}
	if resp.Progress != (types.Progress{Completed: 1, Total: 2, Percent: 50}) {
		t.Errorf("progress = %+v", resp.Progress)
	}

	post(t, ts, "/api/restore", map[string]any{"nodes": sampleNodes(), "id": "C"}, &resp)
	post(t, ts, "/api/progress", map[string]any{"nodes": sampleNodes()}, &resp)
	if resp.Progress.Total != 4 {
		t.Errorf("progress after restore = %+v", resp.Progress)
	}
}

func TestNotesKeepCompletion(t *testing.T) {
	ts, store := testServer(t, nil)
	post(t, ts, "/api/completion", map[string]any{"nodes": sampleNodes(), "id": "D", "completed": true}, nil)

	if code := post(t, ts, "/api/notes", map[string]any{"id": "D", "notes": "ch. 4"}, nil); code != http.StatusOK {
		t.Fatalf("notes status = %d", code)
	}
	states, _ := store.GetMany(context.Background(), []string{"D"})
	if states["D"] != (types.ItemState{Completed: true, Notes: "ch. 4"}) {
		t.Errorf("D = %+v", states["D"])
	}
}

func TestBadRequests(t *testing.T) {
	ts, _ := testServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/completion", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}

	if code := post(t, ts, "/api/remove", map[string]any{"nodes": sampleNodes()}, nil); code != http.StatusBadRequest {
		t.Errorf("missing id status = %d", code)
	}
}

func TestLiveStructureNotConnected(t *testing.T) {
	ts, _ := testServer(t, server.New(0))
	resp, err := http.Get(ts.URL + "/api/live/structure")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLiveStructureThroughBridge(t *testing.T) {
	bridge := server.New(0)
	ts, store := testServer(t, bridge)
	store.SetMany(context.Background(), map[string]types.StatePatch{
		"item-_manual_a_html": {Notes: strPtr("stored")},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	for !bridge.Connected() {
		time.Sleep(5 * time.Millisecond)
	}

	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req server.OutgoingMsg
		json.Unmarshal(data, &req)
		resp, _ := json.Marshal(map[string]any{
			"type": server.TypeDocStructure,
			"id":   req.ID,
			"url":  "https://docs.example.org/manual/index.html",
			"payload": []map[string]any{
				{"title": "A", "href": "a.html", "level": 1},
			},
		})
		conn.Write(ctx, websocket.MessageText, resp)
	}()

	resp, err := http.Get(ts.URL + "/api/live/structure")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Structure types.Structure `json:"structure"`
		Progress  types.Progress  `json:"progress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Structure.Sidebar) != 1 || body.Structure.Sidebar[0].Notes != "stored" {
		t.Errorf("sidebar = %+v", body.Structure.Sidebar)
	}
	if body.Progress.Total != 1 {
		t.Errorf("progress = %+v", body.Progress)
	}
}

func strPtr(s string) *string { return &s }

func TestMutationsNotifyExtension(t *testing.T) {
	bridge := server.New(0)
	ts, store := testServer(t, bridge)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	for !bridge.Connected() {
		if ctx.Err() != nil {
			t.Fatal("bridge never registered the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	next := func() server.OutgoingMsg {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg server.OutgoingMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != server.TypeStateChanged {
			t.Fatalf("type = %q", msg.Type)
		}
		return msg
	}

	pageURL := "https://docs.example.org/manual/"
	post(t, ts, "/api/completion", map[string]any{"url": pageURL, "nodes": sampleNodes(), "id": "C", "completed": true}, nil)
	msg := next()
	if msg.URL != pageURL || len(msg.Changes) != 2 || !msg.Changes[0].State.Completed {
		t.Errorf("completion notification = %+v", msg)
	}

	post(t, ts, "/api/remove", map[string]any{"url": pageURL, "nodes": sampleNodes(), "id": "C"}, nil)
	msg = next()
	if len(msg.Changes) != 2 {
		t.Fatalf("remove changes = %+v", msg.Changes)
	}
	states, _ := store.GetMany(context.Background(), []string{"C", "D"})
	want := types.ItemState{Completed: true, Removed: true}
	for _, c := range msg.Changes {
		if c.State != want || states[c.ID] != want {
			t.Errorf("%s: sent %+v, stored %+v", c.ID, c.State, states[c.ID])
		}
	}
	if msg.Progress == nil || msg.Progress.Total != 2 {
		t.Errorf("progress = %+v", msg.Progress)
	}
}
