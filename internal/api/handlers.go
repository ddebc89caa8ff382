package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lotas/doctrack/internal/server"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
)

// maxRequestBody caps request bodies; large manuals send whole trees.
const maxRequestBody = 16 << 20

type stateGetRequest struct {
	IDs []string `json:"ids"`
}

type stateSetRequest struct {
	Updates map[string]types.StatePatch `json:"updates"`
}

type treeRequest struct {
	URL   string           `json:"url,omitempty"`
	Nodes []*types.NavNode `json:"nodes"`
	ID    string           `json:"id,omitempty"`
}

type completionRequest struct {
	treeRequest
	Completed bool `json:"completed"`
}

type notesRequest struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
}

type mutationResponse struct {
	Changes  []types.Change   `json:"changes"`
	Nodes    []*types.NavNode `json:"nodes"`
	Progress types.Progress   `json:"progress"`
	// Error reports a persistence failure. The returned nodes still carry
	// the applied change.
	Error string `json:"error,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleStateGet(w http.ResponseWriter, r *http.Request) {
	var req stateGetRequest
	if !decode(w, r, &req) {
		return
	}
	states, err := s.store.GetMany(r.Context(), req.IDs)
	if err != nil {
		jsonError(w, "failed to read state: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

func (s *Server) handleStateSet(w http.ResponseWriter, r *http.Request) {
	var req stateSetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetMany(context.WithoutCancel(r.Context()), req.Updates); err != nil {
		jsonError(w, "failed to write state: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "updated": len(req.Updates)})
}

// loadTree merges stored state onto the posted tree.
func (s *Server) loadTree(w http.ResponseWriter, r *http.Request, nodes []*types.NavNode) bool {
	states, err := s.store.GetMany(r.Context(), tracker.CollectIDs(nodes))
	if err != nil {
		jsonError(w, "failed to read state: "+err.Error(), http.StatusInternalServerError)
		return false
	}
	tracker.Merge(nodes, states)
	return true
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.loadTree(w, r, req.Nodes) {
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Changes:  []types.Change{},
		Nodes:    nonNil(req.Nodes),
		Progress: tracker.ComputeProgress(req.Nodes),
	})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if !decode(w, r, &req) {
		return
	}
	s.mutate(w, r, req.treeRequest, func(ctx context.Context) ([]types.Change, error) {
		return tracker.SetCompletion(ctx, s.store, req.Nodes, req.ID, req.Completed)
	})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if !decode(w, r, &req) {
		return
	}
	s.mutate(w, r, req, func(ctx context.Context) ([]types.Change, error) {
		return tracker.MarkRemoved(ctx, s.store, req.Nodes, req.ID)
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req treeRequest
	if !decode(w, r, &req) {
		return
	}
	s.mutate(w, r, req, func(ctx context.Context) ([]types.Change, error) {
		return tracker.Restore(ctx, s.store, req.Nodes, req.ID)
	})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, req treeRequest, fn func(context.Context) ([]types.Change, error)) {
	if req.ID == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}
	if !s.loadTree(w, r, req.Nodes) {
		return
	}
	changes, err := fn(context.WithoutCancel(r.Context()))
	resp := mutationResponse{
		Changes:  changes,
		Nodes:    nonNil(req.Nodes),
		Progress: tracker.ComputeProgress(req.Nodes),
	}
	if err != nil {
		if !errors.Is(err, tracker.ErrPersist) {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Error = err.Error()
	}
	s.notify(req.URL, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.store.SetMany(context.WithoutCancel(r.Context()), map[string]types.StatePatch{
		req.ID: {Notes: &req.Notes},
	}); err != nil {
		jsonError(w, "failed to save notes: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLiveStructure asks the connected extension for its page and returns
// it annotated with stored state.
func (s *Server) handleLiveStructure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	st, err := s.bridge.RequestStructure(ctx)
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, server.ErrNotConnected) {
			code = http.StatusServiceUnavailable
		}
		jsonError(w, err.Error(), code)
		return
	}

	sess := tracker.NewSession(s.store, s.store)
	defer sess.Close()
	loadErr := sess.Load(r.Context(), st)
	out := sess.Structure()
	if loadErr != nil {
		out.Warnings = append(out.Warnings, loadErr.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"structure":        out,
		"progress":         sess.Progress(),
		"heading_progress": sess.HeadingProgress(),
	})
}

// notify pushes applied changes to the extension so open popups refresh.
func (s *Server) notify(pageURL string, resp mutationResponse) {
	if s.bridge == nil || len(resp.Changes) == 0 {
		return
	}
	p := resp.Progress
	if err := s.bridge.Send(server.OutgoingMsg{
		Type:     server.TypeStateChanged,
		URL:      pageURL,
		Changes:  resp.Changes,
		Progress: &p,
	}); err != nil {
		s.log.Error("notify extension", "err", err)
	}
}

func nonNil(nodes []*types.NavNode) []*types.NavNode {
	if nodes == nil {
		return []*types.NavNode{}
	}
	return nodes
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
