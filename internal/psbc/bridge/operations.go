package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

// operation is one semantic request-taxonomy entry from spec §4.5. Every
// dialect (legacy, RPC) funnels through the same table so resolution,
// validation, and execution semantics never diverge between them.
type operation func(s *Server, ctx context.Context, raw json.RawMessage) (any, error)

var operations = map[string]operation{
	"notify":                 opNotify,
	"list_open_plots":        opListOpenPlots,
	"get_feature_collection": opGetFeatureCollection,
	"set_feature_collection": opSetFeatureCollection,
	"add_features":           opAddFeatures,
	"update_features":        opUpdateFeatures,
	"delete_features":        opDeleteFeatures,
	"get_selected_features":  opGetSelectedFeatures,
	"set_selected_features":  opSetSelectedFeatures,
	"get_time":               opGetTime,
	"set_time":               opSetTime,
	"get_viewport":           opGetViewport,
	"set_viewport":           opSetViewport,
	"zoom_to_selection":      opZoomToSelection,
	"get_supervisor_status":  opGetSupervisorStatus,
	"list_external_tools":    opListExternalTools,
	"invoke_tool":            opInvokeTool,
	"cancel_tool_call":       opCancelToolCall,
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errorx.New(errno.InvalidParameter, fmt.Sprintf("invalid params: %v", err), nil)
	}
	return nil
}

type filenameParams struct {
	Filename string `json:"filename"`
}

func opNotify(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Message string `json:"message"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	s.notify(p.Message)
	return nil, nil
}

type openPlotSummary struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

func opListOpenPlots(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	ids := s.registry.All()
	out := make([]openPlotSummary, 0, len(ids))
	for _, id := range ids {
		path, _ := s.registry.Path(id)
		out = append(out, openPlotSummary{Path: path, Title: path})
	}
	return out, nil
}

func opGetFeatureCollection(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p filenameParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return s.store.Get(id, state.SliceFeatureCollection)
}

func opSetFeatureCollection(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename          string                  `json:"filename"`
		FeatureCollection model.FeatureCollection `json:"featureCollection"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.ReplaceCollection(id, p.FeatureCollection)
}

func opAddFeatures(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename string          `json:"filename"`
		Features []model.Feature `json:"features"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.AddFeatures(id, p.Features)
}

func opUpdateFeatures(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename string          `json:"filename"`
		Features []model.Feature `json:"features"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.UpdateFeatures(id, p.Features)
}

func opDeleteFeatures(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename string           `json:"filename"`
		IDs      []model.FeatureID `json:"ids"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.DeleteFeatures(id, p.IDs)
}

func opGetSelectedFeatures(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p filenameParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return s.store.Get(id, state.SliceSelection)
}

func opSetSelectedFeatures(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename string           `json:"filename"`
		IDs      []model.FeatureID `json:"ids"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.Set(id, state.SliceSelection, model.SelectionState{IDs: p.IDs})
}

func opGetTime(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p filenameParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return s.store.Get(id, state.SliceTime)
}

func opSetTime(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename  string          `json:"filename"`
		TimeState model.TimeState `json:"timeState"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.Set(id, state.SliceTime, p.TimeState)
}

func opGetViewport(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p filenameParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return s.store.Get(id, state.SliceViewport)
}

func opSetViewport(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Filename      string              `json:"filename"`
		ViewportState model.ViewportState `json:"viewportState"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}
	return nil, s.store.Set(id, state.SliceViewport, p.ViewportState)
}

// opZoomToSelection hints the viewport to fit the current selection's
// bounding box, falling back to the whole feature collection when nothing
// is selected (spec §4.5 zoom_to_selection).
func opZoomToSelection(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p filenameParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}

	snap, err := s.store.Snapshot(id)
	if err != nil {
		return nil, err
	}

	targets := snap.FeatureCollection.Features
	if len(snap.Selection.IDs) > 0 {
		selected := make(map[model.FeatureID]struct{}, len(snap.Selection.IDs))
		for _, fid := range snap.Selection.IDs {
			selected[fid] = struct{}{}
		}
		targets = nil
		for _, f := range snap.FeatureCollection.Features {
			if _, ok := selected[f.ID]; ok {
				targets = append(targets, f)
			}
		}
	}

	box, ok := fitBounds(targets)
	if !ok {
		return nil, nil
	}
	return nil, s.store.Set(id, state.SliceViewport, box)
}

func fitBounds(features []model.Feature) (model.ViewportState, bool) {
	box := model.ViewportState{West: 180, South: 90, East: -180, North: -90}
	found := false
	for _, f := range features {
		b, ok := f.Geometry.Bounds()
		if !ok {
			continue
		}
		found = true
		if b.West < box.West {
			box.West = b.West
		}
		if b.East > box.East {
			box.East = b.East
		}
		if b.South < box.South {
			box.South = b.South
		}
		if b.North > box.North {
			box.North = b.North
		}
	}
	return box, found
}

// opGetSupervisorStatus is a spec-supplemented extension method, registered
// in the same operations table as the legacy commands, exposing the
// Supervisor's status surface to the host UI's status bar / psbcctl watch
// (spec §4.7).
func opGetSupervisorStatus(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	return s.supervisorStatuses(), nil
}

// opListExternalTools and opInvokeTool are spec-supplemented extension
// methods (§2 Flow: "tool invocations flow C5 → C7 → external tool
// process → C6 → C2") exposing the Tool Client (C7) through the Bridge.
// They are distinct from the RPC dialect's "tools/list"/"tools/call",
// which expose the legacy command set itself as MCP-style tools (spec
// §6) — two different meanings of "tool" that happen to share a word.
func opListExternalTools(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	if s.tools == nil {
		return nil, errorx.New(errno.ToolServerUnavailable, "tool client not configured", nil)
	}
	return s.tools.ListTools(ctx)
}

// toolCallResult is invoke_tool's immediate, still-pending response (spec
// §4.6/SPEC_FULL §4 "cancel_tool_call": tools/call "returns a call-scoped
// id alongside its still-pending result"). The tool call itself keeps
// running after this response is sent; its commands are applied to the
// document asynchronously, and callId is the handle cancel_tool_call
// takes to abort it before that happens.
type toolCallResult struct {
	CallID  string `json:"callId"`
	Pending bool   `json:"pending"`
}

func opInvokeTool(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	if s.tools == nil {
		return nil, errorx.New(errno.ToolServerUnavailable, "tool client not configured", nil)
	}
	var p struct {
		Filename  string          `json:"filename"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	docID, err := s.resolveDoc(p.Filename)
	if err != nil {
		return nil, err
	}

	args := "{}"
	if len(p.Arguments) > 0 {
		args = string(p.Arguments)
	}

	// The call outlives this request's Context (cancelled the moment gin
	// finishes writing the response), so it's rooted at context.Background
	// instead and torn down only by cancel_tool_call or callRegistry.cancelAll.
	callID, callCtx := s.calls.start(context.Background())
	go s.runToolCall(callCtx, callID, docID, p.Name, args)

	return toolCallResult{CallID: callID, Pending: true}, nil
}

// runToolCall drives one asynchronous tool invocation to completion,
// applying its commands on success. A cancelled or failed call applies
// nothing (spec §4.6: "on cancellation no commands are applied"). The
// pending response returned from invoke_tool carries no completion
// signal of its own, so every terminal state is also published on the
// SSE hub a caller can subscribe to.
func (s *Server) runToolCall(ctx context.Context, callID string, docID identity.DocID, name, args string) {
	defer s.calls.finish(callID)

	commands, err := s.tools.CallTool(ctx, name, args)
	if err != nil {
		if ctx.Err() != nil {
			logger.InfoX(logModule, "tool call cancelled", "call_id", callID, "name", name)
			s.hub.publish(sseEvent{Type: "tool-call", Data: map[string]string{"callId": callID, "status": "cancelled"}})
			return
		}
		logger.WarnX(logModule, "tool call failed", "call_id", callID, "name", name, "error", err)
		s.hub.publish(sseEvent{Type: "tool-call", Data: map[string]string{"callId": callID, "status": "failed"}})
		return
	}
	if err := s.executor.Apply(docID, commands); err != nil {
		logger.WarnX(logModule, "tool call result failed to apply", "call_id", callID, "name", name, "error", err)
		s.hub.publish(sseEvent{Type: "tool-call", Data: map[string]string{"callId": callID, "status": "failed"}})
		return
	}
	s.hub.publish(sseEvent{Type: "tool-call", Data: map[string]string{"callId": callID, "status": "applied"}})
}

type cancelToolCallResult struct {
	Cancelled bool `json:"cancelled"`
}

// opCancelToolCall aborts the in-flight tool call identified by callId,
// the handle invoke_tool returned. Cancelling a call that has already
// finished (or never existed) is ResourceNotFound, not a silent no-op —
// the caller's callId is almost always stale by then, and treating that
// as success would hide a client-side ordering bug.
func opCancelToolCall(s *Server, ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		CallID string `json:"callId"`
	}
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.CallID == "" {
		return nil, errorx.New(errno.InvalidParameter, "callId is required", nil)
	}
	if !s.calls.cancel(p.CallID) {
		return nil, errorx.New(errno.ResourceNotFound, "unknown or already-finished call "+p.CallID, nil)
	}
	return cancelToolCallResult{Cancelled: true}, nil
}
