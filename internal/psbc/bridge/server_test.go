package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/debrief/psbc/internal/psbc/activation"
	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/executor"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := identity.New()
	store := state.New()
	exec := executor.New(store, nil)
	act := activation.New(50)

	s, engine := New(Config{
		Registry:   registry,
		Store:      store,
		Activation: act,
		Executor:   exec,
	})
	return s, engine
}

func doLegacy(t *testing.T, engine *gin.Engine, command string, params any) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"command": command, "params": params})
	req := httptest.NewRequest(http.MethodPost, "/bridge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v, body=%s", err, rec.Body.String())
	}
	return out
}

func doRPC(t *testing.T, engine *gin.Engine, method string, params any) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	req := httptest.NewRequest(http.MethodPost, "/bridge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v, body=%s", err, rec.Body.String())
	}
	return out
}

func TestLegacyListOpenPlotsEmpty(t *testing.T) {
	_, engine := newTestServer(t)
	out := doLegacy(t, engine, "list_open_plots", nil)
	result, ok := out["result"].([]any)
	if !ok {
		t.Fatalf("expected result array, got %#v", out)
	}
	if len(result) != 0 {
		t.Fatalf("expected no open plots, got %v", result)
	}
}

func TestLegacyGetFeatureCollectionResolvesSingleOpenPlot(t *testing.T) {
	s, engine := newTestServer(t)
	if _, err := s.OpenDocument("alpha.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}

	out := doLegacy(t, engine, "get_feature_collection", nil)
	result, ok := out["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected feature collection result, got %#v", out)
	}
	if result["type"] != "FeatureCollection" {
		t.Fatalf("expected FeatureCollection, got %v", result["type"])
	}
}

func TestLegacyGetFeatureCollectionAmbiguousWithTwoOpenPlots(t *testing.T) {
	s, engine := newTestServer(t)
	if _, err := s.OpenDocument("alpha.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	if _, err := s.OpenDocument("beta.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}

	out := doLegacy(t, engine, "get_feature_collection", nil)
	errBody, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %#v", out)
	}
	if errBody["code"] != "MULTIPLE_PLOTS" {
		t.Fatalf("expected MULTIPLE_PLOTS, got %v", errBody["code"])
	}
	plots, ok := errBody["available_plots"].([]any)
	if !ok || len(plots) != 2 {
		t.Fatalf("expected 2 available_plots, got %#v", errBody["available_plots"])
	}
}

func TestLegacyAddFeaturesThenGetFeatureCollection(t *testing.T) {
	s, engine := newTestServer(t)
	if _, err := s.OpenDocument("alpha.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}

	feature := map[string]any{
		"id":       "",
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{1, 2}},
		"properties": map[string]any{"kind": "reference-point"},
	}
	out := doLegacy(t, engine, "add_features", map[string]any{"features": []any{feature}})
	if _, isErr := out["error"]; isErr {
		t.Fatalf("expected success, got %#v", out)
	}

	out = doLegacy(t, engine, "get_feature_collection", nil)
	result := out["result"].(map[string]any)
	features := result["features"].([]any)
	if len(features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(features))
	}
}

func TestRPCInitializeAndToolsList(t *testing.T) {
	_, engine := newTestServer(t)

	out := doRPC(t, engine, "initialize", nil)
	if _, ok := out["result"]; !ok {
		t.Fatalf("expected result from initialize, got %#v", out)
	}

	out = doRPC(t, engine, "tools/list", nil)
	result, ok := out["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %#v", out)
	}
	tools, ok := result["tools"].([]any)
	if !ok || len(tools) == 0 {
		t.Fatalf("expected non-empty tools list, got %#v", result)
	}
}

func TestLegacySetTimeOutOfRangeReturnsInvalidParameterNotInternal(t *testing.T) {
	s, engine := newTestServer(t)
	if _, err := s.OpenDocument("alpha.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}

	out := doLegacy(t, engine, "set_time", map[string]any{
		"timeState": map[string]any{"current": 99, "start": 0, "end": 10},
	})
	errBody, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %#v", out)
	}
	if code, _ := errBody["code"].(float64); int(code) != errno.CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter (%d), got %v — validation failures from the State Store must not fall through to Internal", errno.CodeInvalidParameter, errBody["code"])
	}
}

func TestLegacyUpdateFeaturesUnknownIDReturnsResourceNotFound(t *testing.T) {
	s, engine := newTestServer(t)
	if _, err := s.OpenDocument("alpha.plot.json"); err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}

	feature := map[string]any{
		"id":       "does-not-exist",
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{1, 2}},
	}
	out := doLegacy(t, engine, "update_features", map[string]any{"features": []any{feature}})
	errBody, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %#v", out)
	}
	if code, _ := errBody["code"].(float64); int(code) != errno.CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound (%d), got %v", errno.CodeResourceNotFound, errBody["code"])
	}
}

func TestLegacyCancelToolCallUnknownIDReturnsResourceNotFound(t *testing.T) {
	_, engine := newTestServer(t)
	out := doLegacy(t, engine, "cancel_tool_call", map[string]any{"callId": "nope"})
	errBody, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %#v", out)
	}
	if code, _ := errBody["code"].(float64); int(code) != errno.CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound (%d), got %v", errno.CodeResourceNotFound, errBody["code"])
	}
}

func TestRPCUnknownMethodReturnsInvalidParameter(t *testing.T) {
	_, engine := newTestServer(t)
	out := doRPC(t, engine, "does/not/exist", nil)
	errBody, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %#v", out)
	}
	if errBody["code"] == nil {
		t.Fatalf("expected an error code, got %#v", errBody)
	}
}
