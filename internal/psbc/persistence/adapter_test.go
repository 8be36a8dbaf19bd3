package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/internal/psbc/state"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAdapterWritesDebouncedAndCoalesced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plot.json")
	if err := os.WriteFile(path, []byte(`{"custom":"untouched"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := state.New()
	id := identity.DocID("doc-1")
	store.Open(id)

	adapter, err := New(store, identity.New(), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	if err := adapter.Watch(id, path); err != nil {
		t.Fatal(err)
	}

	f1 := model.Feature{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}}
	f2 := model.Feature{ID: "f2", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{3, 4}}}
	if err := store.AddFeatures(id, []model.Feature{f1}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddFeatures(id, []model.Feature{f2}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		raw, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		var doc map[string]any
		if json.Unmarshal(raw, &doc) != nil {
			return false
		}
		features, _ := doc["features"].([]any)
		return len(features) == 2
	})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["custom"] != "untouched" {
		t.Fatalf("expected unrelated key preserved, got %v", doc["custom"])
	}
}

func TestAdapterReloadsOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plot.json")
	if err := os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := state.New()
	id := identity.DocID("doc-1")
	store.Open(id)

	adapter, err := New(store, identity.New(), 10)
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	if err := adapter.Watch(id, path); err != nil {
		t.Fatal(err)
	}

	external := `{"type":"FeatureCollection","features":[{"id":"ext1","geometry":{"type":"Point","coordinates":[5,6]},"properties":{"kind":"opaque"}}]}`
	if err := os.WriteFile(path, []byte(external), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		fc, err := store.Get(id, state.SliceFeatureCollection)
		if err != nil {
			return false
		}
		return len(fc.(model.FeatureCollection).Features) == 1
	})
}
