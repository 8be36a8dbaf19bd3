package state

import (
	"sync"
	"testing"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
)

func newOpenDoc(t *testing.T) (*Store, identity.DocID) {
	t.Helper()
	s := New()
	id := identity.DocID("doc-1")
	s.Open(id)
	return s, id
}

func TestAddFeaturesAssignsIDAndNotifies(t *testing.T) {
	s, id := newOpenDoc(t)

	var got Snapshot
	dispose, err := s.Subscribe(id, SliceFeatureCollection, func(snap Snapshot) { got = snap })
	if err != nil {
		t.Fatal(err)
	}
	defer dispose()

	f := model.Feature{Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}}
	if err := s.AddFeatures(id, []model.Feature{f}); err != nil {
		t.Fatalf("AddFeatures: %v", err)
	}

	if len(got.FeatureCollection.Features) != 1 {
		t.Fatalf("expected subscriber to observe 1 feature, got %d", len(got.FeatureCollection.Features))
	}
	if got.FeatureCollection.Features[0].ID == "" {
		t.Fatal("expected assigned feature id")
	}
}

func TestUpdateFeaturesRejectsUnknownIDWithNoStateChange(t *testing.T) {
	s, id := newOpenDoc(t)
	f := model.Feature{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}}
	if err := s.AddFeatures(id, []model.Feature{f}); err != nil {
		t.Fatal(err)
	}

	err := s.UpdateFeatures(id, []model.Feature{
		{ID: "does-not-exist", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{9, 9}}},
	})
	if err == nil {
		t.Fatal("expected error for unknown feature id")
	}

	fc, _ := s.Get(id, SliceFeatureCollection)
	got := fc.(model.FeatureCollection)
	if len(got.Features) != 1 || got.Features[0].ID != "f1" {
		t.Fatal("expected no state change after rejected update")
	}
}

func TestDeleteFeaturesFiltersSelection(t *testing.T) {
	s, id := newOpenDoc(t)
	f1 := model.Feature{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}}
	f2 := model.Feature{ID: "f2", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 1}}}
	if err := s.AddFeatures(id, []model.Feature{f1, f2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(id, SliceSelection, model.SelectionState{IDs: []model.FeatureID{"f1", "f2"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFeatures(id, []model.FeatureID{"f1", "missing"}); err != nil {
		t.Fatal(err)
	}

	sel, _ := s.Get(id, SliceSelection)
	got := sel.(model.SelectionState)
	if len(got.IDs) != 1 || got.IDs[0] != "f2" {
		t.Fatalf("expected selection filtered to [f2], got %v", got.IDs)
	}
}

func TestUndoRedoSymmetry(t *testing.T) {
	s, id := newOpenDoc(t)
	f1 := model.Feature{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}}
	if err := s.AddFeatures(id, []model.Feature{f1}); err != nil {
		t.Fatal(err)
	}
	f2 := model.Feature{ID: "f2", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 1}}}
	if err := s.AddFeatures(id, []model.Feature{f2}); err != nil {
		t.Fatal(err)
	}

	if err := s.Undo(id); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	fc, _ := s.Get(id, SliceFeatureCollection)
	if len(fc.(model.FeatureCollection).Features) != 1 {
		t.Fatal("expected 1 feature after undo")
	}

	if err := s.Redo(id); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	fc, _ = s.Get(id, SliceFeatureCollection)
	if len(fc.(model.FeatureCollection).Features) != 2 {
		t.Fatal("expected 2 features after redo")
	}
}

func TestSelectionIntersectsOnReplaceCollection(t *testing.T) {
	s, id := newOpenDoc(t)
	f1 := model.Feature{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}}
	if err := s.AddFeatures(id, []model.Feature{f1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(id, SliceSelection, model.SelectionState{IDs: []model.FeatureID{"f1"}}); err != nil {
		t.Fatal(err)
	}

	fresh := model.NewFeatureCollection()
	fresh.Features = []model.Feature{{ID: "f2", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{2, 2}}}}
	if err := s.ReplaceCollection(id, fresh); err != nil {
		t.Fatal(err)
	}

	sel, _ := s.Get(id, SliceSelection)
	if len(sel.(model.SelectionState).IDs) != 0 {
		t.Fatal("expected selection cleared after replace-collection drops f1")
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	s, id := newOpenDoc(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AddFeatures(id, []model.Feature{
				{Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}},
			})
		}()
	}
	wg.Wait()

	fc, _ := s.Get(id, SliceFeatureCollection)
	if got := len(fc.(model.FeatureCollection).Features); got != 50 {
		t.Fatalf("expected 50 features after concurrent adds, got %d", got)
	}
}

func TestGetUnknownDocIDErrors(t *testing.T) {
	s := New()
	if _, err := s.Get("nope", SliceFeatureCollection); err == nil {
		t.Fatal("expected error for unopened doc_id")
	}
}
