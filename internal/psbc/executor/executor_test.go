package executor

import (
	"testing"

	"github.com/debrief/psbc/internal/psbc/command"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/internal/psbc/state"
)

type recordingSideEffects struct {
	texts []command.ShowText
}

func (r *recordingSideEffects) ShowText(_ identity.DocID, payload command.ShowText) {
	r.texts = append(r.texts, payload)
}
func (r *recordingSideEffects) ShowData(identity.DocID, command.ShowData)    {}
func (r *recordingSideEffects) ShowImage(identity.DocID, command.ShowImage)  {}
func (r *recordingSideEffects) LogMessage(identity.DocID, command.LogMessage) {}

func newTestExecutor(t *testing.T) (*Executor, *state.Store, identity.DocID) {
	t.Helper()
	store := state.New()
	id := identity.DocID("doc-1")
	store.Open(id)
	return New(store, &recordingSideEffects{}), store, id
}

func TestApplyAddFeaturesThenShowText(t *testing.T) {
	exec, store, id := newTestExecutor(t)
	fx := exec.fx.(*recordingSideEffects)

	batch := []command.ResultCommand{
		{Kind: command.KindAddFeatures, AddFeatures: []model.Feature{
			{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}},
		}},
		{Kind: command.KindShowText, ShowText: &command.ShowText{Text: "done", Level: command.LevelInfo}},
	}
	if err := exec.Apply(id, batch); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	fc, _ := store.Get(id, state.SliceFeatureCollection)
	if len(fc.(model.FeatureCollection).Features) != 1 {
		t.Fatal("expected 1 feature")
	}
	if len(fx.texts) != 1 || fx.texts[0].Text != "done" {
		t.Fatalf("expected showText side effect recorded, got %v", fx.texts)
	}
}

func TestApplyRollsBackOnMidBatchFailure(t *testing.T) {
	exec, store, id := newTestExecutor(t)

	batch := []command.ResultCommand{
		{Kind: command.KindAddFeatures, AddFeatures: []model.Feature{
			{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}},
		}},
		{Kind: command.KindUpdateFeatures, UpdateFeatures: []model.Feature{
			{ID: "does-not-exist", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}},
		}},
	}
	if err := exec.Apply(id, batch); err == nil {
		t.Fatal("expected batch to fail")
	}

	fc, _ := store.Get(id, state.SliceFeatureCollection)
	if len(fc.(model.FeatureCollection).Features) != 0 {
		t.Fatalf("expected rollback to empty collection, got %d features", len(fc.(model.FeatureCollection).Features))
	}
}

func TestApplyCompositeRollsBackOnChildFailure(t *testing.T) {
	exec, store, id := newTestExecutor(t)

	composite := command.ResultCommand{
		Kind: command.KindComposite,
		Composite: []command.ResultCommand{
			{Kind: command.KindAddFeatures, AddFeatures: []model.Feature{
				{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}},
			}},
			{Kind: command.KindUpdateFeatures, UpdateFeatures: []model.Feature{
				{ID: "missing", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{9, 9}}},
			}},
		},
	}
	if err := exec.Apply(id, []command.ResultCommand{composite}); err == nil {
		t.Fatal("expected composite failure to propagate")
	}

	fc, _ := store.Get(id, state.SliceFeatureCollection)
	if len(fc.(model.FeatureCollection).Features) != 0 {
		t.Fatal("expected composite rollback to empty collection")
	}
}

// TestApplyRollsBackCompositeMutationsWhenLaterCommandFails exercises the
// exact scenario the composite rollback undercounting bug produced: a
// successful composite followed by a failing top-level command. The
// composite's own mutations must be undone too, not just the commands
// after it — otherwise the batch's "all-or-nothing" guarantee breaks.
func TestApplyRollsBackCompositeMutationsWhenLaterCommandFails(t *testing.T) {
	exec, store, id := newTestExecutor(t)

	composite := command.ResultCommand{
		Kind: command.KindComposite,
		Composite: []command.ResultCommand{
			{Kind: command.KindAddFeatures, AddFeatures: []model.Feature{
				{ID: "f1", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{1, 2}}},
			}},
			{Kind: command.KindAddFeatures, AddFeatures: []model.Feature{
				{ID: "f2", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{3, 4}}},
			}},
		},
	}
	batch := []command.ResultCommand{
		composite,
		{Kind: command.KindUpdateFeatures, UpdateFeatures: []model.Feature{
			{ID: "does-not-exist", Geometry: model.Geometry{Type: model.GeometryPoint, Coordinates: []float64{0, 0}}},
		}},
	}
	if err := exec.Apply(id, batch); err == nil {
		t.Fatal("expected batch to fail")
	}

	fc, _ := store.Get(id, state.SliceFeatureCollection)
	if n := len(fc.(model.FeatureCollection).Features); n != 0 {
		t.Fatalf("expected the composite's 2 mutations to be rolled back too, got %d features left", n)
	}
}

func TestApplyRejectsInvalidCommand(t *testing.T) {
	exec, _, id := newTestExecutor(t)
	if err := exec.Apply(id, []command.ResultCommand{{Kind: command.KindAddFeatures}}); err == nil {
		t.Fatal("expected validation error for addFeatures with nil payload")
	}
}
