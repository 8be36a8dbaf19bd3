package model

import (
	"encoding/json"
	"testing"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
)

// assertInvalidParameter fails t unless err is an *errorx.Error coded
// InvalidParameter — every model-layer validation failure must carry
// this taxonomy classification (spec §4.5), not surface as a plain error
// the Bridge would otherwise report as Internal.
func assertInvalidParameter(t *testing.T, err error) {
	t.Helper()
	appErr, ok := err.(*errorx.Error)
	if !ok {
		t.Fatalf("expected *errorx.Error, got %T (%v)", err, err)
	}
	if appErr.Coder.Code() != errno.CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter, got code %d", appErr.Coder.Code())
	}
}

func TestGeometryTotalPointCount(t *testing.T) {
	cases := []struct {
		name string
		g    Geometry
		want int
	}{
		{"point", Geometry{Type: GeometryPoint, Coordinates: []any{1.0, 2.0}}, 1},
		{
			"linestring",
			Geometry{Type: GeometryLineString, Coordinates: []any{
				[]any{1.0, 2.0}, []any{3.0, 4.0}, []any{5.0, 6.0},
			}},
			3,
		},
		{
			"multilinestring",
			Geometry{Type: GeometryMultiLineString, Coordinates: []any{
				[]any{[]any{1.0, 2.0}, []any{3.0, 4.0}},
				[]any{[]any{5.0, 6.0}},
			}},
			3,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.g.TotalPointCount(); got != c.want {
				t.Errorf("TotalPointCount() = %d, want %d", got, c.want)
			}
		})
	}
}

func TestFeatureValidateTrackTimestamps(t *testing.T) {
	f := Feature{
		ID: "t1",
		Geometry: Geometry{
			Type: GeometryLineString,
			Coordinates: []any{
				[]any{1.0, 2.0}, []any{3.0, 4.0},
			},
		},
		Properties: Properties{Variant: VariantTrack, Timestamps: []int64{100, 200}},
	}
	if err := f.ValidateTrackTimestamps(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	f.Properties.Timestamps = []int64{100}
	err := f.ValidateTrackTimestamps()
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	assertInvalidParameter(t, err)
}

func TestFeatureCollectionValidateUnique(t *testing.T) {
	fc := FeatureCollection{Features: []Feature{{ID: "a"}, {ID: "a"}}}
	err := fc.ValidateUnique()
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	assertInvalidParameter(t, err)

	fc = FeatureCollection{Features: []Feature{{ID: "a"}, {ID: "b"}}}
	if err := fc.ValidateUnique(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestSelectionIntersect(t *testing.T) {
	sel := SelectionState{IDs: []FeatureID{"a", "b", "c"}}
	valid := map[FeatureID]struct{}{"a": {}, "c": {}}
	got := sel.Intersect(valid)
	want := []FeatureID{"a", "c"}
	if len(got.IDs) != len(want) {
		t.Fatalf("got %v, want %v", got.IDs, want)
	}
	for i := range want {
		if got.IDs[i] != want[i] {
			t.Fatalf("got %v, want %v", got.IDs, want)
		}
	}
}

func TestViewportValidate(t *testing.T) {
	v := ViewportState{West: -10, South: -5, East: 10, North: 5}
	if err := v.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	v2 := ViewportState{West: 10, South: -5, East: -10, North: 5}
	err := v2.Validate()
	if err == nil {
		t.Fatal("expected invalid (west > east)")
	}
	assertInvalidParameter(t, err)
}

func TestViewportJSONRoundTrip(t *testing.T) {
	v := ViewportState{West: -1, South: -2, East: 3, North: 4}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got ViewportState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestTimeStateValidate(t *testing.T) {
	ts := TimeState{Current: 5, Start: 0, End: 10}
	if err := ts.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	ts2 := TimeState{Current: 15, Start: 0, End: 10}
	err := ts2.Validate()
	if err == nil {
		t.Fatal("expected invalid (current > end)")
	}
	assertInvalidParameter(t, err)
}

func TestGeometryValidateRejectsUnknownType(t *testing.T) {
	g := Geometry{Type: "Blob", Coordinates: []any{1.0, 2.0}}
	err := g.Validate()
	if err == nil {
		t.Fatal("expected unknown geometry type to be rejected")
	}
	assertInvalidParameter(t, err)
}
