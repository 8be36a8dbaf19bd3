package model

import (
	"fmt"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
)

// SelectionState is the set of selected feature identifiers (spec §3).
// Represented as an ordered slice (not a map) because selection order is
// meaningful to consumers (e.g. "zoom to the first selected feature").
type SelectionState struct {
	IDs []FeatureID `json:"ids"`
}

// Intersect returns a new SelectionState containing only ids present in
// valid, preserving s's original order (invalid ids are silently dropped
// on write-through per spec §3).
func (s SelectionState) Intersect(valid map[FeatureID]struct{}) SelectionState {
	out := make([]FeatureID, 0, len(s.IDs))
	for _, id := range s.IDs {
		if _, ok := valid[id]; ok {
			out = append(out, id)
		}
	}
	return SelectionState{IDs: out}
}

// TimeState holds current and its range bounds start and end as ordered
// instants. It encodes as a flat {current,start,end} object; there is no
// nested range array.
type TimeState struct {
	Current int64 `json:"current"`
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
}

// Validate enforces start <= current <= end. The error is taxonomy-coded
// InvalidParameter (spec §4.5) so it survives intact however it reaches
// the Bridge, whether directly via set_time or through a tool's setTime
// ResultCommand.
func (t TimeState) Validate() error {
	if !(t.Start <= t.Current && t.Current <= t.End) {
		return errorx.New(errno.InvalidParameter,
			fmt.Sprintf("time state invalid: start=%d current=%d end=%d", t.Start, t.Current, t.End), nil)
	}
	return nil
}

// ViewportState is [west, south, east, north].
type ViewportState struct {
	West, South, East, North float64
}

// MarshalJSON encodes as the spec's 4-element array form.
func (v ViewportState) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%v,%v,%v,%v]", v.West, v.South, v.East, v.North)), nil
}

func (v *ViewportState) UnmarshalJSON(data []byte) error {
	var arr [4]float64
	if err := unmarshalFixedArray(data, arr[:]); err != nil {
		return err
	}
	v.West, v.South, v.East, v.North = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Validate enforces west<=east, south<=north, and plausible geographic
// ranges. InvalidParameter-coded for the same reason as TimeState.Validate.
func (v ViewportState) Validate() error {
	if v.West > v.East {
		return errorx.New(errno.InvalidParameter, fmt.Sprintf("viewport invalid: west %v > east %v", v.West, v.East), nil)
	}
	if v.South > v.North {
		return errorx.New(errno.InvalidParameter, fmt.Sprintf("viewport invalid: south %v > north %v", v.South, v.North), nil)
	}
	if v.West < -180 || v.East > 180 || v.South < -90 || v.North > 90 {
		return errorx.New(errno.InvalidParameter, fmt.Sprintf("viewport out of geographic range: %v", v), nil)
	}
	return nil
}
