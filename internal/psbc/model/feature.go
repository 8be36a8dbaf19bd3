package model

import (
	"encoding/json"
	"fmt"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
)

// FeatureVariant is the closed set of properties.kind discriminators
// (spec §3). "opaque" is any value not in the known set — it is carried
// through unchanged but never interpreted.
type FeatureVariant string

const (
	VariantTrack          FeatureVariant = "track"
	VariantReferencePoint FeatureVariant = "reference-point"
	VariantZone           FeatureVariant = "zone"
	VariantOpaque         FeatureVariant = "opaque"
)

// FeatureID is a Feature identifier, unique within its collection. The
// spec allows either a string or a number on the wire; internally every
// id is normalized to its string form so map keys and equality are simple.
type FeatureID string

// UnmarshalJSON accepts a JSON string or a JSON number and stores its
// string form.
func (id *FeatureID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FeatureID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("feature id must be a string or a number: %w", err)
	}
	*id = FeatureID(n.String())
	return nil
}

// Properties is a Feature's properties bag. Known reserved keys are
// pulled out into typed fields; everything else round-trips through
// Extra. This keeps the sum-type discipline from design note §9 ("never
// untagged maps") for the fields PSBC actually inspects, while still
// passing through arbitrary tool/editor-added properties untouched.
type Properties struct {
	Variant    FeatureVariant `json:"kind,omitempty"`
	Timestamps []int64        `json:"times,omitempty"`
	Extra      map[string]any `json:"-"`
}

func (p Properties) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Variant != "" && p.Variant != VariantOpaque {
		out["kind"] = p.Variant
	}
	if p.Timestamps != nil {
		out["times"] = p.Timestamps
	}
	return json.Marshal(out)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Variant = VariantOpaque
	if kind, ok := raw["kind"].(string); ok {
		switch FeatureVariant(kind) {
		case VariantTrack, VariantReferencePoint, VariantZone:
			p.Variant = FeatureVariant(kind)
			delete(raw, "kind")
		}
	}
	if times, ok := raw["times"].([]any); ok {
		ts := make([]int64, 0, len(times))
		for _, t := range times {
			if n, ok := t.(float64); ok {
				ts = append(ts, int64(n))
			}
		}
		p.Timestamps = ts
		delete(raw, "times")
	}
	p.Extra = raw
	return nil
}

// Feature is one GeoJSON-style feature (spec §3).
type Feature struct {
	ID         FeatureID  `json:"id"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// IsTrack reports whether f is the track variant.
func (f Feature) IsTrack() bool {
	return f.Properties.Variant == VariantTrack
}

// Validate checks f's geometry type and, for tracks, its timestamp
// invariant. Called from AddFeatures/UpdateFeatures before any feature
// enters the collection (spec §4.2).
func (f Feature) Validate() error {
	if err := f.Geometry.Validate(); err != nil {
		return err
	}
	return f.ValidateTrackTimestamps()
}

// ValidateTrackTimestamps enforces invariant 3: for a track feature with
// timestamps present, len(timestamps) must equal the geometry's total
// point count. The error is taxonomy-coded InvalidParameter (spec §4.5:
// "a failed validation returns InvalidParameter") so it reaches callers
// classified correctly without the Bridge having to guess at plain
// errors bubbling up from the model layer.
func (f Feature) ValidateTrackTimestamps() error {
	if !f.IsTrack() || f.Properties.Timestamps == nil {
		return nil
	}
	want := f.Geometry.TotalPointCount()
	got := len(f.Properties.Timestamps)
	if got != want {
		return errorx.New(errno.InvalidParameter,
			fmt.Sprintf("track %s: timestamp count mismatch: want %d, got %d", f.ID, want, got), nil)
	}
	return nil
}

// FeatureCollection is an ordered sequence of Features (spec §3).
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns an empty, well-typed collection.
func NewFeatureCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// IDs returns the set of feature identifiers in fc, in order.
func (fc FeatureCollection) IDs() []FeatureID {
	ids := make([]FeatureID, len(fc.Features))
	for i, f := range fc.Features {
		ids[i] = f.ID
	}
	return ids
}

// IDSet returns the feature identifiers in fc as a set, for membership
// tests (invariant 2: selected ⊆ features.id).
func (fc FeatureCollection) IDSet() map[FeatureID]struct{} {
	set := make(map[FeatureID]struct{}, len(fc.Features))
	for _, f := range fc.Features {
		set[f.ID] = struct{}{}
	}
	return set
}

// IndexOf returns the index of the feature with the given id, or -1.
func (fc FeatureCollection) IndexOf(id FeatureID) int {
	for i, f := range fc.Features {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// ValidateUnique enforces invariant 1: every feature has an id, unique
// within the collection. Both failures are caller-input problems, so
// both are taxonomy-coded InvalidParameter (spec §4.5), not ResourceNotFound
// — ResourceNotFound is reserved for references to ids that are simply
// absent from the collection (see UpdateFeatures' unknown-id case).
func (fc FeatureCollection) ValidateUnique() error {
	seen := make(map[FeatureID]struct{}, len(fc.Features))
	for _, f := range fc.Features {
		if f.ID == "" {
			return errorx.New(errno.InvalidParameter, "feature missing required id", nil)
		}
		if _, dup := seen[f.ID]; dup {
			return errorx.New(errno.InvalidParameter, "duplicate feature id "+string(f.ID), nil)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}
