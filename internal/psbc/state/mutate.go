package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/pkg/errorx"
)

var featureSeq uint64

// nextFeatureID generates a fresh id for an id-less add, in the
// feature_<monotonic>_<random> form (spec §4.2: "the server assigns a
// fresh id" — exact format is unspecified, chosen to keep ids both
// orderable and collision-free across concurrent documents).
func nextFeatureID() model.FeatureID {
	n := atomic.AddUint64(&featureSeq, 1)
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return model.FeatureID(fmt.Sprintf("feature_%d_%s", n, hex.EncodeToString(buf[:])))
}

// AddFeatures appends features to the collection, assigning fresh ids to
// any with an empty ID (spec §4.2 "add"). Selection is untouched.
func (s *Store) AddFeatures(id identity.DocID, features []model.Feature) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.transition(func(working *Snapshot) ([]Slice, error) {
		for i := range features {
			if features[i].ID == "" {
				features[i].ID = nextFeatureID()
			}
			if err := features[i].Validate(); err != nil {
				return nil, err
			}
		}
		next := working.FeatureCollection
		next.Features = append(append([]model.Feature(nil), next.Features...), features...)
		if err := next.ValidateUnique(); err != nil {
			return nil, err
		}
		working.FeatureCollection = next
		return []Slice{SliceFeatureCollection}, nil
	})
}

// UpdateFeatures replaces each named feature wholesale. If any id is
// unknown, the whole batch is rejected with no state change (spec §4.2
// "update": "all-or-nothing; unknown id fails the whole batch"), reported
// as ResourceNotFound (spec §4.2, §4.8) rather than InvalidParameter —
// the request shape was fine, it just named something that isn't there.
func (s *Store) UpdateFeatures(id identity.DocID, features []model.Feature) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.transition(func(working *Snapshot) ([]Slice, error) {
		next := working.FeatureCollection
		byID := make(map[model.FeatureID]int, len(next.Features))
		for i, f := range next.Features {
			byID[f.ID] = i
		}
		replaced := append([]model.Feature(nil), next.Features...)
		for _, f := range features {
			idx, ok := byID[f.ID]
			if !ok {
				return nil, errorx.New(errno.ResourceNotFound, fmt.Sprintf("unknown feature id %q", f.ID), nil)
			}
			if err := f.Validate(); err != nil {
				return nil, err
			}
			replaced[idx] = f
		}
		next.Features = replaced
		working.FeatureCollection = next
		return []Slice{SliceFeatureCollection}, nil
	})
}

// DeleteFeatures removes the named features, ignoring ids that are not
// present, and filters them out of the current selection (spec §4.2
// "delete").
func (s *Store) DeleteFeatures(id identity.DocID, ids []model.FeatureID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.transition(func(working *Snapshot) ([]Slice, error) {
		toRemove := make(map[model.FeatureID]struct{}, len(ids))
		for _, rid := range ids {
			toRemove[rid] = struct{}{}
		}
		next := working.FeatureCollection
		kept := make([]model.Feature, 0, len(next.Features))
		for _, f := range next.Features {
			if _, gone := toRemove[f.ID]; gone {
				continue
			}
			kept = append(kept, f)
		}
		next.Features = kept
		working.FeatureCollection = next
		working.Selection = working.Selection.Intersect(next.IDSet())
		return []Slice{SliceFeatureCollection, SliceSelection}, nil
	})
}

// ReplaceCollection swaps in an entirely new feature collection,
// intersecting the current selection with the new id set (spec §4.2
// "replace-collection").
func (s *Store) ReplaceCollection(id identity.DocID, fc model.FeatureCollection) error {
	return s.Set(id, SliceFeatureCollection, fc)
}
