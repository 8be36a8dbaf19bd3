// Package state implements C2, the State Store: the authoritative
// per-document state (feature collection, selection, time, viewport,
// history) plus its event bus (spec §4.2).
package state

import (
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
)

// Slice names one of the four mutable state slices, or "full" for all of
// them at once (spec §3, §4.2).
type Slice string

const (
	SliceFeatureCollection Slice = "featureCollection"
	SliceSelection         Slice = "selection"
	SliceTime              Slice = "time"
	SliceViewport          Slice = "viewport"
	SliceFull              Slice = "full"
)

// orderedSlices is the fixed emission order for a multi-slice transition
// (spec §4.2: "featureCollection, selection, time, viewport").
var orderedSlices = []Slice{SliceFeatureCollection, SliceSelection, SliceTime, SliceViewport}

// Snapshot is an immutable, deep-copied view of one document's state at a
// point in time. Subscribers receive Snapshots by value; mutating a
// Snapshot never affects the Store (spec §3 Ownership).
type Snapshot struct {
	DocID             identity.DocID
	FeatureCollection model.FeatureCollection
	Selection         model.SelectionState
	Time              model.TimeState
	Viewport          model.ViewportState
}

// Get extracts the value of a single slice from the snapshot, keyed the
// same way Store.Get is.
func (s Snapshot) Get(slice Slice) any {
	switch slice {
	case SliceFeatureCollection:
		return s.FeatureCollection
	case SliceSelection:
		return s.Selection
	case SliceTime:
		return s.Time
	case SliceViewport:
		return s.Viewport
	default:
		return s
	}
}

// MutationOp is the closed set of feature-collection mutation operations
// (spec §4.2).
type MutationOp string

const (
	OpAdd               MutationOp = "add"
	OpUpdate            MutationOp = "update"
	OpDelete            MutationOp = "delete"
	OpReplaceCollection MutationOp = "replace-collection"
)

// Subscriber is called synchronously, after a transition completes, with
// the post-transition snapshot (spec §4.2, §5).
type Subscriber func(Snapshot)

// Disposer unregisters a subscription.
type Disposer func()
