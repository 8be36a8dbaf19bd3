package state

import "github.com/jinzhu/copier"

// clone deep-copies a Snapshot so subscribers and history entries never
// share backing arrays/maps with the Store's live state (spec §3
// Ownership: "mutations are never done in place on distributed copies").
func clone(s Snapshot) Snapshot {
	var out Snapshot
	if err := copier.CopyWithOption(&out, &s, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on structurally incompatible types, which would
		// be a programming error here (source and destination are the same
		// type); degrade to the shallow copy rather than losing the
		// transition.
		return s
	}
	return out
}
