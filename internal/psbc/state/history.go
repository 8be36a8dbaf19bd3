package state

// DefaultHistoryDepth is the minimum bounded undo depth the spec requires
// (§4.2: "bounded; depth ≥ 32").
const DefaultHistoryDepth = 32

// history is a bounded stack of pre-image snapshots for undo, with a
// parallel redo stack populated as undo pops entries. Grounded on the
// teacher's explicit-struct, explicit-mutex style (run_state.go); the
// teacher has no undo/redo itself, so the shape here is original but
// follows the same "small struct, named methods" idiom.
type history struct {
	depth int
	undo  []Snapshot
	redo  []Snapshot
}

func newHistory(depth int) *history {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &history{depth: depth}
}

// push records preImage as the state to restore on the next undo, and
// clears the redo stack (a fresh mutation invalidates any pending redo).
func (h *history) push(preImage Snapshot) {
	h.undo = append(h.undo, preImage)
	if len(h.undo) > h.depth {
		h.undo = h.undo[len(h.undo)-h.depth:]
	}
	h.redo = nil
}

// popUndo pops and returns the most recent pre-image, pushing current
// onto the redo stack so a following redo can restore it.
func (h *history) popUndo(current Snapshot) (Snapshot, bool) {
	if len(h.undo) == 0 {
		return Snapshot{}, false
	}
	n := len(h.undo) - 1
	preImage := h.undo[n]
	h.undo = h.undo[:n]
	h.redo = append(h.redo, current)
	return preImage, true
}

// popRedo pops and returns the most recently undone state, pushing
// current back onto the undo stack.
func (h *history) popRedo(current Snapshot) (Snapshot, bool) {
	if len(h.redo) == 0 {
		return Snapshot{}, false
	}
	n := len(h.redo) - 1
	next := h.redo[n]
	h.redo = h.redo[:n]
	h.undo = append(h.undo, current)
	return next, true
}

// depthUsed reports how many undo entries are currently stored.
func (h *history) depthUsed() int {
	return len(h.undo)
}
