package state

import (
	"fmt"
	"sync"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "state"

type subscription struct {
	id    uint64
	slice Slice
	fn    Subscriber
}

// docEntry holds one open document's authoritative state, history, and
// subscribers. Its own mutex serializes all operations against this
// doc_id (spec §5: "writes to a single doc_id ... are serialized"),
// independent of other documents' entries.
type docEntry struct {
	mu        sync.Mutex
	snapshot  Snapshot
	hist      *history
	subs      []subscription
	nextSubID uint64
}

// Store is C2: the authoritative per-document state plus event bus.
// Grounded on the teacher's RunStateMachine (explicit named transitions,
// one log line per transition) generalized from a one-shot run lifecycle
// to many concurrently open documents.
type Store struct {
	mu   sync.RWMutex
	docs map[identity.DocID]*docEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[identity.DocID]*docEntry)}
}

// Open registers id with empty state, or is a no-op if already open.
func (s *Store) Open(id identity.DocID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return
	}
	s.docs[id] = &docEntry{
		snapshot: Snapshot{
			DocID:             id,
			FeatureCollection: model.NewFeatureCollection(),
		},
		hist: newHistory(DefaultHistoryDepth),
	}
	logger.InfoX(logModule, "document opened", "doc_id", id)
}

// Close releases history and subscribers for id (spec §3 Lifecycle:
// "destroyed on close (history released)").
func (s *Store) Close(id identity.DocID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	logger.InfoX(logModule, "document closed", "doc_id", id)
}

func (s *Store) entry(id identity.DocID) (*docEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("state: unknown doc_id %q", id)
	}
	return e, nil
}

// Get returns the current value of one slice (or the whole snapshot for
// SliceFull).
func (s *Store) Get(id identity.DocID, slice Slice) (any, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.snapshot).Get(slice), nil
}

// Snapshot returns a deep copy of the full current state for id.
func (s *Store) Snapshot(id identity.DocID) (Snapshot, error) {
	e, err := s.entry(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.snapshot), nil
}

// Set validates and atomically swaps one slice, pushing a history entry
// and emitting changed(slice) (spec §4.2).
func (s *Store) Set(id identity.DocID, slice Slice, value any) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.transition(func(working *Snapshot) ([]Slice, error) {
		switch slice {
		case SliceFeatureCollection:
			fc, ok := value.(model.FeatureCollection)
			if !ok {
				return nil, fmt.Errorf("state: Set(featureCollection): wrong type %T", value)
			}
			if err := fc.ValidateUnique(); err != nil {
				return nil, err
			}
			working.FeatureCollection = fc
			working.Selection = working.Selection.Intersect(fc.IDSet())
			return []Slice{SliceFeatureCollection, SliceSelection}, nil
		case SliceSelection:
			sel, ok := value.(model.SelectionState)
			if !ok {
				return nil, fmt.Errorf("state: Set(selection): wrong type %T", value)
			}
			working.Selection = sel.Intersect(working.FeatureCollection.IDSet())
			return []Slice{SliceSelection}, nil
		case SliceTime:
			ts, ok := value.(model.TimeState)
			if !ok {
				return nil, fmt.Errorf("state: Set(time): wrong type %T", value)
			}
			if err := ts.Validate(); err != nil {
				return nil, err
			}
			working.Time = ts
			return []Slice{SliceTime}, nil
		case SliceViewport:
			vp, ok := value.(model.ViewportState)
			if !ok {
				return nil, fmt.Errorf("state: Set(viewport): wrong type %T", value)
			}
			if err := vp.Validate(); err != nil {
				return nil, err
			}
			working.Viewport = vp
			return []Slice{SliceViewport}, nil
		default:
			return nil, fmt.Errorf("state: Set: unsupported slice %q", slice)
		}
	})
}

// transition runs mutate against a working copy of e's snapshot. On
// success it pushes the pre-image to history, swaps the snapshot in,
// and emits one event per changed slice in the fixed order (spec §4.2).
// On error, no state change occurs and no events are emitted.
func (e *docEntry) transition(mutate func(*Snapshot) ([]Slice, error)) error {
	e.mu.Lock()

	preImage := clone(e.snapshot)
	working := clone(e.snapshot)

	changed, err := mutate(&working)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if len(changed) == 0 {
		e.mu.Unlock()
		return nil
	}

	e.hist.push(preImage)
	e.snapshot = working
	post := clone(working)
	subs := append([]subscription(nil), e.subs...)

	e.mu.Unlock()

	emit(subs, changed, post)
	return nil
}

// emit delivers post to every subscriber registered for a changed slice,
// in the fixed slice order, swallowing and logging subscriber panics so
// one bad listener never aborts the transition (spec §4.2, §7).
func emit(subs []subscription, changed []Slice, post Snapshot) {
	changedSet := make(map[Slice]struct{}, len(changed))
	for _, c := range changed {
		changedSet[c] = struct{}{}
	}
	for _, slice := range orderedSlices {
		if _, ok := changedSet[slice]; !ok {
			continue
		}
		for _, sub := range subs {
			if sub.slice != slice && sub.slice != SliceFull {
				continue
			}
			deliver(sub, post)
		}
	}
}

func deliver(sub subscription, post Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorX(logModule, "subscriber panicked", "doc_id", post.DocID, "slice", sub.slice, "panic", r)
		}
	}()
	sub.fn(post)
}

// Subscribe registers fn for slice's change events on id, returning a
// Disposer that unregisters it.
func (s *Store) Subscribe(id identity.DocID, slice Slice, fn Subscriber) (Disposer, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	subID := e.nextSubID
	e.nextSubID++
	e.subs = append(e.subs, subscription{id: subID, slice: slice, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub.id == subID {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Undo pops the most recent pre-image and swaps it in, emitting events
// for every slice that differs from the current state.
func (s *Store) Undo(id identity.DocID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.restoreFromHistory(true)
}

// Redo is symmetric with Undo.
func (s *Store) Redo(id identity.DocID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	return e.restoreFromHistory(false)
}

func (e *docEntry) restoreFromHistory(undo bool) error {
	e.mu.Lock()
	current := clone(e.snapshot)

	var target Snapshot
	var ok bool
	if undo {
		target, ok = e.hist.popUndo(current)
	} else {
		target, ok = e.hist.popRedo(current)
	}
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("state: nothing to %s for doc_id %q", verb(undo), current.DocID)
	}

	changed := diff(current, target)
	e.snapshot = target
	post := clone(target)
	subs := append([]subscription(nil), e.subs...)
	e.mu.Unlock()

	emit(subs, changed, post)
	return nil
}

func verb(undo bool) string {
	if undo {
		return "undo"
	}
	return "redo"
}

// diff reports which slices differ between a and b, used to decide which
// events an undo/redo emits.
func diff(a, b Snapshot) []Slice {
	var changed []Slice
	if fmt.Sprintf("%v", a.FeatureCollection) != fmt.Sprintf("%v", b.FeatureCollection) {
		changed = append(changed, SliceFeatureCollection)
	}
	if fmt.Sprintf("%v", a.Selection) != fmt.Sprintf("%v", b.Selection) {
		changed = append(changed, SliceSelection)
	}
	if a.Time != b.Time {
		changed = append(changed, SliceTime)
	}
	if a.Viewport != b.Viewport {
		changed = append(changed, SliceViewport)
	}
	return changed
}

// HistoryDepth reports how many undo entries are currently stored for id.
func (s *Store) HistoryDepth(id identity.DocID) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.depthUsed(), nil
}
