// Package persistence implements C3, the Persistence Adapter: it listens
// to State Store transitions and serializes the affected slices back into
// the host document buffer, debounced and coalesced, reconciling external
// edits observed on the same file (spec §4.3).
package persistence

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/model"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/debrief/psbc/pkg/jsonutil"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "persistence"

// DefaultDebounce is the coalescing window applied to writes for the same
// doc_id (spec §4.3: "≤ 50 ms").
const DefaultDebounce = 50 * time.Millisecond

// docWriter tracks the debounce timer and watcher state for one open
// document. Grounded on the teacher's memory-core Manager.startWatcher
// goroutine (timer.Reset on events, fired write on timer expiry). The
// fsnotify watcher itself is the Adapter's single one, shared by every
// open document's path.
type docWriter struct {
	mu         sync.Mutex
	path       string
	timer      *time.Timer
	generation uint64 // bumped by an external edit, invalidating in-flight writes
	lastWrite  []byte // content this Adapter itself last wrote, to ignore self-triggered fsnotify events
	dispose    state.Disposer
}

// Adapter is C3.
type Adapter struct {
	store    *state.Store
	registry *identity.Registry
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu   sync.Mutex
	docs map[identity.DocID]*docWriter

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New constructs an Adapter bound to store and registry. debounceMs <= 0
// falls back to DefaultDebounce.
func New(store *state.Store, registry *identity.Registry, debounceMs int) (*Adapter, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("persistence: create watcher: %w", err)
	}
	debounce := DefaultDebounce
	if debounceMs > 0 {
		debounce = time.Duration(debounceMs) * time.Millisecond
	}
	a := &Adapter{
		store:    store,
		registry: registry,
		debounce: debounce,
		watcher:  watcher,
		docs:     make(map[identity.DocID]*docWriter),
		closeCh:  make(chan struct{}),
	}
	go a.watchLoop()
	return a, nil
}

// Watch begins persisting id to path: subscribes to every state slice and
// arms the file watcher for external-edit detection.
func (a *Adapter) Watch(id identity.DocID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.docs[id]; ok {
		return nil
	}

	dw := &docWriter{path: path}
	dispose, err := a.store.Subscribe(id, state.SliceFull, func(snap state.Snapshot) {
		a.onTransition(id, dw, snap)
	})
	if err != nil {
		return err
	}
	dw.dispose = dispose
	a.docs[id] = dw

	if err := a.watcher.Add(path); err != nil {
		logger.WarnX(logModule, "failed to watch path, external-edit detection disabled", "doc_id", id, "path", path, "error", err)
	}
	return nil
}

// Unwatch stops persisting id (called on document close).
func (a *Adapter) Unwatch(id identity.DocID) {
	a.mu.Lock()
	dw, ok := a.docs[id]
	if ok {
		delete(a.docs, id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	dw.mu.Lock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.mu.Unlock()
	dw.dispose()
	_ = a.watcher.Remove(dw.path)
}

// Close stops the watcher and all pending debounce timers.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.closeCh) })

	a.mu.Lock()
	ids := make([]identity.DocID, 0, len(a.docs))
	for id := range a.docs {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.Unwatch(id)
	}
	return a.watcher.Close()
}

// watchLoop drains fsnotify events for every watched path, reconciling
// external edits against the in-flight write each docWriter tracks.
// Grounded on the teacher's memory-core Manager.startWatcher select loop.
func (a *Adapter) watchLoop() {
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				a.handleExternalEvent(event.Name)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logger.WarnX(logModule, "watcher error", "error", err)
		case <-a.closeCh:
			return
		}
	}
}

// handleExternalEvent reconciles one fsnotify event against the doc it
// belongs to, ignoring the Adapter's own just-completed write and
// invalidating (then reloading from) anything else.
func (a *Adapter) handleExternalEvent(path string) {
	a.mu.Lock()
	var id identity.DocID
	var dw *docWriter
	for candidateID, candidate := range a.docs {
		if candidate.path == path {
			id, dw = candidateID, candidate
			break
		}
	}
	a.mu.Unlock()
	if dw == nil {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}

	dw.mu.Lock()
	isSelf := dw.lastWrite != nil && string(raw) == string(dw.lastWrite)
	if isSelf {
		dw.mu.Unlock()
		return
	}
	dw.generation++
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.mu.Unlock()

	logger.InfoX(logModule, "external edit detected, reloading", "doc_id", id, "path", path)
	a.reload(id, raw)
}

// reload parses an externally-edited buffer and pushes its slices back
// into the Store, so the in-memory state stays reconciled with the file
// the host (or an external process) just changed.
func (a *Adapter) reload(id identity.DocID, raw []byte) {
	fc, sel, ts, vp, err := readSnapshot(raw)
	if err != nil {
		logger.WarnX(logModule, "failed to parse external edit", "doc_id", id, "error", err)
		return
	}
	if err := a.store.ReplaceCollection(id, fc); err != nil {
		logger.WarnX(logModule, "reload: replace collection failed", "doc_id", id, "error", err)
	}
	if err := a.store.Set(id, state.SliceSelection, sel); err != nil {
		logger.WarnX(logModule, "reload: set selection failed", "doc_id", id, "error", err)
	}
	if ts.Validate() == nil {
		_ = a.store.Set(id, state.SliceTime, ts)
	}
	if vp.Validate() == nil {
		_ = a.store.Set(id, state.SliceViewport, vp)
	}
}

// onTransition arms/resets the debounce timer for dw so that several
// transitions arriving in quick succession coalesce into one write (spec
// §3 invariant 4).
func (a *Adapter) onTransition(id identity.DocID, dw *docWriter, snap state.Snapshot) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	generation := dw.generation
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.timer = time.AfterFunc(a.debounce, func() {
		a.flush(id, dw, snap, generation)
	})
}

// flush performs the actual write-through, unless an external edit has
// bumped dw.generation since this write was scheduled (spec §4.3:
// "external edits observed on the buffer invalidate in-flight writes").
func (a *Adapter) flush(id identity.DocID, dw *docWriter, snap state.Snapshot, generation uint64) {
	dw.mu.Lock()
	if dw.generation != generation {
		dw.mu.Unlock()
		logger.InfoX(logModule, "write superseded by external edit, skipping", "doc_id", id)
		return
	}
	path := dw.path
	dw.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		// no existing buffer to merge into; start from an empty document
		raw = []byte(`{}`)
	}

	out, err := writeSnapshot(raw, snap)
	if err != nil {
		logger.ErrorX(logModule, "failed to serialize snapshot", "doc_id", id, "error", err)
		return
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		logger.ErrorX(logModule, "failed to write document buffer", "doc_id", id, "path", path, "error", err)
		return
	}

	dw.mu.Lock()
	dw.lastWrite = out
	dw.mu.Unlock()

	logger.InfoX(logModule, "wrote document buffer", "doc_id", id, "path", path)
}

// writeSnapshot replaces the reserved features/selection/time/viewport
// keys in raw with snap's values, using sjson so any other top-level keys
// the host document carries are left byte-for-byte untouched — the
// Adapter "never writes partial documents" but also never clobbers
// unrelated content (spec §4.3).
func writeSnapshot(raw []byte, snap state.Snapshot) ([]byte, error) {
	out := raw
	var err error

	out, err = sjson.SetBytes(out, "type", snap.FeatureCollection.Type)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "features", snap.FeatureCollection.Features)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "properties.selection", snap.Selection.IDs)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "properties.time", snap.Time)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "properties.viewport", snap.Viewport)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readSnapshot extracts the persisted slices back out of raw, used on
// reload after an external edit.
func readSnapshot(raw []byte) (model.FeatureCollection, model.SelectionState, model.TimeState, model.ViewportState, error) {
	var fc model.FeatureCollection
	if res := gjson.GetBytes(raw, "features"); res.Exists() {
		if err := jsonutil.Unmarshal([]byte(res.Raw), &fc.Features); err != nil {
			return fc, model.SelectionState{}, model.TimeState{}, model.ViewportState{}, fmt.Errorf("persistence: decode features: %w", err)
		}
	}
	fc.Type = "FeatureCollection"
	if t := gjson.GetBytes(raw, "type"); t.Exists() {
		fc.Type = t.String()
	}

	var sel model.SelectionState
	if res := gjson.GetBytes(raw, "properties.selection"); res.Exists() {
		_ = jsonutil.Unmarshal([]byte(res.Raw), &sel.IDs)
	}

	var ts model.TimeState
	if res := gjson.GetBytes(raw, "properties.time"); res.Exists() {
		_ = jsonutil.Unmarshal([]byte(res.Raw), &ts)
	}

	var vp model.ViewportState
	if res := gjson.GetBytes(raw, "properties.viewport"); res.Exists() {
		_ = jsonutil.Unmarshal([]byte(res.Raw), &vp)
	}

	return fc, sel, ts, vp, nil
}
