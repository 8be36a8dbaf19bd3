// Package activation implements C4, the Activation Tracker: which open
// plot document currently has editor focus, debounced against tab-switch
// thrash (spec §4.4).
package activation

import (
	"sync"
	"time"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "activation"

// DefaultDebounce matches spec §4.4's "~50 ms".
const DefaultDebounce = 50 * time.Millisecond

// Listener is called with the new active doc_id (or "" when focus is
// lost entirely) once the debounce window settles.
type Listener func(identity.DocID)

// Tracker is C4. Grounded on the same debounced-timer shape as
// persistence.Adapter (C3), generalized from "one timer per doc_id" to
// "one timer for the single process-wide active slot".
type Tracker struct {
	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	pending  identity.DocID
	active   identity.DocID
	listeners []Listener
}

// New constructs a Tracker. debounceMs <= 0 falls back to DefaultDebounce.
func New(debounceMs int) *Tracker {
	debounce := DefaultDebounce
	if debounceMs > 0 {
		debounce = time.Duration(debounceMs) * time.Millisecond
	}
	return &Tracker{debounce: debounce}
}

// Focus records that id gained focus (empty id means focus was lost,
// e.g. all views closed). The change is published after the debounce
// window if no further Focus call supersedes it.
func (t *Tracker) Focus(id identity.DocID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = id
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.commit)
}

// commit publishes t.pending as the new active document, if it differs
// from the currently published one.
func (t *Tracker) commit() {
	t.mu.Lock()
	next := t.pending
	if next == t.active {
		t.mu.Unlock()
		return
	}
	t.active = next
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	publish(listeners, next)
}

// publish delivers id to every listener, recovering from (and logging)
// any listener panic so one bad subscriber can't break activation
// tracking for the rest of the process.
func publish(listeners []Listener, id identity.DocID) {
	logger.InfoX(logModule, "active document changed", "doc_id", id)
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorX(logModule, "listener panicked", "panic", r)
				}
			}()
			l(id)
		}()
	}
}

// Forget clears id as the active document if it currently holds that
// slot, e.g. because the document was closed (spec §3 invariant 6: the
// active-document identity must not point at a document that no longer
// exists). Published immediately, bypassing the debounce window, since a
// closed document can never legitimately regain focus.
func (t *Tracker) Forget(id identity.DocID) {
	t.mu.Lock()
	if t.pending == id {
		t.pending = ""
	}
	if t.active != id {
		t.mu.Unlock()
		return
	}
	t.active = ""
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	publish(listeners, "")
}

// GetActive returns the currently published active doc_id, or "" if
// none (spec §4.4 getActive()).
func (t *Tracker) GetActive() (identity.DocID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == "" {
		return "", false
	}
	return t.active, true
}

// Subscribe registers l to be called on every future activeChanged
// publish.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}
