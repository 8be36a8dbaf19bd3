// Package identity implements C1, the Editor Identity Registry: stable
// doc_id assignment for open plot documents (spec §4.1).
package identity

import (
	"sync"

	"github.com/google/uuid"
)

// DocID is an opaque, process-local, never-reused document identifier
// (spec invariant 5).
type DocID string

// Handle is whatever the host uses to identify an open document — in the
// headless core this is the document's absolute path at open time. Rename
// changes only the path reported by Path and ByPath; the Handle key that
// Lookup and Forget take stays the one given to Register.
type Handle string

// Registry assigns and looks up doc_ids. Grounded on the teacher's
// inmemory agent/session stores: a single mutex-guarded map, no
// persistence, ids generated with google/uuid.
type Registry struct {
	mu        sync.RWMutex
	byHandle  map[Handle]DocID
	pathOf    map[DocID]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byHandle: make(map[Handle]DocID),
		pathOf:   make(map[DocID]string),
	}
}

// Register returns the existing doc_id for handle if already registered,
// else assigns and returns a fresh one.
func (r *Registry) Register(handle Handle) DocID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byHandle[handle]; ok {
		return id
	}
	id := DocID(uuid.NewString())
	r.byHandle[handle] = id
	r.pathOf[id] = string(handle)
	return id
}

// Lookup returns the doc_id registered for handle, if any.
func (r *Registry) Lookup(handle Handle) (DocID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handle]
	return id, ok
}

// ByPath is a path-based lookup used by the Bridge when callers omit
// implicit identity (spec §4.1).
func (r *Registry) ByPath(path string) (DocID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, p := range r.pathOf {
		if p == path {
			return id, true
		}
	}
	return "", false
}

// Rename updates the display path associated with id without changing its
// doc_id, so identities survive document moves/renames.
func (r *Registry) Rename(id DocID, newPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pathOf[id]; ok {
		r.pathOf[id] = newPath
	}
}

// Path returns the current display path for id, if registered.
func (r *Registry) Path(id DocID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pathOf[id]
	return p, ok
}

// Forget removes handle's registration, called when the host signals
// final close.
func (r *Registry) Forget(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byHandle[handle]; ok {
		delete(r.byHandle, handle)
		delete(r.pathOf, id)
	}
}

// All returns every currently registered doc_id.
func (r *Registry) All() []DocID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]DocID, 0, len(r.pathOf))
	for id := range r.pathOf {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of currently registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pathOf)
}
