package bridge

import (
	"io"
	"sync"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/state"
)

// sseEvent is one event-hub message; Type mirrors the semantic kind
// ("notify", "state", "active-document") and Data is whatever that kind
// carries.
type sseEvent struct {
	Type string `json:"-"`
	Data any    `json:"-"`
}

// eventHub fans events out to every connected SSE client. Grounded on
// the teacher's chat_completions.go streaming loop (push-until-client-
// disconnects over a gin.ResponseWriter), generalized from one response
// per request to many concurrent long-lived subscribers.
type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan sseEvent
	next int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan sseEvent)}
}

func (h *eventHub) subscribe() (int, chan sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan sseEvent, 16)
	h.subs[id] = ch
	return id, ch
}

func (h *eventHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *eventHub) publish(ev sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// a slow client drops events rather than blocking every publisher
			// (spec §5: the bridge socket is a suspension point, the state
			// runner must never block on it).
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// wireStateEvents subscribes the hub to id's full-snapshot change stream
// so SSE clients observe every transition (spec §5: "events ... delivered
// to all subscribers before the next transition begins" — the hub is just
// one more subscriber, fed after the Store already finished).
func (s *Server) wireStateEvents(id identity.DocID) (state.Disposer, error) {
	return s.store.Subscribe(id, state.SliceFull, func(snap state.Snapshot) {
		s.hub.publish(sseEvent{Type: "state", Data: map[string]any{
			"doc_id": snap.DocID,
			"state":  snap,
		}})
	})
}

// handleSSE serves GET /bridge/events: a single long-lived connection
// streaming notify/state/active-document events as they occur.
func (s *Server) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	id, ch := s.hub.subscribe()
	defer s.hub.unsubscribe(id)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			sse.Encode(w, sse.Event{Event: ev.Type, Data: ev.Data})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
