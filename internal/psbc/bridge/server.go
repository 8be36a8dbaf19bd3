// Package bridge implements C5: the localhost JSON request/response
// endpoint that multiplexes the legacy command dialect and the JSON-RPC
// 2.0 dialect over one gin engine, resolving implicit-document semantics
// and fanning state/activation changes out over SSE (spec §4.5).
package bridge

import (
	"context"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"

	"github.com/debrief/psbc/internal/psbc/activation"
	"github.com/debrief/psbc/internal/psbc/executor"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/persistence"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/debrief/psbc/internal/psbc/supervisor"
	"github.com/debrief/psbc/internal/psbc/toolclient"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "bridge"

// Config wires the Bridge to its collaborators; Persistence and Tools may
// be nil, Supervisors may be empty, and Debug is optional (spec §2 Flow: "identity is resolved through C1 and C4; state
// reads/writes go through C2").
type Config struct {
	Registry    *identity.Registry
	Store       *state.Store
	Persistence *persistence.Adapter
	Activation  *activation.Tracker
	Executor    *executor.Executor
	Tools       *toolclient.Client // nil if no tool server is configured
	Supervisors map[string]*supervisor.Supervisor
	Debug       bool // mounts /debug/pprof when true
}

// Server is C5.
type Server struct {
	registry    *identity.Registry
	store       *state.Store
	persistence *persistence.Adapter
	activation  *activation.Tracker
	executor    *executor.Executor
	tools       *toolclient.Client
	supervisors map[string]*supervisor.Supervisor

	hub   *eventHub
	calls *callRegistry
}

// New constructs a Server and its gin engine. Run the returned engine
// directly, or serve it via http.Server for graceful-shutdown control.
func New(cfg Config) (*Server, *gin.Engine) {
	s := &Server{
		registry:    cfg.Registry,
		store:       cfg.Store,
		persistence: cfg.Persistence,
		activation:  cfg.Activation,
		executor:    cfg.Executor,
		tools:       cfg.Tools,
		supervisors: cfg.Supervisors,
		hub:         newEventHub(),
		calls:       newCallRegistry(),
	}

	if s.activation != nil {
		s.activation.Subscribe(func(id identity.DocID) {
			s.hub.publish(sseEvent{Type: "active-document", Data: map[string]string{"doc_id": string(id)}})
		})
	}

	g := gin.New()
	g.Use(gin.Recovery())

	g.POST("/bridge", s.handleBridge)
	g.GET("/bridge/events", s.handleSSE)
	g.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	if cfg.Debug {
		pprof.Register(g)
	}

	return s, g
}

// OpenDocument registers path's identity, opens its Store entry, and
// arms persistence watching. Called by the host's editor-open hook (spec
// §2 Flow: "...enter via C5 or the host's editor hooks"), not by a bridge
// wire operation — no dialect exposes "open a document" because the host
// always initiates it.
func (s *Server) OpenDocument(path string) (identity.DocID, error) {
	id := s.registry.Register(identity.Handle(path))
	s.store.Open(id)
	if s.persistence != nil {
		if err := s.persistence.Watch(id, path); err != nil {
			return id, err
		}
	}
	if _, err := s.wireStateEvents(id); err != nil {
		return id, err
	}
	logger.InfoX(logModule, "document opened", "doc_id", id, "path", path)
	return id, nil
}

// CloseDocument releases path's Store entry and persistence watch, and
// forgets its registry entry and activation state (spec §3 Lifecycle:
// "destroyed on close (history released)").
func (s *Server) CloseDocument(path string) {
	id, ok := s.registry.ByPath(path)
	if !ok {
		return
	}
	if s.persistence != nil {
		s.persistence.Unwatch(id)
	}
	s.store.Close(id)
	s.activation.Forget(id)
	s.registry.Forget(identity.Handle(path))
	logger.InfoX(logModule, "document closed", "doc_id", id, "path", path)
}

// notify surfaces a message to the user via the SSE event stream; the
// legacy/RPC "notify" operation and internal components both use this.
func (s *Server) notify(message string) {
	s.hub.publish(sseEvent{Type: "notify", Data: map[string]string{"message": message}})
}

type supervisorStatusView struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	Tooltip          string `json:"tooltip"`
	ConsecutiveFails int    `json:"consecutiveFails"`
}

func (s *Server) supervisorStatuses() []supervisorStatusView {
	out := make([]supervisorStatusView, 0, len(s.supervisors))
	for name, sup := range s.supervisors {
		st := sup.Status()
		out = append(out, supervisorStatusView{
			Name:             name,
			State:            string(st.State),
			Tooltip:          st.Tooltip,
			ConsecutiveFails: st.ConsecutiveFails,
		})
	}
	return out
}

// Shutdown tears down subscriptions the Server itself owns (the SSE hub)
// and cancels any tool calls still in flight; subprocess lifecycle is
// owned by the Supervisors, not the Bridge.
func (s *Server) Shutdown(ctx context.Context) {
	s.hub.closeAll()
	s.calls.cancelAll()
}
