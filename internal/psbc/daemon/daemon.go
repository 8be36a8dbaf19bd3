// Package daemon assembles C1-C9 into one running process: the
// long-lived extension-host-side daemon that owns the Bridge listener and
// the Tool Server subprocess, each behind its own Supervisor. Grounded on
// the teacher's createAPIServer/PrepareRun/Run split (internal/hivemind/
// server.go), narrowed to this module's two supervised subprocesses
// instead of gRPC+HTTP+plugin+LLM+MCP+agents modules.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/debrief/psbc/internal/psbc/activation"
	"github.com/debrief/psbc/internal/psbc/bridge"
	"github.com/debrief/psbc/internal/psbc/config"
	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/executor"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/persistence"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/debrief/psbc/internal/psbc/supervisor"
	"github.com/debrief/psbc/internal/psbc/toolclient"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "daemon"

// bridgeSupervisorName and toolSupervisorName key the Supervisors map
// exposed through get_supervisor_status (spec §4.7: "one Supervisor
// instance per managed subprocess").
const (
	bridgeSupervisorName = "bridge"
	toolSupervisorName   = "toolServer"
)

// Daemon owns every process-wide singleton (spec §8 "the Bridge port, the
// runner, and the Supervisors are process-wide singletons with explicit
// init/teardown tied to the host's extension activation hooks").
type Daemon struct {
	cfg *config.Config

	registry    *identity.Registry
	store       *state.Store
	persistence *persistence.Adapter
	activation  *activation.Tracker
	executor    *executor.Executor
	tools       *toolclient.Client

	bridgeSupervisor *supervisor.Supervisor
	toolSupervisor   *supervisor.Supervisor

	server     *bridge.Server
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

// New wires every component per cfg but starts nothing; the host's
// extension-activation hook calls Start (spec §4.7: "no auto-start is
// permitted on extension activation — the user must initiate").
func New(cfg *config.Config) (*Daemon, error) {
	registry := identity.New()
	store := state.New()
	exec := executor.New(store, executor.NopSideEffects{})

	persist, err := persistence.New(store, registry, cfg.Persistence.DebounceMs)
	if err != nil {
		return nil, fmt.Errorf("daemon: persistence adapter: %w", err)
	}

	act := activation.New(int(activation.DefaultDebounce / time.Millisecond))

	var tools *toolclient.Client
	if cfg.ToolServer.URL != "" {
		tools = toolclient.New(toolclient.Config{URL: cfg.ToolServer.URL})
	}

	d := &Daemon{
		cfg:         cfg,
		registry:    registry,
		store:       store,
		persistence: persist,
		activation:  act,
		executor:    exec,
		tools:       tools,
	}

	d.bridgeSupervisor = supervisor.New(supervisor.Config{
		Name:                bridgeSupervisorName,
		Start:               d.startBridge,
		Stop:                d.stopBridge,
		Probe:               d.probeBridge,
		StartupTimeout:      time.Duration(cfg.Supervisor.StartupTimeoutMs) * time.Millisecond,
		StartupPollInterval: time.Duration(cfg.Supervisor.StartupPollMs) * time.Millisecond,
		SteadyPollInterval:  time.Duration(cfg.Supervisor.SteadyPollMs) * time.Millisecond,
		FailureThreshold:    cfg.Supervisor.FailureThreshold,
	})

	if tools != nil {
		d.toolSupervisor = supervisor.New(supervisor.Config{
			Name: toolSupervisorName,
			Start: func(ctx context.Context) error {
				return tools.ConnectWithRetry(ctx, 3)
			},
			Stop: func(ctx context.Context) error {
				tools.Close()
				return nil
			},
			Probe: func(ctx context.Context) error {
				_, err := tools.ListTools(ctx)
				return err
			},
			StartupTimeout:      time.Duration(cfg.Supervisor.StartupTimeoutMs) * time.Millisecond,
			StartupPollInterval: time.Duration(cfg.Supervisor.StartupPollMs) * time.Millisecond,
			SteadyPollInterval:  time.Duration(cfg.Supervisor.SteadyPollMs) * time.Millisecond,
			FailureThreshold:    cfg.Supervisor.FailureThreshold,
		})
	}

	supervisors := map[string]*supervisor.Supervisor{bridgeSupervisorName: d.bridgeSupervisor}
	if d.toolSupervisor != nil {
		supervisors[toolSupervisorName] = d.toolSupervisor
	}

	d.server, d.engine = bridge.New(bridge.Config{
		Registry:    registry,
		Store:       store,
		Persistence: persist,
		Activation:  act,
		Executor:    exec,
		Tools:       tools,
		Supervisors: supervisors,
		Debug:       cfg.Debug,
	})

	return d, nil
}

// Start brings the Bridge listener up and, if a tool server is
// configured, connects to it. A Bridge start failure is returned and the
// tool server is then not started; a tool-server start failure is only
// logged (its Supervisor records it) and leaves the Bridge running.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.bridgeSupervisor.Start(ctx); err != nil {
		return err
	}
	if d.toolSupervisor != nil {
		if err := d.toolSupervisor.Start(ctx); err != nil {
			logger.WarnX(logModule, "tool server failed to start", "error", err)
		}
	}
	return nil
}

// Stop tears every supervised subprocess down, bridge first so in-flight
// requests drain before the tool client disconnects.
func (d *Daemon) Stop(ctx context.Context) {
	d.bridgeSupervisor.Stop(ctx)
	d.server.Shutdown(ctx)
	if d.toolSupervisor != nil {
		d.toolSupervisor.Stop(ctx)
	}
	_ = d.persistence.Close()
}

// startBridge is the Bridge Supervisor's StartFunc: binds the configured
// port and serves the gin engine in the background. A bind failure on an
// already-used port is reported as PortConflict (spec §5 "PortConflict
// propagates to the Supervisor, which enters Error ... there is no
// silent rebinding").
func (d *Daemon) startBridge(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", d.cfg.Bridge.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return errorx.New(errno.PortConflict, fmt.Sprintf("port %d already in use", d.cfg.Bridge.Port),
				errno.PortConflictData{Port: d.cfg.Bridge.Port})
		}
		return errorx.New(errno.Internal, err.Error(), nil)
	}

	d.listener = ln
	d.httpServer = &http.Server{Handler: d.engine}
	go func() {
		if err := d.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorX(logModule, "bridge listener stopped unexpectedly", "error", err)
		}
	}()
	logger.InfoX(logModule, "bridge listening", "port", d.cfg.Bridge.Port)
	return nil
}

func (d *Daemon) stopBridge(ctx context.Context) error {
	if d.httpServer == nil {
		return nil
	}
	return d.httpServer.Shutdown(ctx)
}

func (d *Daemon) probeBridge(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/healthz", d.cfg.Bridge.Port), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}

// Engine exposes the gin engine for tests that want to drive it directly
// without a real listener.
func (d *Daemon) Engine() *gin.Engine { return d.engine }

// BridgeServer exposes the Server for OpenDocument/CloseDocument calls
// from the host's editor hooks.
func (d *Daemon) BridgeServer() *bridge.Server { return d.server }
