// Package toolclient implements C7: launches and talks to the external
// tool server process — enumerating its tools and invoking them, with
// cancellation and error-taxonomy mapping (spec §4.6).
package toolclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpTool "github.com/cloudwego/eino-ext/components/tool/mcp"
	"github.com/cloudwego/eino/components/tool"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/debrief/psbc/internal/psbc/command"
	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "toolclient"

// Status mirrors the teacher's MCPServer.ServerStatus, narrowed to the
// single external tool server this core depends on.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Config describes how to reach the tool server.
type Config struct {
	// URL is the tool server's SSE endpoint (e.g. http://localhost:60124/sse).
	URL string
	// ToolFilter optionally restricts which tool names are exposed.
	ToolFilter []string
	// ListToolsTTL bounds how long a cached tools/list answer is reused
	// before a fresh listTools call hits the wire (spec-supplemented
	// feature: invalidated early on every Reconnect regardless of TTL).
	ListToolsTTL time.Duration
}

// Client is C7. Grounded on the teacher's MCPServer (Connect / Reconnect
// / Close / Status / Tools), narrowed from "one of many configured MCP
// servers" to "the one external tool server" and widened with a cached
// tools/list and a cancellable CallTool.
type Client struct {
	cfg Config

	mu         sync.RWMutex
	cli        client.MCPClient
	tools      []tool.BaseTool
	toolsAt    time.Time
	status     Status
	lastErr    error
	generation uint64
}

// New constructs a disconnected Client.
func New(cfg Config) *Client {
	if cfg.ListToolsTTL <= 0 {
		cfg.ListToolsTTL = 30 * time.Second
	}
	return &Client{cfg: cfg, status: StatusDisconnected}
}

// Status reports the current connection state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastError returns the error from the most recent failed Connect, if any.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Connect establishes the SSE connection and performs the MCP
// initialize handshake, then discovers tools (spec-supplemented
// feature: the handshake shape mirrors the teacher's MCPServer.Connect).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusConnecting
	c.lastErr = nil
	c.mu.Unlock()

	cli, err := client.NewSSEMCPClient(c.cfg.URL)
	if err != nil {
		return c.fail(fmt.Errorf("toolclient: create client: %w", err))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "psbc", Version: "0.1.0"}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		return c.fail(fmt.Errorf("toolclient: initialize: %w", err))
	}

	tools, err := mcpTool.GetTools(ctx, &mcpTool.Config{Cli: cli, ToolNameList: c.cfg.ToolFilter})
	if err != nil {
		return c.fail(fmt.Errorf("toolclient: list tools: %w", err))
	}

	c.mu.Lock()
	c.cli = cli
	c.tools = tools
	c.toolsAt = time.Now()
	c.status = StatusConnected
	c.generation++
	c.mu.Unlock()

	logger.InfoX(logModule, "connected", "tools", len(tools))
	return nil
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.status = StatusError
	c.lastErr = err
	c.mu.Unlock()
	logger.WarnX(logModule, "connect failed", "error", err)
	return errorx.New(errno.ToolServerUnavailable, err.Error(), nil)
}

// Reconnect closes the current connection (if any) and connects fresh,
// invalidating any cached tools/list regardless of its TTL.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close()
	return c.Connect(ctx)
}

// Close releases the underlying MCP client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		if err := c.cli.Close(); err != nil {
			logger.WarnX(logModule, "close failed", "error", err)
		}
		c.cli = nil
	}
	c.tools = nil
	c.status = StatusDisconnected
	c.lastErr = nil
	c.generation++
}

// ToolDescriptor is a wire-friendly summary of one discovered tool (spec
// §3 ToolDescriptor entity).
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ListTools returns the cached tool list if younger than ListToolsTTL,
// otherwise refreshes it from the tool server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.RLock()
	fresh := time.Since(c.toolsAt) < c.cfg.ListToolsTTL && c.status == StatusConnected
	tools := c.tools
	c.mu.RUnlock()

	if !fresh {
		if err := c.refreshTools(ctx); err != nil {
			return nil, err
		}
		c.mu.RLock()
		tools = c.tools
		c.mu.RUnlock()
	}

	out := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			continue
		}
		out = append(out, ToolDescriptor{Name: info.Name, Description: info.Desc, InputSchema: info.ParamsOneOf})
	}
	return out, nil
}

func (c *Client) refreshTools(ctx context.Context) error {
	c.mu.RLock()
	cli := c.cli
	connected := c.status == StatusConnected
	c.mu.RUnlock()
	if !connected || cli == nil {
		return errorx.New(errno.ToolServerUnavailable, "tool server not connected", nil)
	}

	tools, err := mcpTool.GetTools(ctx, &mcpTool.Config{Cli: cli, ToolNameList: c.cfg.ToolFilter})
	if err != nil {
		return errorx.New(errno.ToolServerUnavailable, err.Error(), nil)
	}
	c.mu.Lock()
	c.tools = tools
	c.toolsAt = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) findTool(name string) (tool.InvokableTool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		info, err := t.Info(context.Background())
		if err != nil || info.Name != name {
			continue
		}
		invokable, ok := t.(tool.InvokableTool)
		if !ok {
			return nil, errorx.New(errno.Internal, fmt.Sprintf("tool %q is not invokable", name), nil)
		}
		return invokable, nil
	}
	return nil, errorx.New(errno.ResourceNotFound, fmt.Sprintf("unknown tool %q", name), nil)
}

// CallTool invokes name with argsJSON (a JSON object), returning the
// ResultCommand batch the tool produced. If ctx is cancelled before the
// call returns, no commands are returned and the cancellation is
// reported rather than a tool-server error (spec §5 Cancellation).
func (c *Client) CallTool(ctx context.Context, name, argsJSON string) ([]command.ResultCommand, error) {
	invokable, err := c.findTool(name)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := invokable.InvokableRun(ctx, argsJSON)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, errorx.New(errno.ToolServerUnavailable, err.Error(), nil)
	case raw := <-resultCh:
		batch, err := command.ParseBatch([]byte(raw))
		if err != nil {
			return nil, errorx.New(errno.InvalidParameter, err.Error(), nil)
		}
		return batch, nil
	}
}
