package bridge

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

const jsonRPCVersion = "2.0"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func rpcErrorFrom(err error) *rpcError {
	if appErr, ok := err.(*errorx.Error); ok {
		return &rpcError{Code: appErr.Coder.RPCCode(), Message: appErr.Error(), Data: errorTaxonomyData(appErr)}
	}
	return &rpcError{Code: -32603, Message: err.Error()}
}

// errorTaxonomyData reflects the internal taxonomy kind into error.data.kind
// (spec §6: "internal taxonomy is reflected in error.data.kind"), alongside
// any kind-specific payload already carried on the error (e.g. MultiplePlots'
// candidate list).
func errorTaxonomyData(appErr *errorx.Error) any {
	data := gin.H{"kind": taxonomyName(appErr.Coder.Code())}
	if appErr.Data != nil {
		data["payload"] = appErr.Data
	}
	return data
}

func taxonomyName(code int) string {
	switch code {
	case errno.CodeBridgeUnavailable:
		return "BridgeUnavailable"
	case errno.CodeToolServerUnavailable:
		return "ToolServerUnavailable"
	case errno.CodeInvalidParameter:
		return "InvalidParameter"
	case errno.CodeResourceNotFound:
		return "ResourceNotFound"
	case errno.CodeMultiplePlots:
		return "MultiplePlots"
	case errno.CodePortConflict:
		return "PortConflict"
	case errno.CodeHealthCheckTimeout:
		return "HealthCheckTimeout"
	case errno.CodeRetryExhausted:
		return "RetryExhausted"
	default:
		return "Internal"
	}
}

// toolNamePrefix is prepended to every legacy command name when it's
// exposed as an RPC tool (spec §6: "Tool names mirror the legacy commands
// with a fixed prefix").
const toolNamePrefix = "debrief_"

type rpcToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleRPC(c *gin.Context, body []byte) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	result, err := s.dispatchRPC(c, req)
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID}
	if err != nil {
		logger.WarnX(logModule, "rpc method failed", "method", req.Method, "error", err)
		resp.Error = rpcErrorFrom(err)
	} else {
		resp.Result = result
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) dispatchRPC(c *gin.Context, req rpcRequest) (any, error) {
	switch req.Method {
	case "initialize":
		return gin.H{"protocolVersion": jsonRPCVersion, "serverInfo": gin.H{"name": "psbc", "version": "0.1.0"}}, nil

	case "tools/list":
		// Exposes the legacy command set itself as MCP-style tools (spec §6:
		// "tool names mirror the legacy commands with a fixed prefix"), not
		// the external tool server's tools (see list_external_tools).
		descs := make([]rpcToolDescriptor, 0, len(operations))
		for name := range operations {
			descs = append(descs, rpcToolDescriptor{Name: toolNamePrefix + name, Description: name})
		}
		return gin.H{"tools": descs}, nil

	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		command := trimToolPrefix(p.Name)
		op, ok := operations[command]
		if !ok {
			return nil, errorx.New(errno.InvalidParameter, "unknown tool "+p.Name, nil)
		}
		return op(s, c.Request.Context(), p.Arguments)

	default:
		// Direct state methods mirror the legacy command set one-to-one
		// (spec §6).
		op, ok := operations[req.Method]
		if !ok {
			return nil, errorx.New(errno.InvalidParameter, "unknown method "+req.Method, nil)
		}
		return op(s, c.Request.Context(), req.Params)
	}
}

func trimToolPrefix(name string) string {
	if len(name) > len(toolNamePrefix) && name[:len(toolNamePrefix)] == toolNamePrefix {
		return name[len(toolNamePrefix):]
	}
	return name
}
