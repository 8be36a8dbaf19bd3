// Package errno registers the Error Taxonomy (spec §4.8): the closed set
// of error kinds shared across the Bridge, Tool Client, and Supervisor.
//
// Code format mirrors the teacher's handler/v1 convention (1XXYYZ) but
// scoped to this module: 20 (psbc) + 2-digit group + 2-digit sequence.
package errno

import "github.com/debrief/psbc/pkg/errorx"

const (
	CodeBridgeUnavailable    = 200101
	CodeToolServerUnavailable = 200102
	CodeInvalidParameter     = 200201
	CodeResourceNotFound     = 200202
	CodeMultiplePlots        = 200203
	CodePortConflict         = 200301
	CodeHealthCheckTimeout   = 200302
	CodeRetryExhausted       = 200303
	CodeInternal             = 200401
)

// JSON-RPC 2.0 reserves -32768..-32000, leaving -32000..-32099 for
// implementation-defined "server error" codes. The domain-specific kinds
// use codes in that server-error band; InvalidParameter and Internal reuse
// the predefined -32602 and -32603.
const (
	rpcBridgeUnavailable     = -32001
	rpcToolServerUnavailable = -32002
	rpcInvalidParameter      = -32602 // standard "Invalid params"
	rpcResourceNotFound      = -32003
	rpcMultiplePlots         = -32004
	rpcPortConflict          = -32005
	rpcHealthCheckTimeout    = -32006
	rpcRetryExhausted        = -32007
	rpcInternal              = -32603 // standard "Internal error"
)

var (
	// BridgeUnavailable: the Bridge listener is not reachable. Retryable.
	BridgeUnavailable = errorx.MustRegister(errorx.NewCoder(
		CodeBridgeUnavailable, rpcBridgeUnavailable, "bridge unavailable", true))

	// ToolServerUnavailable: the tool server is down or unhealthy. Retryable.
	ToolServerUnavailable = errorx.MustRegister(errorx.NewCoder(
		CodeToolServerUnavailable, rpcToolServerUnavailable, "tool server unavailable", true))

	// InvalidParameter: input failed validation; state was not mutated.
	InvalidParameter = errorx.MustRegister(errorx.NewCoder(
		CodeInvalidParameter, rpcInvalidParameter, "invalid parameter", false))

	// ResourceNotFound: unknown doc_id, path, or feature id.
	ResourceNotFound = errorx.MustRegister(errorx.NewCoder(
		CodeResourceNotFound, rpcResourceNotFound, "resource not found", false))

	// MultiplePlots: implicit document resolution was ambiguous.
	MultiplePlots = errorx.MustRegister(errorx.NewCoder(
		CodeMultiplePlots, rpcMultiplePlots, "multiple plots open", false))

	// PortConflict: the configured port is already bound.
	PortConflict = errorx.MustRegister(errorx.NewCoder(
		CodePortConflict, rpcPortConflict, "port conflict", false))

	// HealthCheckTimeout: subprocess never became healthy within the
	// configured startup timeout.
	HealthCheckTimeout = errorx.MustRegister(errorx.NewCoder(
		CodeHealthCheckTimeout, rpcHealthCheckTimeout, "health check timeout", true))

	// RetryExhausted: all configured retries were consumed.
	RetryExhausted = errorx.MustRegister(errorx.NewCoder(
		CodeRetryExhausted, rpcRetryExhausted, "retry exhausted", false))

	// Internal: unclassified error.
	Internal = errorx.MustRegister(errorx.NewCoder(
		CodeInternal, rpcInternal, "internal error", false))
)

// MultiplePlotsCandidate is the shape of one entry in MultiplePlots' data
// payload (spec §6: available_plots: [{filename,title}]).
type MultiplePlotsCandidate struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
}

// PortConflictData is the shape of PortConflict's data payload.
type PortConflictData struct {
	Port int `json:"port"`
}
