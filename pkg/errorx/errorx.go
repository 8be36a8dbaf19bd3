// Package errorx is a small coder registry, generalized from the teacher's
// handler/v1 error-code convention: every error kind used anywhere in the
// process is registered exactly once, with a legacy numeric code, a
// JSON-RPC code, a human message, and whether the kind is retryable.
package errorx

import "fmt"

// Coder is one registered error kind.
type Coder interface {
	// Code is the legacy-dialect numeric code.
	Code() int
	// RPCCode is the JSON-RPC 2.0 error code.
	RPCCode() int
	// Message is the default human-readable message for this kind.
	Message() string
	// Retryable reports whether callers should retry this kind of failure.
	Retryable() bool
}

type coder struct {
	code      int
	rpcCode   int
	msg       string
	retryable bool
}

func (c *coder) Code() int      { return c.code }
func (c *coder) RPCCode() int   { return c.rpcCode }
func (c *coder) Message() string { return c.msg }
func (c *coder) Retryable() bool { return c.retryable }

var registry = map[int]Coder{}

// NewCoder builds a Coder. Call MustRegister with the result at package init.
func NewCoder(code, rpcCode int, msg string, retryable bool) Coder {
	return &coder{code: code, rpcCode: rpcCode, msg: msg, retryable: retryable}
}

// MustRegister registers c under its own Code(), panicking on a duplicate
// registration — a programmer error caught at process start, same as the
// teacher's handler/v1/errors.go init() blocks.
func MustRegister(c Coder) Coder {
	if _, exists := registry[c.Code()]; exists {
		panic(fmt.Sprintf("errorx: code %d already registered", c.Code()))
	}
	registry[c.Code()] = c
	return c
}

// Lookup returns the Coder registered for code, if any.
func Lookup(code int) (Coder, bool) {
	c, ok := registry[code]
	return c, ok
}

// Error is a concrete error carrying a Coder plus an optional data payload
// (e.g. MultiplePlots' candidate list, PortConflict's port number) and an
// optional message override.
type Error struct {
	Coder   Coder
	Message string
	Data    any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Coder.Message()
}

// New builds an *Error from a registered Coder, optionally overriding the
// message and attaching a data payload.
func New(c Coder, message string, data any) *Error {
	return &Error{Coder: c, Message: message, Data: data}
}
