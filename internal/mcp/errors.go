package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection matches every *ConnectionError via errors.Is.
	ErrConnection = errors.New("mcp connection failed")

	// ErrTransport wraps I/O failures on a server's pipes: write errors,
	// unexpected EOF, and reads on a closed transport.
	ErrTransport = errors.New("mcp transport failure")

	// ErrTimeout is returned when the handshake response does not arrive
	// within the configured deadline.
	ErrTimeout = errors.New("mcp read timed out")
)

// ConnectionError reports a server that could not be spawned or failed
// its initialize handshake. The connection is Closed when this is
// returned.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to MCP server %s: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnection) true for any ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// ToolInvocationError is returned by CallTool when the server ran the
// tool and reported failure, either as a JSON-RPC error object or as a
// result with isError set. The connection stays usable.
type ToolInvocationError struct {
	Server  string
	Tool    string
	Code    int
	Message string
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("MCP tool %s on %s failed: %s", e.Tool, e.Server, e.Message)
}
