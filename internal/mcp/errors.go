package mcp

import (
	"fmt"
	"time"
)

// ConnectionError reports a failure to spawn or connect to a server.
type ConnectionError struct {
	ServerID string
	Message  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp server %s: connection failed: %s", e.ServerID, e.Message)
}

// TransportError reports a stdin/stdout failure or a disconnect.
// Retryable at the caller's discretion.
type TransportError struct {
	ServerID string
	Message  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp server %s: transport: %s", e.ServerID, e.Message)
}

// TimeoutError reports a per-request deadline exceeded. The pending
// entry is cleaned up asynchronously.
type TimeoutError struct {
	ServerID string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp server %s: request timed out after %s", e.ServerID, e.Timeout)
}

// ProtocolError carries a JSON-RPC error object returned by the server.
type ProtocolError struct {
	ServerID string
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp server %s: protocol: %s", e.ServerID, e.Message)
}
