package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for language server operations.
var (
	// ErrConnectionFailed is returned by Connect for any failure to bring a
	// server up. The underlying cause (spawn or handshake) is wrapped as well.
	ErrConnectionFailed = errors.New("lsp: connection failed")

	// ErrProcessSpawnFailed indicates the server executable could not be started.
	ErrProcessSpawnFailed = errors.New("lsp: process spawn failed")

	// ErrHandshakeFailed indicates the initialize exchange failed or timed out.
	ErrHandshakeFailed = errors.New("lsp: handshake failed")

	// ErrCommunicationFailed indicates a frame could not be written to the server.
	ErrCommunicationFailed = errors.New("lsp: communication failed")

	// ErrConnectionLost is delivered to requests still waiting when the
	// connection is torn down, and returned by operations on a dead connection.
	ErrConnectionLost = errors.New("lsp: connection lost")

	// ErrMalformedFrame indicates a header block without a usable Content-Length.
	ErrMalformedFrame = errors.New("lsp: malformed frame")

	// ErrServerNotFound indicates the configured command is not on PATH.
	ErrServerNotFound = errors.New("lsp: server executable not found")

	// ErrIncompatibleProject indicates the project contains a marker the
	// server is known not to handle.
	ErrIncompatibleProject = errors.New("lsp: project type not supported by server")

	// ErrNoProjectMarker indicates none of the required project markers exist.
	ErrNoProjectMarker = errors.New("lsp: no project marker found")

	// ErrNotDirectory indicates the project root is not a directory.
	ErrNotDirectory = errors.New("lsp: project root is not a directory")

	// ErrRegistryClosed is returned by Registry.Check after Registry.Close
	// and logged as the reason TryConnect refuses.
	ErrRegistryClosed = errors.New("lsp: registry closed")
)

// JSON-RPC error codes used by the client.
const (
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// ServerError is an error response returned by the language server.
// The server's message is preserved verbatim.
type ServerError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("lsp: %s failed (code %d): %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("lsp: server error (code %d): %s", e.Code, e.Message)
}

// IsMethodNotFound reports whether the server does not implement the method.
func (e *ServerError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// AsServerError extracts a *ServerError from err.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
