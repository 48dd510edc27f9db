// Package lsp is a minimal Language Server Protocol client.
//
// It launches one language server process per project, speaks JSON-RPC 2.0
// over the server's stdin/stdout using Content-Length framing, and exposes
// the two queries the tool layer needs: symbol references and document
// symbols.
//
// # Components
//
// Framer turns a byte stream into payloads. It tolerates arbitrary
// fragmentation, several frames per read and unknown headers, and recovers
// from malformed header blocks by discarding them.
//
// Conn owns one server process. A background reader resolves responses to
// the requests waiting on them by id. Writes are serialized. Documents are
// announced with textDocument/didOpen at most once per connection and always
// before the first request that depends on them.
//
// Registry maps project roots to live connections, applies the connect
// policy (required markers, rejected project types, server on PATH) and
// rebuilds connections that died.
//
// # Basic Usage
//
//	reg := lsp.NewRegistry(lsp.DefaultRegistryConfig())
//	defer reg.Close()
//
//	if reg.TryConnect(ctx, "/path/to/project") {
//	    conn := reg.Get("/path/to/project")
//	    refs, err := conn.FindReferences(ctx, "/path/to/project/main.go", 11, 5)
//	    ...
//	}
//
// Positions passed to FindReferences are zero-based like the protocol;
// lines returned in Reference and Symbol are one-based.
//
// # Errors
//
// Connect failures wrap ErrConnectionFailed plus the cause
// (ErrProcessSpawnFailed or ErrHandshakeFailed). A failed write returns
// ErrCommunicationFailed and kills the connection; requests still waiting at
// that point receive ErrConnectionLost. Error responses from the server
// surface as *ServerError with the server's message intact.
//
// # Observability
//
// Requests and queries are traced and measured through OpenTelemetry
// (tracer and meter "gosight.lsp"). Server stderr is forwarded to the debug
// log.
package lsp
