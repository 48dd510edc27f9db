package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// handshakeRequestID is reserved for initialize; ordinary requests start after it.
	handshakeRequestID int64 = 1
	firstRequestID     int64 = 2

	readBufferSize = 32 << 10
)

// Config describes how to launch and talk to a language server.
type Config struct {
	// Command is the server executable, resolved through PATH.
	Command string
	Args    []string
	// Env is appended to the current environment.
	Env []string

	// LanguageID is sent with every didOpen.
	LanguageID string

	// HandshakeTimeout bounds the initialize exchange.
	HandshakeTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown in Disconnect.
	ShutdownTimeout time.Duration

	ClientName    string
	ClientVersion string
}

// DefaultConfig returns a configuration for gopls.
func DefaultConfig() Config {
	return Config{
		Command:          "gopls",
		Args:             []string{"serve"},
		LanguageID:       "go",
		HandshakeTimeout: 10 * time.Second,
		ShutdownTimeout:  2 * time.Second,
		ClientName:       "gosight",
		ClientVersion:    "1.0.0",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Command == "" {
		c.Command = def.Command
		if len(c.Args) == 0 {
			c.Args = def.Args
		}
	}
	if c.LanguageID == "" {
		c.LanguageID = def.LanguageID
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.ClientName == "" {
		c.ClientName = def.ClientName
	}
	if c.ClientVersion == "" {
		c.ClientVersion = def.ClientVersion
	}
	return c
}

// Conn is a live connection to one language server process.
//
// Requests are correlated by id: each SendRequest registers a one-shot
// result channel in the pending table and a background reader (the pump)
// fulfills it when the matching response arrives. When the stream ends,
// a write fails or Disconnect is called, the connection is torn down:
// every waiting request receives ErrConnectionLost, the opened-document set
// is cleared and further operations fail with ErrConnectionLost.
//
// Conn is safe for concurrent use.
type Conn struct {
	root   string
	cfg    Config
	logger *slog.Logger

	cmd *exec.Cmd
	r   io.ReadCloser
	w   io.WriteCloser

	// writeMu serializes frame writes so frames never interleave
	writeMu sync.Mutex

	// mu guards everything below
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingCall
	opened  map[string]*openState
	dead    bool

	done     chan struct{}
	pumpDone chan struct{}
}

type pendingCall struct {
	method string
	ch     chan callResult
}

type callResult struct {
	resp *Response
	err  error
}

type openState struct {
	ready chan struct{}
	err   error
}

// Connect launches the configured server in root, performs the initialize
// handshake and returns the ready connection. Every failure wraps
// ErrConnectionFailed together with ErrProcessSpawnFailed or
// ErrHandshakeFailed; a process that was started is killed.
func Connect(ctx context.Context, root string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	ctx, span := tracer.Start(ctx, "lsp.Connect",
		trace.WithAttributes(
			attribute.String("lsp.root", root),
			attribute.String("lsp.command", cfg.Command),
		),
	)
	defer span.End()

	conn, err := spawn(root, cfg)
	recordServerSpawn(ctx, cfg.Command, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := conn.Handshake(ctx); err != nil {
		conn.teardown(err)
		conn.waitPump(cfg.ShutdownTimeout)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	conn.logger.Info("language server connected",
		slog.String("command", cfg.Command),
		slog.Int("pid", conn.Pid()),
	)
	return conn, nil
}

// spawn starts the server process and its reader.
func spawn(root string, cfg Config) (*Conn, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessSpawnFailed, err)
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = root
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.WaitDelay = cfg.ShutdownTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrProcessSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrProcessSpawnFailed, err)
	}

	c := newConn(root, cfg, stdout, stdin)
	cmd.Stderr = &stderrWriter{logger: c.logger}
	c.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessSpawnFailed, err)
	}

	go c.pump()
	return c, nil
}

// NewConn creates a connection over an existing stream pair and starts
// reading from r. No handshake is performed; call Handshake for that.
func NewConn(root string, cfg Config, r io.ReadCloser, w io.WriteCloser) *Conn {
	c := newConn(root, cfg.withDefaults(), r, w)
	go c.pump()
	return c
}

func newConn(root string, cfg Config, r io.ReadCloser, w io.WriteCloser) *Conn {
	return &Conn{
		root:     root,
		cfg:      cfg,
		logger:   slog.Default().With(slog.String("component", "lsp"), slog.String("root", root)),
		r:        r,
		w:        w,
		nextID:   firstRequestID,
		pending:  make(map[int64]*pendingCall),
		opened:   make(map[string]*openState),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Handshake sends initialize with the reserved id, waits for the result
// within the configured timeout and then sends initialized.
func (c *Conn) Handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   documentURI(c.root),
		ClientInfo: &protocol.ClientInfo{
			Name:    c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				References: &protocol.ReferencesTextDocumentClientCapabilities{},
				DocumentSymbol: &protocol.DocumentSymbolClientCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
			},
		},
	}

	call, err := c.register(handshakeRequestID, "initialize")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if _, err := c.roundTrip(ctx, handshakeRequestID, call, params); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	if err := c.SendNotification("initialized", &protocol.InitializedParams{}); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return nil
}

// SendRequest sends a request and blocks until its response arrives, the
// connection is torn down or ctx is done. An error response is returned as
// a *ServerError carrying the server's message.
func (c *Conn) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	call, id, err := c.allocate(method)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, id, call, params)
}

// SendNotification writes a notification. A write failure tears the
// connection down and returns ErrCommunicationFailed.
func (c *Conn) SendNotification(method string, params any) error {
	if !c.Alive() {
		return ErrConnectionLost
	}
	n, err := newNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.writeMessage(n); err != nil {
		werr := fmt.Errorf("%w: %s: %v", ErrCommunicationFailed, method, err)
		c.teardown(werr)
		return werr
	}
	return nil
}

// allocate registers a pending slot under the next free id.
func (c *Conn) allocate(method string) (*pendingCall, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return nil, 0, ErrConnectionLost
	}
	id := c.nextID
	c.nextID++
	call := &pendingCall{method: method, ch: make(chan callResult, 1)}
	c.pending[id] = call
	return call, id, nil
}

// register installs a pending slot for a fixed id.
func (c *Conn) register(id int64, method string) (*pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return nil, ErrConnectionLost
	}
	call := &pendingCall{method: method, ch: make(chan callResult, 1)}
	c.pending[id] = call
	return call, nil
}

// forget removes a pending slot that will no longer be awaited.
func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) roundTrip(ctx context.Context, id int64, call *pendingCall, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.exchange(ctx, id, call, params)
	recordRequestMetrics(ctx, call.method, time.Since(start), err == nil)
	return result, err
}

func (c *Conn) exchange(ctx context.Context, id int64, call *pendingCall, params any) (json.RawMessage, error) {
	req, err := newRequest(id, call.method, params)
	if err != nil {
		c.forget(id)
		return nil, err
	}

	if err := c.writeMessage(req); err != nil {
		c.forget(id)
		if !c.Alive() {
			// the write was cut short by teardown
			return nil, ErrConnectionLost
		}
		werr := fmt.Errorf("%w: %s: %v", ErrCommunicationFailed, call.method, err)
		c.teardown(werr)
		return nil, werr
	}

	select {
	case res := <-call.ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, res.resp.Error.serverError(call.method)
		}
		return res.resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// writeMessage frames v and writes it as one unit.
func (c *Conn) writeMessage(v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(frame)
	return err
}

// EnsureOpened makes sure the server has been sent textDocument/didOpen for
// path. The notification is sent at most once per path for the life of the
// connection; concurrent callers for the same path return only after that
// single write has been issued. If sending fails the path is not recorded,
// so a later call retries.
func (c *Conn) EnsureOpened(ctx context.Context, path string) error {
	path = c.absPath(path)

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return ErrConnectionLost
	}
	st, ok := c.opened[path]
	if !ok {
		st = &openState{ready: make(chan struct{})}
		c.opened[path] = st
		c.mu.Unlock()

		err := c.didOpen(path)

		c.mu.Lock()
		if err != nil {
			st.err = err
			if c.opened[path] == st {
				delete(c.opened, path)
			}
		}
		close(st.ready)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	select {
	case <-st.ready:
		return st.err
	case <-c.done:
		return ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) didOpen(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	params := &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        documentURI(path),
			LanguageID: protocol.LanguageIdentifier(c.cfg.LanguageID),
			Version:    1,
			Text:       string(content),
		},
	}
	return c.SendNotification("textDocument/didOpen", params)
}

// Disconnect shuts the server down and releases the connection. The
// shutdown/exit exchange is best effort and bounded by ShutdownTimeout:
// when it does not finish in time (a server that stopped reading, a write
// stuck behind a full pipe) the connection is torn down anyway, which closes
// the pipes, unblocks pending writes and fails every in-flight request with
// ErrConnectionLost. Calling Disconnect on a dead connection is a no-op.
func (c *Conn) Disconnect() error {
	if c.Alive() {
		graceful := make(chan struct{})
		go func() {
			defer close(graceful)
			c.shutdownGracefully()
		}()

		timer := time.NewTimer(c.cfg.ShutdownTimeout)
		select {
		case <-graceful:
		case <-timer.C:
			c.logger.Warn("graceful shutdown timed out", slog.Duration("timeout", c.cfg.ShutdownTimeout))
		}
		timer.Stop()
		c.teardown(errDisconnected)
	}
	c.waitPump(c.cfg.ShutdownTimeout)
	return nil
}

// shutdownGracefully sends shutdown and exit, then waits for the process to
// go away. Every step gives up once the connection is torn down.
func (c *Conn) shutdownGracefully() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	if _, err := c.SendRequest(ctx, "shutdown", nil); err != nil {
		return
	}
	if err := c.SendNotification("exit", nil); err != nil {
		return
	}
	if c.cmd != nil {
		select {
		case <-c.pumpDone:
		case <-ctx.Done():
		}
	}
}

var errDisconnected = errors.New("disconnect requested")

// teardown marks the connection dead exactly once, fails every pending
// request with ErrConnectionLost and releases the process.
func (c *Conn) teardown(reason error) {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.opened = make(map[string]*openState)
	c.mu.Unlock()

	close(c.done)
	for _, call := range pending {
		call.ch <- callResult{err: ErrConnectionLost}
	}

	_ = c.w.Close()
	_ = c.r.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}

	c.logger.Info("language server connection closed",
		slog.String("reason", reason.Error()),
		slog.Int("failed_requests", len(pending)),
	)
}

func (c *Conn) waitPump(timeout time.Duration) {
	select {
	case <-c.pumpDone:
	case <-time.After(timeout):
		c.logger.Warn("reader did not exit in time", slog.Duration("timeout", timeout))
	}
}

// pump reads the server output until it ends, dispatching every payload.
func (c *Conn) pump() {
	defer close(c.pumpDone)

	var framer Framer
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			payloads, ferr := framer.Feed(buf[:n])
			if ferr != nil {
				c.logger.Warn("discarded malformed frame", slog.String("error", ferr.Error()))
			}
			for _, p := range payloads {
				c.dispatch(p)
			}
		}
		if err != nil {
			c.teardown(fmt.Errorf("read: %w", err))
			break
		}
	}

	if c.cmd != nil {
		if err := c.cmd.Wait(); err != nil {
			c.logger.Debug("language server exited", slog.String("status", err.Error()))
		}
	}
}

func (c *Conn) dispatch(payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		c.logger.Warn("dropped undecodable message", slog.String("error", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *Response:
		c.resolve(m)
	case *Request:
		go c.answer(m)
	case *Notification:
		c.logger.Debug("server notification", slog.String("method", m.Method))
	}
}

// resolve hands a response to its waiting request. Responses for unknown
// or abandoned ids are dropped.
func (c *Conn) resolve(resp *Response) {
	id, ok := resp.NumericID()
	if !ok {
		c.logger.Warn("dropped response with non-numeric id", slog.String("id", string(resp.ID)))
		return
	}

	c.mu.Lock()
	call, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !found {
		c.logger.Debug("dropped response for unknown request", slog.Int64("id", id))
		return
	}
	call.ch <- callResult{resp: resp}
}

// answer replies to a server-initiated request so the server never blocks
// waiting on the client.
func (c *Conn) answer(req *Request) {
	resp := &Response{JSONRPC: jsonrpcVersion, ID: req.ID}

	switch req.Method {
	case "client/registerCapability", "client/unregisterCapability", "window/workDoneProgress/create":
		resp.Result = json.RawMessage("null")
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(req.Params, &params)
		nulls := make([]any, len(params.Items))
		raw, _ := json.Marshal(nulls)
		resp.Result = raw
	default:
		resp.Error = &ResponseError{
			Code:    CodeMethodNotFound,
			Message: "method not supported by client: " + req.Method,
		}
	}

	if err := c.writeMessage(resp); err != nil {
		c.logger.Debug("failed to answer server request",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
	}
}

// Alive reports whether the connection can still be used.
func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

// Done is closed when the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Root returns the project root the server was started for.
func (c *Conn) Root() string {
	return c.root
}

// Pid returns the server process id, or 0 for stream connections.
func (c *Conn) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// IsOpened reports whether didOpen has been issued for path.
func (c *Conn) IsOpened(path string) bool {
	path = c.absPath(path)
	c.mu.Lock()
	st, ok := c.opened[path]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-st.ready:
		return st.err == nil
	default:
		return false
	}
}

// OpenedCount returns the number of documents recorded as opened.
func (c *Conn) OpenedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.opened)
}

// PendingCount returns the number of requests awaiting a response.
func (c *Conn) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) absPath(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.root, path)
	}
	return filepath.Clean(path)
}

// stderrWriter forwards server stderr lines to the debug log.
type stderrWriter struct {
	logger *slog.Logger
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\r\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.logger.Debug("server stderr", slog.String("line", string(bytes.TrimRight(line, "\r"))))
	}
	return len(p), nil
}
