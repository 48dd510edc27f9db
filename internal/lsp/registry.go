package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RegistryConfig configures the connection registry.
type RegistryConfig struct {
	// Conn is used for every server the registry launches.
	Conn Config

	// RequireAny lists root entries of which at least one must exist
	// (e.g. go.mod). Empty means no requirement.
	RequireAny []string

	// RejectAny lists glob patterns; a root entry matching any of them marks
	// the project as unsupported (e.g. *.xcodeproj).
	RejectAny []string
}

// DefaultRegistryConfig returns the registry configuration for Go projects.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Conn:       DefaultConfig(),
		RequireAny: []string{"go.mod", "go.work"},
		RejectAny:  []string{"*.xcodeproj"},
	}
}

// Dialer establishes a ready connection for a project root.
type Dialer func(ctx context.Context, root string, cfg Config) (*Conn, error)

// Policy decides whether a server may be launched for a root. A non-nil
// error explains why not.
type Policy func(root string) error

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithDialer replaces Connect as the way connections are established.
func WithDialer(d Dialer) RegistryOption {
	return func(r *Registry) {
		r.dial = d
	}
}

// WithPolicy replaces the default pre-connect check.
func WithPolicy(p Policy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

// Registry holds at most one live connection per project root.
//
// Connecting and disconnecting the same project is serialized by a
// per-project mutex, so two callers never launch two servers for one root.
// Different projects connect in parallel. A connection that died is
// replaced transparently on the next TryConnect.
type Registry struct {
	cfg    RegistryConfig
	dial   Dialer
	policy Policy
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[string]*Conn
	locks  map[string]*sync.Mutex
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:    cfg,
		dial:   Connect,
		logger: slog.Default().With(slog.String("component", "lsp-registry")),
		conns:  make(map[string]*Conn),
		locks:  make(map[string]*sync.Mutex),
	}
	r.policy = r.Check
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// projectLock returns the mutex serializing lifecycle changes for root.
func (r *Registry) projectLock(root string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[root]
	if !ok {
		l = &sync.Mutex{}
		r.locks[root] = l
	}
	return l
}

// TryConnect makes sure a live connection exists for root. It returns true
// when one already existed or was established now, and false when the
// project is not eligible or the server could not be started. Failures are
// logged, never returned.
func (r *Registry) TryConnect(ctx context.Context, root string) bool {
	root = normalizeRoot(root)
	lock := r.projectLock(root)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("language server not available",
			slog.String("root", root),
			slog.String("reason", ErrRegistryClosed.Error()),
		)
		return false
	}
	existing := r.conns[root]
	r.mu.Unlock()

	if existing != nil {
		if existing.Alive() {
			return true
		}
		r.logger.Info("replacing dead language server connection", slog.String("root", root))
		r.remove(root, existing)
		_ = existing.Disconnect()
	}

	if err := r.policy(root); err != nil {
		r.logger.Info("language server not available",
			slog.String("root", root),
			slog.String("reason", err.Error()),
		)
		return false
	}

	conn, err := r.dial(ctx, root, r.cfg.Conn)
	if err != nil {
		r.logger.Warn("failed to connect language server",
			slog.String("root", root),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Info("dropping connection made during close",
			slog.String("root", root),
			slog.String("reason", ErrRegistryClosed.Error()),
		)
		_ = conn.Disconnect()
		return false
	}
	r.conns[root] = conn
	r.mu.Unlock()
	return true
}

// Get returns the live connection for root, or nil.
func (r *Registry) Get(root string) *Conn {
	root = normalizeRoot(root)
	r.mu.Lock()
	conn := r.conns[root]
	r.mu.Unlock()
	if conn == nil || !conn.Alive() {
		return nil
	}
	return conn
}

// IsAvailable reports whether a live connection exists for root.
func (r *Registry) IsAvailable(root string) bool {
	return r.Get(root) != nil
}

// Disconnect closes and forgets the connection for root, if any.
func (r *Registry) Disconnect(root string) {
	root = normalizeRoot(root)
	lock := r.projectLock(root)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	conn := r.conns[root]
	delete(r.conns, root)
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Disconnect()
	}
}

// DisconnectAll closes every connection. The registry stays usable.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	roots := make([]string, 0, len(r.conns))
	for root := range r.conns {
		roots = append(roots, root)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, root := range roots {
		g.Go(func() error {
			r.Disconnect(root)
			return nil
		})
	}
	_ = g.Wait()
}

// Close disconnects everything and refuses further connections.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.DisconnectAll()
}

// Projects returns the roots that currently have a live connection, sorted.
func (r *Registry) Projects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.conns))
	for root, conn := range r.conns {
		if conn.Alive() {
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)
	return roots
}

// Check is the default policy: root must be a directory without rejected
// markers, with a required marker when configured, and the server command
// must be on PATH. A closed registry fails every check with
// ErrRegistryClosed.
func (r *Registry) Check(root string) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRegistryClosed
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDirectory, err)
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read project root: %w", err)
	}
	for _, e := range entries {
		for _, pattern := range r.cfg.RejectAny {
			if ok, _ := filepath.Match(pattern, e.Name()); ok {
				return fmt.Errorf("%w: found %s", ErrIncompatibleProject, e.Name())
			}
		}
	}

	if len(r.cfg.RequireAny) > 0 {
		found := false
		for _, marker := range r.cfg.RequireAny {
			if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: expected one of %v", ErrNoProjectMarker, r.cfg.RequireAny)
		}
	}

	command := r.cfg.Conn.withDefaults().Command
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%w: %s", ErrServerNotFound, command)
	}
	return nil
}

// remove deletes conn from the map if it is still the entry for root.
func (r *Registry) remove(root string, conn *Conn) {
	r.mu.Lock()
	if r.conns[root] == conn {
		delete(r.conns, root)
	}
	r.mu.Unlock()
}

func normalizeRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}
