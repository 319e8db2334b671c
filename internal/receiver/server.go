// Package receiver implements the mTLS backup ingestion server: a
// listener that accepts one connection per backup upload, runs each
// through the per-connection state machine in conn.go, and enforces a
// per-peer-IP hourly rate limit across all connections it has handled.
package receiver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/haldane-labs/backupd/internal/logger"
	"github.com/haldane-labs/backupd/internal/metrics"
	"github.com/haldane-labs/backupd/internal/retention"
)

// Config collects everything a Server needs to accept and process
// uploads, independent of how it was loaded (see pkg/config).
type Config struct {
	SocketAddress  string
	TLS            *tls.Config
	BackupsRoot    string
	Limits         Limits
	RetentionLimit retention.Limits
}

// Limits mirrors the subset of the configured limits the connection
// state machine enforces directly; RetentionLimit lives alongside it in
// Config since it keys by cadence rather than being a flat scalar.
type Limits struct {
	MaximumPayloadBytes   uint64
	MaximumBackupsPerHour int
	TimeoutSeconds        int
}

// Server owns the TLS listener, the rate-limit map, and the backups
// root directory for one receiver instance. Every accepted connection
// runs on its own goroutine; the rate-limit map and the retention pass
// are the only state shared across those goroutines, and both are
// guarded by rateMu.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	rateMu sync.Mutex
	marks  map[string][]int64 // peer IP -> unix-nano marks of successful uploads, ascending

	wg sync.WaitGroup
}

// New constructs a Server. cfg.TLS must already have session tickets and
// the session cache disabled (see tlsconf.Server) — the server treats it
// as immutable once ListenAndServe starts, since a *tls.Config shared
// across goroutines must not be mutated after connections begin.
func New(cfg Config, log *slog.Logger, reg *metrics.Registry) *Server {
	if log == nil {
		log = logger.Get()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		marks:   make(map[string][]int64),
	}
}

// ListenAndServe binds the configured socket address, wraps it in TLS,
// and accepts connections until Close is called. Each accepted
// connection is handled on its own goroutine; ListenAndServe itself
// returns nil once Close has stopped the listener, or a non-nil error
// if Accept fails for any other reason.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.SocketAddress)
	if err != nil {
		return fmt.Errorf("receiver: listen %s: %w", s.cfg.SocketAddress, err)
	}
	tlsLn := tls.NewListener(ln, s.cfg.TLS)

	s.mu.Lock()
	s.listener = tlsLn
	s.mu.Unlock()

	s.log.Info("receiver: listening", "address", s.cfg.SocketAddress)

	for {
		conn, err := tlsLn.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed && errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiver: accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Close stops accepting new connections. In-flight connections are left
// to finish or hit their own timeout; Wait blocks until they do.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Wait blocks until every in-flight connection goroutine has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Addr returns the listener's bound address, or "" before ListenAndServe
// has started (used by tests that bind to ":0").
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
