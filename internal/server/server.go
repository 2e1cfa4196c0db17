// Package server owns the HTTP listener, the active backend reference, and
// the lifecycle around both: initialized → listening → stopped, with live
// backend reconfiguration in between.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ephram/relay/internal/analytics"
	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/internal/server/validator"
	"github.com/ephram/relay/pkg/api"
)

const serviceName = "relay"

type state int

const (
	stateInitialized state = iota
	stateListening
	stateStopped
)

// activeBackend couples the backend name to its provider instance so both
// are swapped in one atomic store. Providers are immutable, so a request
// observes either the old or the new backend in its entirety.
type activeBackend struct {
	name     string
	provider llm.Provider
}

type Server struct {
	engine    *gin.Engine
	logger    *zap.Logger
	factory   *llm.ProviderFactory
	workspace string
	analytics analytics.Service
	version   string

	cfg    atomic.Pointer[config.Config]
	active atomic.Pointer[activeBackend]

	mu      sync.Mutex // guards lifecycle transitions
	st      state
	httpSrv *http.Server
	ln      net.Listener
	port    int
}

type Option func(*Server)

// WithAnalytics enables the usage recorder and the /v1/usage endpoint.
func WithAnalytics(svc analytics.Service) Option {
	return func(s *Server) { s.analytics = svc }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New validates nothing itself: cfg is expected to come out of config.Load.
// It constructs the active provider and registers all routes; the listener
// is not bound until Start.
func New(cfg *config.Config, workspaceDir string, logger *zap.Logger, opts ...Option) (*Server, error) {
	if os.Getenv("RELAY_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Init()

	s := &Server{
		logger:    logger,
		factory:   llm.NewProviderFactory(),
		workspace: workspaceDir,
		version:   "dev",
		st:        stateInitialized,
	}
	for _, opt := range opts {
		opt(s)
	}

	provider, err := s.factory.Create(cfg.Backend, cfg.Backends[cfg.Backend])
	if err != nil {
		return nil, err
	}
	s.cfg.Store(cfg)
	s.active.Store(&activeBackend{name: cfg.Backend, provider: provider})

	engine := gin.New()
	engine.Use(gin.Recovery())
	s.engine = engine
	s.setupRoutes()

	return s, nil
}

// ActiveBackend returns the backend currently serving requests.
func (s *Server) ActiveBackend() (string, llm.Provider) {
	ab := s.active.Load()
	return ab.name, ab.provider
}

// Port returns the bound listen port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listen port — resolving "auto" by scanning the fixed
// range — and serves in the background. It returns the bound port and the
// base URL clients should use.
func (s *Server) Start() (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.st {
	case stateListening:
		return 0, "", fmt.Errorf("server already started")
	case stateStopped:
		return 0, "", fmt.Errorf("server stopped")
	}

	ln, port, err := s.listen()
	if err != nil {
		return 0, "", err
	}

	s.ln = ln
	s.port = port
	s.httpSrv = &http.Server{Handler: s.engine}
	s.st = stateListening

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	host := s.cfg.Load().Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	baseURL := fmt.Sprintf("http://%s:%d", host, port)
	name, _ := s.ActiveBackend()
	s.logger.Info("server listening",
		zap.Int("port", port),
		zap.String("backend", name),
		zap.String("url", baseURL),
	)

	return port, baseURL, nil
}

func (s *Server) listen() (net.Listener, int, error) {
	cfg := s.cfg.Load()

	// Empty host binds all interfaces.
	if cfg.Port == "" || cfg.Port == config.AutoPort {
		for port := config.PortRangeStart; port <= config.PortRangeEnd; port++ {
			ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, port))
			if err == nil {
				return ln, port, nil
			}
		}
		return nil, 0, fmt.Errorf("no free port in range %d-%d", config.PortRangeStart, config.PortRangeEnd)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, cfg.Port))
	if err != nil {
		return nil, 0, fmt.Errorf("binding port %s: %w", cfg.Port, err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}

// Stop closes the listener and drains in-flight requests. Safe to call on a
// server that was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st != stateListening {
		s.st = stateStopped
		return nil
	}

	s.st = stateStopped
	return s.httpSrv.Shutdown(ctx)
}

// Reload re-runs the configuration loader and re-derives the active backend
// without touching the listener. Requests already in flight finish on the
// old provider instance; only subsequent requests see the new one.
func (s *Server) Reload() error {
	cfg, err := config.Load(s.workspace)
	if err != nil {
		return err
	}

	provider, err := s.factory.Create(cfg.Backend, cfg.Backends[cfg.Backend])
	if err != nil {
		return err
	}

	s.cfg.Store(cfg)
	s.active.Store(&activeBackend{name: cfg.Backend, provider: provider})
	s.logger.Info("configuration reloaded", zap.String("backend", cfg.Backend))
	return nil
}

// SwitchBackend activates another backend from the current configuration.
func (s *Server) SwitchBackend(name string) error {
	cfg := s.cfg.Load()

	bc, ok := cfg.Backends[name]
	if !ok {
		return api.ConfigError(fmt.Sprintf("backend %q is not defined in backends", name))
	}

	provider, err := s.factory.Create(name, bc)
	if err != nil {
		return err
	}

	next := cfg.Clone()
	next.Backend = name
	s.cfg.Store(next)
	s.active.Store(&activeBackend{name: name, provider: provider})
	s.logger.Info("backend switched", zap.String("backend", name))
	return nil
}
