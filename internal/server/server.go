// Package server exposes the download queue over HTTP: a JSON-RPC 2.0
// endpoint, a WebSocket endpoint with push notifications, a byte-range
// file endpoint and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savehere/savehere/internal/metrics"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

// Config holds the server configuration.
type Config struct {
	// Port is the TCP port to listen on.
	Port int
	// ListenAll binds to all interfaces instead of localhost.
	ListenAll bool
	// Version is reported by system.getVersion.
	Version string
}

// Server ties the RPC bridge, the WebSocket endpoint and the file
// endpoint to one http.Server.
type Server struct {
	log      logger.Logger
	cfg      *Config
	rpc      *RPCServer
	notifier *Notifier
	files    *FileHandler
	registry *prometheus.Registry
	server   *http.Server
	mu       sync.Mutex
}

// NewServer wires a server around the given manager. Pass the notifier
// whose Hooks feed the manager so WebSocket clients see queue events; a
// nil notifier gets a fresh, unwired one.
func NewServer(l logger.Logger, m *savelib.Manager, notifier *Notifier, cfg *Config) *Server {
	if notifier == nil {
		notifier = NewNotifier(l)
	}
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	return &Server{
		log:      l,
		cfg:      cfg,
		rpc:      NewRPCServer(l, m, cfg.Version),
		notifier: notifier,
		files:    NewFileHandler(l, m.Fs(), m.BaseDir()),
		registry: reg,
	}
}

// Hooks returns the event sink that forwards queue events to connected
// WebSocket clients.
func (s *Server) Hooks() *savelib.EventHooks {
	return s.notifier.Hooks()
}

func (s *Server) addr() string {
	host := "localhost"
	if s.cfg.ListenAll {
		host = ""
	}
	return fmt.Sprintf("%s:%d", host, s.cfg.Port)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/rpc", s.rpc.Bridge())
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/files/", s.files)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start listens and serves until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.addr(),
		Handler: s.handler(),
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown: %s", err.Error())
		}
	}()

	s.log.Info("listening on %s", s.addr())
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpc.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
