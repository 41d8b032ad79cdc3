package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Server wraps a Handler with an http.Server for lifecycle management.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *log.Logger
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g. "127.0.0.1:8420"). Port 0
	// lets the OS pick a port; see Addr.
	Addr    string
	Handler *Handler
	Logger  *log.Logger

	ReadTimeout  time.Duration // default 30s
	WriteTimeout time.Duration // default none; compositions can run long
}

// NewServer binds the listener so the address is known before Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	return &Server{
		listener: listener,
		logger:   logger,
		server: &http.Server{
			Handler:           cfg.Handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}, nil
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.Addr())
	if err := s.server.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, including an OS-assigned port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
