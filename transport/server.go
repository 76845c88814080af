package transport

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
)

// AcceptHandler is invoked for each device connection the server
// accepts. The handler owns the transport and must Close it.
type AcceptHandler func(Transport, *http.Request)

// Server accepts WebSocket connections from edge devices and hands each
// one to an AcceptHandler as a Transport.
type Server struct {
	addr    string
	path    string
	handler AcceptHandler
	logger  *slog.Logger

	ratePerSecond float64
	rateBurst     int
	writeTimeout  time.Duration
	tlsConfig     *tls.Config

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mu         sync.Mutex
	started    bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerRateLimit applies a per-connection inbound envelope limit.
func WithServerRateLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		s.ratePerSecond = perSecond
		s.rateBurst = burst
	}
}

// WithServerWriteTimeout bounds each outbound write.
func WithServerWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.writeTimeout = d }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithServerTLS serves connections over TLS. A nil config keeps the
// listener plain.
func WithServerTLS(cfg *tls.Config) ServerOption {
	return func(s *Server) { s.tlsConfig = cfg }
}

// NewServer creates a server listening on addr, upgrading requests at
// path. Connections are delivered to handler.
func NewServer(addr, path string, handler AcceptHandler, opts ...ServerOption) *Server {
	if path == "" {
		path = "/connect"
	}
	s := &Server{
		addr:    addr,
		path:    path,
		handler: handler,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins accepting connections. It returns once the listener is
// running; serve errors after that are logged.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "transport", "Start", "check started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		opts := []WebSocketOption{WithRateLimit(s.ratePerSecond, s.rateBurst)}
		if s.writeTimeout > 0 {
			opts = append(opts, WithWriteTimeout(s.writeTimeout))
		}
		s.handler(NewWebSocketTransport(conn, opts...), r)
	})

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.tlsConfig,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		var err error
		if s.tlsConfig != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("transport server exited", "addr", s.addr, "error", err)
		}
	}()

	s.started = true
	s.logger.Info("transport server listening", "addr", s.addr, "path", s.path, "tls", s.tlsConfig != nil)
	return nil
}

// Stop shuts the listener down, waiting up to ctx for in-flight
// upgrades to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.httpServer.Shutdown(ctx)
}
