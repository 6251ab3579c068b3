package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/Siasom1/gorrillazz-devnet/log"
	"github.com/Siasom1/gorrillazz-devnet/metrics"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the node's HTTP listener: JSON-RPC on /, websocket JSON-RPC
// on /ws, plus /health, /metrics and whatever is mounted.
type Server struct {
	cfg     Config
	api     *API
	handler *Handler
	hub     *WebSocketHub
	router  chi.Router
	logger  *log.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewServer(cfg Config, api *API, feed Feed, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	handler := NewHandler(logger)
	handler.RegisterMethods(api.Methods())

	s := &Server{
		cfg:     cfg,
		api:     api,
		handler: handler,
		hub:     NewWebSocketHub(handler, feed, logger),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsHandler())

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", s.hub.HandleWS)

	r.Post("/", handler.ServeHTTP)
	r.Options("/", handler.ServeHTTP)
	r.Get("/", s.root)

	s.router = r
	return s
}

// corsHandler lets browser dapps on any origin reach the node.
func corsHandler() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

// Mount attaches h under pattern, e.g. the explorer routes.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Methods() []string { return s.handler.RegisteredMethods() }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.New("rpc server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("rpc listen on %s: %w", s.cfg.Addr, err)
	}
	if !isLoopback(ln.Addr()) {
		s.logger.Warn("RPC listener is reachable from the network and has no authentication", "addr", ln.Addr().String())
	}

	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("RPC server error", "error", err)
		}
	}(s.srv, s.done)

	s.logger.Info("RPC server listening", "addr", ln.Addr().String(), "methods", len(s.handler.RegisteredMethods()))
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes websocket clients and shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.hub.Close()
	err := srv.Shutdown(ctx)
	<-done
	s.logger.Info("RPC server stopped")
	return err
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	head := s.api.b.Chain.CurrentBlock()
	pending, queued, inflight := s.api.b.Pool.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"head":      head.Number(),
		"headHash":  head.Hash(),
		"pending":   pending + inflight,
		"queued":    queued,
		"wsClients": s.hub.Clients(),
	})
}

// root upgrades websocket requests on / as well, like geth and Hardhat.
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.hub.HandleWS(w, r)
		return
	}
	s.handler.ServeHTTP(w, r)
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	return tcp.IP.IsLoopback()
}
