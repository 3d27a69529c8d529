// Package api serves the remote store over HTTP.
//
// Routes, all under /api:
//
//	GET    /folders?since=            folders modified after since
//	POST   /folders                   create (duplicate id is a no-op) -> 201 {id}
//	PUT    /folders/:id               replace the given fields -> {id}
//	DELETE /folders/:id               delete folder and its notes -> {id}
//	GET    /notes?since=&folderId=    notes
//	POST   /notes, PUT /notes/:id, DELETE /notes/:id
//	GET    /search?q=                 note search with snippets
//	GET    /status, /health, /metrics
//	GET    /ws                        change notifications
//
// A request carrying X-API-Key must carry the configured key. Requests
// without the header are let through.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slatenotes/slate/internal/remotedb"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address (default ":8080").
	Addr string
	// APIKey is the shared secret. Empty disables the check.
	APIKey string
	// Logger defaults to a stderr logger prefixed "[api] ".
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Addr: ":8080"}
}

// Server is the remote store's HTTP front end.
type Server struct {
	db     *remotedb.DB
	hub    *Hub
	engine *gin.Engine
	logger *log.Logger
	addr   string

	keyMu  sync.RWMutex
	apiKey string

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New builds the server. db may be nil, in which case the status route
// reports dbConfigured=false and data routes answer 503.
func New(db *remotedb.DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	addr := config.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		db:     db,
		hub:    NewHub(logger),
		logger: logger,
		addr:   addr,
		apiKey: config.APIKey,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the change hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetAPIKey replaces the shared secret.
func (s *Server) SetAPIKey(key string) {
	s.keyMu.Lock()
	s.apiKey = key
	s.keyMu.Unlock()
}

func (s *Server) currentKey() string {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.apiKey
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects subscribers and shuts the listener down gracefully.
func (s *Server) Stop() error {
	s.hub.Close()
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	s.logger.Println("Server stopped")
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
