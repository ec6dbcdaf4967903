package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/equiflux/node/internal/consensus"
)

// Config holds HTTP server configuration
type Config struct {
	Address      string        `json:"address"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server exposes the node's read-only query surface over HTTP
type Server struct {
	config  *Config
	engine  *consensus.Engine
	store   consensus.BlockStore
	mempool consensus.Mempool
	server  *http.Server
}

// New creates the query server
func New(config *Config, engine *consensus.Engine, store consensus.BlockStore, mempool consensus.Mempool) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		config:  config,
		engine:  engine,
		store:   store,
		mempool: mempool,
	}
}

// Start begins serving; non-blocking
func (s *Server) Start() error {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/{height:[0-9]+}", s.handleBlockByHeight).Methods(http.MethodGet)
	v1.HandleFunc("/blocks/hash/{hash}", s.handleBlockByHash).Methods(http.MethodGet)
	v1.HandleFunc("/mempool", s.handleMempool).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      handlers.LoggingHandler(os.Stdout, corsHandler.Handler(router)),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "query server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
