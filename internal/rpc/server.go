// Package rpc provides the HTTP server exposing the durable core.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/orchestrator"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/tool"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: events.sync holds connections open
	}
}

// Server binds the durable core onto an HTTP transport: a method
// Registry every chi route and the generic /rpc endpoint dispatch
// through.
type Server struct {
	config *Config
	router *chi.Mux
	httpSrv *http.Server

	orchestrator *orchestrator.Service
	events       *eventstore.Store
	tasks        *taskstore.Store
	guardrails   *guardrail.Engine
	providers    *provider.Registry
	agents       *agent.Registry
	hub          *broadcast.Hub

	registry *Registry
}

// New wires a Server against the durable core and binds its routes.
func New(cfg *Config, events *eventstore.Store, tasks *taskstore.Store, guardrails *guardrail.Engine, providers *provider.Registry, agents *agent.Registry, tools *tool.Registry, hub *broadcast.Hub, workDir string) *Server {
	s := &Server{
		config:       cfg,
		router:       chi.NewRouter(),
		orchestrator: orchestrator.NewService(events, tasks, tools, providers, guardrails, hub, workDir),
		events:       events,
		tasks:        tasks,
		guardrails:   guardrails,
		providers:    providers,
		agents:       agents,
		hub:          hub,
		registry:     NewRegistry(),
	}

	s.registerMethods()
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// registerMethods binds every dot-separated method name onto its Handler.
// This is the single source of truth for the surface spec §6.4 documents;
// routes.go only decides how each method is *reached* over HTTP.
func (s *Server) registerMethods() {
	s.registry.Register("session.create", s.handleSessionCreate)
	s.registry.Register("session.resume", s.handleSessionResume)
	s.registry.Register("session.list", s.handleSessionList)
	s.registry.Register("session.delete", s.handleSessionDelete)
	s.registry.Register("session.archive", s.handleSessionArchive)
	s.registry.Register("session.unarchive", s.handleSessionUnarchive)
	s.registry.Register("session.fork", s.handleSessionFork)
	s.registry.Register("session.getHead", s.handleSessionGetHead)
	s.registry.Register("session.getState", s.handleSessionGetState)
	s.registry.Register("session.getHistory", s.handleSessionGetHistory)

	s.registry.Register("agent.message", s.handleAgentMessage)
	s.registry.Register("agent.abort", s.handleAgentAbort)
	s.registry.Register("agent.state", s.handleAgentState)

	s.registry.Register("events.list", s.handleEventsList)
	s.registry.Register("events.sync", s.handleEventsSync)

	s.registry.Register("model.list", s.handleModelList)
	s.registry.Register("model.switch", s.handleModelSwitch)
	s.registry.Register("skill.list", s.handleSkillList)
	s.registry.Register("health", s.handleHealth)
}

// setupMiddleware configures the chi middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Use(s.instanceContext)
}

type contextKey string

const contextKeyDirectory contextKey = "directory"

// instanceContext injects the active working directory into the request
// context, the way the teacher's per-instance routing worked, generalized
// from a single-instance server to one serving many workspaces.
func (s *Server) instanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("directory")
		if dir == "" {
			dir = s.config.Directory
		}
		ctx := context.WithValue(r.Context(), contextKeyDirectory, dir)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getDirectory(ctx context.Context) string {
	if dir, ok := ctx.Value(contextKeyDirectory).(string); ok {
		return dir
	}
	return ""
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

// Registry returns the method registry for direct (non-HTTP) dispatch,
// e.g. from tests.
func (s *Server) Registry() *Registry { return s.registry }
