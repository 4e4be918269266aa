// Package api is the HTTP edge: it accepts answer requests, binds them
// to a conversation thread, and pumps the workflow's event stream out
// as server-sent events.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldworks/answerhub/pkg/events"
)

// Runner executes the workflow for one request. Satisfied by
// *workflow.Engine.
type Runner interface {
	Run(ctx context.Context, threadID, question string, em *events.Emitter) error
}

// HealthChecker reports reachability of a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server hosts the answer and health endpoints.
type Server struct {
	engine Runner
	store  HealthChecker
	router *gin.Engine
}

// NewServer wires the routes.
func NewServer(engine Runner, store HealthChecker) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: engine, store: store, router: gin.New()}
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.handleHealth)
	v1 := s.router.Group("/api/v1")
	v1.POST("/answers", s.handleAnswer)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
