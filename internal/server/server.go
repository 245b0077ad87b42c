package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/events"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/util"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Server implements the HTTP API server for the orchestrator
	Server struct {
		engine  *engine.Engine
		hub     *events.Hub
		sockets util.Set[*Client]
		opts    Options
		mu      sync.Mutex
	}

	// Options describe how the server identifies itself and builds the
	// status query URLs it hands out
	Options struct {
		PublicBaseURL string
		Service       string
		Version       string
	}
)

var (
	ErrInvalidJSON   = errors.New("invalid JSON request")
	ErrInternal      = errors.New("internal error")
	ErrInvalidStatus = errors.New("invalid status")
)

// NewServer creates a new HTTP API server
func NewServer(eng *engine.Engine, hub *events.Hub, opts Options) *Server {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Server{
		engine:  eng,
		hub:     hub,
		opts:    opts,
		sockets: util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.GET("/health", s.handleHealth)

	orders := router.Group("/orders")
	{
		orders.POST("", s.startOrder)
		orders.GET("/:instanceId", s.getInstance)
		orders.POST("/:instanceId/cancel", s.cancelInstance)
	}

	router.POST("/text", s.startText)

	workflows := router.Group("/workflows")
	{
		workflows.GET("", s.listWorkflows)
		workflows.POST("/:type", s.startWorkflow)
	}

	instances := router.Group("/instances")
	{
		instances.GET("", s.listInstances)
		instances.GET("/:instanceId", s.getInstance)
		instances.POST("/:instanceId/cancel", s.cancelInstance)
		instances.GET("/:instanceId/ws", s.handleWebSocket)
	}

	return router
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := s.sockets.Values()
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

func (s *Server) statusQueryURL(id api.InstanceID) string {
	return fmt.Sprintf("%s/orders/%s", s.opts.PublicBaseURL, id)
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", msg))
		msg = fmt.Sprintf("%s: %v", ErrInternal, err)
	}
	c.JSON(status, api.ErrorResponse{
		Error:  msg,
		Status: status,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInstanceNotFound),
		errors.Is(err, engine.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInstanceTerminal),
		errors.Is(err, store.ErrInstanceExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
