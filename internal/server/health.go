package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

const healthStatusHealthy = "healthy"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: s.opts.Service,
		Status:  healthStatusHealthy,
		Version: s.opts.Version,
	})
}
