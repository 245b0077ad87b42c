package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows/order"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows/text"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

var nullInput = json.RawMessage("null")

func (s *Server) startOrder(c *gin.Context) {
	s.start(c, order.Type)
}

func (s *Server) startText(c *gin.Context) {
	s.start(c, text.Type)
}

func (s *Server) startWorkflow(c *gin.Context) {
	s.start(c, api.SanitizeID(api.WorkflowType(c.Param("type"))))
}

// start accepts any body. A body that is empty or not JSON starts the
// instance with null input, which the workflow's validator then fails
func (s *Server) start(c *gin.Context, typ api.WorkflowType) {
	input, err := readInput(c)
	if err != nil {
		writeError(c, err)
		return
	}

	id, err := s.engine.StartInstance(c.Request.Context(), typ, input)
	if err != nil && id == "" {
		writeError(c, err)
		return
	}
	if err != nil {
		slog.Warn("Instance created but not dispatched",
			log.InstanceID(id),
			log.Error(err))
	}

	c.JSON(http.StatusAccepted, api.StartedResponse{
		InstanceID:     id,
		Workflow:       typ,
		StatusQueryURL: s.statusQueryURL(id),
	})
}

func (s *Server) getInstance(c *gin.Context) {
	id := instanceParam(c)
	inst, err := s.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewInstanceResponse(inst))
}

func (s *Server) cancelInstance(c *gin.Context) {
	id := instanceParam(c)
	inst, err := s.engine.CancelInstance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewInstanceResponse(inst))
}

func (s *Server) listInstances(c *gin.Context) {
	status := api.Status(c.DefaultQuery("status", string(api.StatusRunning)))
	if !status.IsValid() {
		writeError(c, fmt.Errorf("%w: %s", ErrInvalidStatus, status))
		return
	}

	ids, err := s.engine.ListInstances(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []api.InstanceID{}
	}
	c.JSON(http.StatusOK, api.InstancesListResponse{
		Instances: ids,
		Count:     len(ids),
	})
}

func (s *Server) listWorkflows(c *gin.Context) {
	wfs := s.engine.Workflows()
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: wfs,
		Count:     len(wfs),
	})
}

func readInput(c *gin.Context) (json.RawMessage, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return nullInput, nil
	}
	return data, nil
}

func instanceParam(c *gin.Context) api.InstanceID {
	return api.SanitizeID(api.InstanceID(c.Param("instanceId")))
}
