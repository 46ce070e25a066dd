package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/http/response"
	"github.com/introspecthq/agentlens-backend/internal/operations"
	"github.com/introspecthq/agentlens-backend/internal/services"
)

type OperationHandler struct {
	operations services.OperationService
}

func NewOperationHandler(ops services.OperationService) *OperationHandler {
	return &OperationHandler{operations: ops}
}

type startOperationRequest struct {
	Filters operations.Filters `json:"filters"`
}

// POST /api/operations/:kind/start
func (h *OperationHandler) StartOperation(c *gin.Context) {
	kind := domain.OperationKind(c.Param("kind"))

	var req startOperationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, 400, "invalid_request_body", err)
			return
		}
	}

	st, err := h.operations.Start(c.Request.Context(), kind, req.Filters)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"operation": st})
}

// GET /api/operations/:kind
func (h *OperationHandler) GetOperation(c *gin.Context) {
	kind := domain.OperationKind(c.Param("kind"))
	st, err := h.operations.Status(c.Request.Context(), kind)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"operation": st})
}

// POST /api/operations/:kind/cancel
func (h *OperationHandler) CancelOperation(c *gin.Context) {
	kind := domain.OperationKind(c.Param("kind"))
	if err := h.operations.Cancel(c.Request.Context(), kind); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"cancel_requested": true})
}
