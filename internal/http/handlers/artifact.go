package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/http/response"
	"github.com/introspecthq/agentlens-backend/internal/lifecycle"
	"github.com/introspecthq/agentlens-backend/internal/services"
)

type ArtifactHandler struct {
	artifacts services.ArtifactService
}

func NewArtifactHandler(artifacts services.ArtifactService) *ArtifactHandler {
	return &ArtifactHandler{artifacts: artifacts}
}

func errInvalidStatus(raw string) error {
	return fmt.Errorf("unknown rotation status %q", raw)
}

// GET /api/artifacts/:kind
func (h *ArtifactHandler) ListArtifacts(c *gin.Context) {
	kind := domain.ArtifactKind(c.Param("kind"))

	var status *domain.RotationStatus
	if raw, ok := c.GetQuery("status"); ok {
		st := domain.RotationStatus(raw)
		if raw == "current" {
			st = domain.RotationCurrent
		}
		if !st.Valid() {
			response.RespondError(c, http.StatusBadRequest, "invalid_status", errInvalidStatus(raw))
			return
		}
		status = &st
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}

	items, err := h.artifacts.List(c.Request.Context(), kind, c.Query("owner"), status, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"artifacts": items})
}

// DELETE /api/artifacts/:kind/:id
func (h *ArtifactHandler) DeleteArtifact(c *gin.Context) {
	kind := domain.ArtifactKind(c.Param("kind"))
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_artifact_id", err)
		return
	}
	if err := h.artifacts.Delete(c.Request.Context(), kind, id); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// PATCH /api/artifacts/:kind/:id/status
func (h *ArtifactHandler) SetArtifactStatus(c *gin.Context) {
	kind := domain.ArtifactKind(c.Param("kind"))
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_artifact_id", err)
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	status := domain.RotationStatus(req.Status)
	if req.Status == "current" {
		status = domain.RotationCurrent
	}
	if err := h.artifacts.SetStatus(c.Request.Context(), kind, id, status); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"updated": true})
}

type rotateRequest struct {
	Scope string `json:"scope"`
}

func (r rotateRequest) scope() lifecycle.Scope {
	if r.Scope == "" {
		return lifecycle.ScopeAffected
	}
	return lifecycle.Scope(r.Scope)
}

// POST /api/artifacts/:kind/promote
func (h *ArtifactHandler) PromoteAll(c *gin.Context) {
	kind := domain.ArtifactKind(c.Param("kind"))
	var req rotateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}
	result, err := h.artifacts.PromoteAll(c.Request.Context(), kind, req.scope())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}

// POST /api/artifacts/:kind/restore
func (h *ArtifactHandler) RestoreAll(c *gin.Context) {
	kind := domain.ArtifactKind(c.Param("kind"))
	var req rotateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}
	result, err := h.artifacts.RestoreAll(c.Request.Context(), kind, req.scope())
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}
