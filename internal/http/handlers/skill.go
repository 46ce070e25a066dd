package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/http/response"
	"github.com/introspecthq/agentlens-backend/internal/services"
)

type SkillHandler struct {
	skills services.SkillService
}

func NewSkillHandler(skills services.SkillService) *SkillHandler {
	return &SkillHandler{skills: skills}
}

// GET /api/skills
func (h *SkillHandler) ListSkills(c *gin.Context) {
	var status *domain.SkillStatus
	if raw, ok := c.GetQuery("status"); ok {
		st := domain.SkillStatus(raw)
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
	skills, err := h.skills.List(c.Request.Context(), c.Query("owner"), status, limit)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skills": skills})
}

// GET /api/skills/:id
func (h *SkillHandler) GetSkill(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_skill_id", err)
		return
	}
	skill, err := h.skills.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill": skill})
}

type skillStatusRequest struct {
	Status domain.SkillStatus `json:"status"`
}

// PATCH /api/skills/:id/status
func (h *SkillHandler) UpdateSkillStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_skill_id", err)
		return
	}
	var req skillStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	skill, err := h.skills.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill": skill})
}

// DELETE /api/skills/:id
func (h *SkillHandler) DeleteSkill(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_skill_id", err)
		return
	}
	if err := h.skills.Delete(c.Request.Context(), id); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
