package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/http/response"
	"github.com/introspecthq/agentlens-backend/internal/services"
)

type IngestHandler struct {
	ingestion services.IngestionService
}

func NewIngestHandler(ingestion services.IngestionService) *IngestHandler {
	return &IngestHandler{ingestion: ingestion}
}

type interactionInput struct {
	OwnerKey     string          `json:"owner_key"`
	AgentVersion string          `json:"agent_version"`
	Source       string          `json:"source"`
	Payload      json.RawMessage `json:"payload"`
}

type recordInteractionsRequest struct {
	Events []interactionInput `json:"events"`
}

// POST /api/interactions
func (h *IngestHandler) RecordInteractions(c *gin.Context) {
	var req recordInteractionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	events := make([]*domain.InteractionEvent, 0, len(req.Events))
	for _, in := range req.Events {
		events = append(events, &domain.InteractionEvent{
			OwnerKey:     in.OwnerKey,
			AgentVersion: in.AgentVersion,
			Source:       in.Source,
			Payload:      []byte(in.Payload),
		})
	}
	if err := h.ingestion.RecordInteractions(c.Request.Context(), events); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recorded": len(events)})
}

type feedbackInput struct {
	AgentVersion string          `json:"agent_version"`
	FeedbackName string          `json:"feedback_name"`
	Payload      json.RawMessage `json:"payload"`
}

type recordFeedbackRequest struct {
	Items []feedbackInput `json:"items"`
}

// POST /api/feedback
func (h *IngestHandler) RecordFeedback(c *gin.Context) {
	var req recordFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	items := make([]*domain.RawFeedback, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, &domain.RawFeedback{
			AgentVersion: in.AgentVersion,
			FeedbackName: in.FeedbackName,
			Payload:      []byte(in.Payload),
		})
	}
	aggregated, err := h.ingestion.RecordFeedback(c.Request.Context(), items)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recorded": len(items), "aggregated": aggregated})
}
