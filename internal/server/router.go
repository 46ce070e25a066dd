package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/introspecthq/agentlens-backend/internal/http/handlers"
)

type RouterConfig struct {
	Mode           string
	AllowedOrigins []string

	HealthHandler    *handlers.HealthHandler
	OperationHandler *handlers.OperationHandler
	ArtifactHandler  *handlers.ArtifactHandler
	SkillHandler     *handlers.SkillHandler
	IngestHandler    *handlers.IngestHandler
	EventsHandler    *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(otelgin.Middleware("agentlens-backend"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if cfg.HealthHandler != nil {
		router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := router.Group("/api")
	{
		if cfg.IngestHandler != nil {
			api.POST("/interactions", cfg.IngestHandler.RecordInteractions)
			api.POST("/feedback", cfg.IngestHandler.RecordFeedback)
		}

		if cfg.OperationHandler != nil {
			api.POST("/operations/:kind/start", cfg.OperationHandler.StartOperation)
			api.GET("/operations/:kind", cfg.OperationHandler.GetOperation)
			api.POST("/operations/:kind/cancel", cfg.OperationHandler.CancelOperation)
		}

		if cfg.ArtifactHandler != nil {
			api.GET("/artifacts/:kind", cfg.ArtifactHandler.ListArtifacts)
			api.DELETE("/artifacts/:kind/:id", cfg.ArtifactHandler.DeleteArtifact)
			api.PATCH("/artifacts/:kind/:id/status", cfg.ArtifactHandler.SetArtifactStatus)
			api.POST("/artifacts/:kind/promote", cfg.ArtifactHandler.PromoteAll)
			api.POST("/artifacts/:kind/restore", cfg.ArtifactHandler.RestoreAll)
		}

		if cfg.SkillHandler != nil {
			api.GET("/skills", cfg.SkillHandler.ListSkills)
			api.GET("/skills/:id", cfg.SkillHandler.GetSkill)
			api.PATCH("/skills/:id/status", cfg.SkillHandler.UpdateSkillStatus)
			api.DELETE("/skills/:id", cfg.SkillHandler.DeleteSkill)
		}

		if cfg.EventsHandler != nil {
			api.GET("/events/stream", cfg.EventsHandler.Stream)
		}
	}

	return router
}
