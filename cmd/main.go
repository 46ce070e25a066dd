package main

import (
	"context"
	"fmt"
	"os"

	"github.com/introspecthq/agentlens-backend/internal/clients/provider"
	"github.com/introspecthq/agentlens-backend/internal/clients/redis"
	"github.com/introspecthq/agentlens-backend/internal/config"
	"github.com/introspecthq/agentlens-backend/internal/data/repos"
	"github.com/introspecthq/agentlens-backend/internal/db"
	"github.com/introspecthq/agentlens-backend/internal/feedback"
	"github.com/introspecthq/agentlens-backend/internal/generation"
	"github.com/introspecthq/agentlens-backend/internal/http/handlers"
	"github.com/introspecthq/agentlens-backend/internal/lifecycle"
	"github.com/introspecthq/agentlens-backend/internal/observability"
	"github.com/introspecthq/agentlens-backend/internal/operations"
	"github.com/introspecthq/agentlens-backend/internal/platform/logger"
	"github.com/introspecthq/agentlens-backend/internal/server"
	"github.com/introspecthq/agentlens-backend/internal/services"
	"github.com/introspecthq/agentlens-backend/internal/skills"
	"github.com/introspecthq/agentlens-backend/internal/sse"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Tracing
	ctx := context.Background()
	if shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "agentlens-backend",
		Environment: cfg.Server.Mode,
	}); shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(cfg.Database.URL, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	profileRepo := repos.NewProfileRepo(thePG, log)
	rawFeedbackRepo := repos.NewRawFeedbackRepo(thePG, log)
	aggregatedFeedbackRepo := repos.NewAggregatedFeedbackRepo(thePG, log)
	skillRepo := repos.NewSkillRepo(thePG, log)
	operationStatusRepo := repos.NewOperationStatusRepo(thePG, log)
	interactionEventRepo := repos.NewInteractionEventRepo(thePG, log)
	aggregationCursorRepo := repos.NewAggregationCursorRepo(thePG, log)

	// SSE + event bus
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewHub(log)
	var eventBus redis.EventBus
	if cfg.Redis.Addr != "" {
		eventBus, err = redis.NewEventBus(cfg.Redis.Addr, cfg.Redis.Channel, log)
		if err != nil {
			log.Warn("Could not init Redis event bus; running without fan-out", "error", err)
			eventBus = nil
		} else {
			if err := eventBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
				log.Warn("Could not start Redis event forwarder", "error", err)
			}
			defer eventBus.Close()
		}
	}
	notifier := services.NewOperationNotifier(sseHub, eventBus, log)

	// Provider
	providerClient, err := provider.NewClient(provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Timeout:    cfg.Provider.Timeout,
		MaxRetries: cfg.Provider.MaxRetries,
	}, log)
	if err != nil {
		log.Error("Could not init provider client", "error", err)
		os.Exit(1)
	}

	// Core components
	rotator := lifecycle.NewRotator(thePG, log)
	runner := generation.NewRunner(log, cfg.Operations.UnitTimeout)
	trigger, err := feedback.NewTrigger(thePG, rawFeedbackRepo, aggregatedFeedbackRepo, aggregationCursorRepo, cfg.Aggregation, log)
	if err != nil {
		log.Error("Could not init aggregation trigger", "error", err)
		os.Exit(1)
	}
	synthesizer := skills.NewSynthesizer(skillRepo, log)
	tracker := operations.NewTracker(ctx, operationStatusRepo, runner, notifier, cfg.Operations.UnitConcurrency, log)

	// Services
	log.Info("Setting up services from main...")
	operationService := services.NewOperationService(
		cfg,
		tracker,
		interactionEventRepo,
		profileRepo,
		rawFeedbackRepo,
		aggregatedFeedbackRepo,
		trigger,
		synthesizer,
		providerClient,
		log,
	)
	artifactService := services.NewArtifactService(rotator, profileRepo, rawFeedbackRepo, aggregatedFeedbackRepo, notifier, log)
	skillService := services.NewSkillService(skillRepo, synthesizer, notifier, log)
	ingestionService := services.NewIngestionService(
		interactionEventRepo,
		rawFeedbackRepo,
		trigger,
		services.SummarizeWithProvider(providerClient),
		log,
	)

	// Handlers
	log.Info("Setting up handlers from main...")
	healthHandler := handlers.NewHealthHandler()
	operationHandler := handlers.NewOperationHandler(operationService)
	artifactHandler := handlers.NewArtifactHandler(artifactService)
	skillHandler := handlers.NewSkillHandler(skillService)
	ingestHandler := handlers.NewIngestHandler(ingestionService)
	eventsHandler := handlers.NewEventsHandler(sseHub)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		Mode:             cfg.Server.Mode,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		HealthHandler:    healthHandler,
		OperationHandler: operationHandler,
		ArtifactHandler:  artifactHandler,
		SkillHandler:     skillHandler,
		IngestHandler:    ingestHandler,
		EventsHandler:    eventsHandler,
	})

	fmt.Printf("Server listening on :%s\n", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Error("Server failed", "error", err)
	}
	tracker.Wait()
}
