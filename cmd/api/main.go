package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/civicfix/civicfix-api/api/swagger"
	"github.com/civicfix/civicfix-api/internal/handler"
	"github.com/civicfix/civicfix-api/internal/middleware"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/repository"
	"github.com/civicfix/civicfix-api/internal/service"
	"github.com/civicfix/civicfix-api/pkg/cache"
	"github.com/civicfix/civicfix-api/pkg/config"
	"github.com/civicfix/civicfix-api/pkg/database"
	"github.com/civicfix/civicfix-api/pkg/logger"
	corsmiddleware "github.com/civicfix/civicfix-api/pkg/middleware/cors"
	reqidmiddleware "github.com/civicfix/civicfix-api/pkg/middleware/requestid"
	"github.com/civicfix/civicfix-api/pkg/storage"
)

// @title CivicFix API
// @version 1.0.0
// @description Civic issue reporting and resolution backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API stays up without Redis; reads just skip the cache.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	issueRepo := repository.NewIssueRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	actionRepo := repository.NewGovernmentActionRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, 2*time.Minute, logr, redisClient != nil)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	signer := storage.NewMediaURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)

	userSvc := service.NewUserService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.Issuer, logr)
	escalationSvc := service.NewEscalationService(escalationRepo, issueRepo, notificationSvc, metrics,
		cfg.Escalation.NonVerifiedThreshold, cfg.Escalation.LowTrustThreshold, logr)
	lifecycleSvc := service.NewLifecycleService(issueRepo, actionRepo, notificationSvc, escalationSvc, cacheSvc, metrics, logr)
	issueSvc := service.NewIssueService(issueRepo, timelineRepo, cacheSvc, signer, validate, cfg.Media.MaxURLsPerIssue, logr)
	verificationSvc := service.NewVerificationService(verificationRepo, issueRepo, lifecycleSvc, escalationSvc,
		notificationSvc, cacheSvc, validate, logr)
	interactionSvc := service.NewInteractionService(interactionRepo, issueRepo, notificationSvc, cacheSvc, validate, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metrics, cfg.Analytics.CacheTTL, logr)

	dispatcher := service.NewNotificationDispatcher(notificationRepo, nil, service.DispatcherConfig{
		PollInterval: cfg.Notifications.PollInterval,
		BatchSize:    cfg.Notifications.BatchSize,
		Workers:      cfg.Notifications.WorkerConcurrency,
		MaxRetries:   cfg.Notifications.WorkerRetries,
	}, logr)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	if cfg.Notifications.DispatchEnabled {
		dispatcher.Start(dispatchCtx)
	}

	issueHandler := handler.NewIssueHandler(issueSvc, lifecycleSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc)
	escalationHandler := handler.NewEscalationHandler(escalationSvc)
	interactionHandler := handler.NewInteractionHandler(interactionSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	authHandler := handler.NewAuthHandler(userSvc)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public reads.
	api.GET("/issues", issueHandler.List)
	api.GET("/issues/categories", issueHandler.Categories)
	api.GET("/issues/:id", issueHandler.Get)
	api.GET("/issues/:id/timeline", issueHandler.Timeline)
	api.GET("/analytics/summary", analyticsHandler.Summary)

	// AI verification service, authenticated by shared API key.
	svcGroup := api.Group("", middleware.ServiceKey(cfg.Auth.ServiceAPIKey))
	svcGroup.POST("/issues/:id/verifications/ai", verificationHandler.RecordAI)

	authed := api.Group("", middleware.Auth(userSvc))
	{
		authed.POST("/auth/sync", authHandler.Sync)
		authed.GET("/auth/me", authHandler.Me)

		authed.POST("/issues", middleware.RequireRoles(models.RoleCitizen), issueHandler.Create)
		authed.PATCH("/issues/:id/status", issueHandler.UpdateStatus)
		authed.POST("/issues/:id/media-token", issueHandler.MediaToken)

		authed.POST("/issues/:id/upvote", interactionHandler.ToggleUpvote)
		authed.POST("/issues/:id/comments", interactionHandler.AddComment)
		authed.GET("/issues/:id/comments", interactionHandler.ListComments)
		authed.DELETE("/comments/:id", interactionHandler.DeleteComment)

		authed.POST("/issues/:id/verifications/citizen", middleware.RequireRoles(models.RoleCitizen), verificationHandler.RecordCitizen)
		authed.GET("/issues/:id/verifications", verificationHandler.ListCitizen)

		authed.POST("/issues/:id/actions", middleware.RequireRoles(models.RoleGovernment), issueHandler.RecordAction)
		authed.GET("/issues/:id/actions", issueHandler.ListActions)

		authed.GET("/notifications", notificationHandler.List)
		authed.PATCH("/notifications/:id/read", notificationHandler.MarkRead)

		admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/escalations", escalationHandler.List)
			admin.GET("/escalations/:id", escalationHandler.Get)
			admin.PATCH("/escalations/:id", escalationHandler.Review)
			admin.PUT("/users/:id/role", authHandler.UpdateRole)
			admin.GET("/analytics/system", analyticsHandler.System)
			admin.GET("/analytics/heatmap", analyticsHandler.Heatmap)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown", "error", err)
	}

	stopDispatch()
	if cfg.Notifications.DispatchEnabled {
		dispatcher.Stop()
	}
}
