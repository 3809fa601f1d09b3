package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classgate/classgate-api/api/swagger"
	"github.com/classgate/classgate-api/internal/handler"
	"github.com/classgate/classgate-api/internal/middleware"
	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/internal/repository"
	"github.com/classgate/classgate-api/internal/service"
	"github.com/classgate/classgate-api/pkg/cache"
	"github.com/classgate/classgate-api/pkg/config"
	"github.com/classgate/classgate-api/pkg/database"
	"github.com/classgate/classgate-api/pkg/jobs"
	"github.com/classgate/classgate-api/pkg/logger"
	corsmiddleware "github.com/classgate/classgate-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classgate/classgate-api/pkg/middleware/requestid"
)

// @title Classgate API
// @version 1.0.0
// @description Class access-control and approval workflow service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, role cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	requestRepo := repository.NewAccessRequestRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	rightsRepo := repository.NewRightsRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	directorySvc := service.NewDirectoryService(directoryRepo, cacheRepo, logr, service.DirectoryConfig{
		FailClosed:   cfg.Directory.FailClosed,
		RoleCacheTTL: cfg.Directory.RoleCacheTTL,
	})
	requestSvc := service.NewAccessRequestService(db, requestRepo, grantRepo, classRepo, directorySvc, validate, logr)
	approvalSvc := service.NewClassApprovalService(classRepo, cfg.Moderation.ReasonCodes, logr)
	rightsSvc := service.NewRightsService(rightsRepo, classRepo, directorySvc, validate, logr)

	notificationSvc := service.NewNotificationService(service.NewLogNotifier(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, cfg.Notifications.Enabled, logr)
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	policySvc := service.NewPolicyService(requestSvc, approvalSvc, rightsSvc, notificationSvc, userRepo, metricsSvc, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "classgate-api",
	})

	exportSvc := service.NewExportService(requestRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	classHandler := handler.NewClassHandler(policySvc, classRepo)
	requestHandler := handler.NewAccessRequestHandler(policySvc, requestSvc, exportSvc)
	directoryHandler := handler.NewDirectoryHandler(directorySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/classes/:id", classHandler.Get)
	authed.GET("/classes/:id/permissions/:userId", classHandler.CheckPermission)
	authed.POST("/classes/:id/self-approve", classHandler.SelfApprove)
	// Creators use self=true to reject their own pending class; the service
	// enforces who may decide either way.
	authed.POST("/classes/:id/reject", classHandler.Reject)

	staff := authed.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleEstablishment))
	staff.POST("/classes/:id/approve", classHandler.Approve)
	staff.DELETE("/classes/:id/users/:userId", classHandler.RevokeGrant)
	staff.POST("/classes/:id/rights", classHandler.AssignRights)
	staff.POST("/classes/:id/moderator", classHandler.AssignModerator)
	staff.DELETE("/classes/:id/moderator", classHandler.RemoveModerator)
	staff.GET("/access-requests", requestHandler.List)
	staff.POST("/access-requests/:id/approve", requestHandler.Approve)
	staff.POST("/access-requests/:id/reject", requestHandler.Reject)
	if cfg.Exports.Enabled {
		staff.GET("/access-requests/export", middleware.Audit(userRepo, models.AuditActionLedgerExport, "access_request"), requestHandler.Export)
	}
	staff.GET("/directory/:id/role", middleware.Audit(userRepo, models.AuditActionDirectoryLookup, "directory_user"), directoryHandler.ResolveRole)

	authed.POST("/access-requests", requestHandler.Create)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
