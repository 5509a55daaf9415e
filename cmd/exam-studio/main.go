package main

import (
	"context"
	"errors"
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

	_ "github.com/aftab-edu/exam-studio-api/api/swagger"
	"github.com/aftab-edu/exam-studio-api/internal/genai"
	"github.com/aftab-edu/exam-studio-api/internal/handler"
	"github.com/aftab-edu/exam-studio-api/internal/middleware"
	"github.com/aftab-edu/exam-studio-api/internal/models"
	"github.com/aftab-edu/exam-studio-api/internal/repository"
	"github.com/aftab-edu/exam-studio-api/internal/service"
	"github.com/aftab-edu/exam-studio-api/pkg/cache"
	"github.com/aftab-edu/exam-studio-api/pkg/config"
	"github.com/aftab-edu/exam-studio-api/pkg/database"
	"github.com/aftab-edu/exam-studio-api/pkg/export"
	"github.com/aftab-edu/exam-studio-api/pkg/logger"
	corsmiddleware "github.com/aftab-edu/exam-studio-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aftab-edu/exam-studio-api/pkg/middleware/requestid"
	"github.com/aftab-edu/exam-studio-api/pkg/storage"
)

// @title Exam Studio API
// @version 1.0.0
// @description Exam authoring dashboard for the Aftab school network
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, activityRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "exam-studio",
	})

	geminiClient := genai.NewClient(cfg.Gemini, logr)
	generatorService := service.NewGeneratorService(geminiClient, examRepo, resourceRepo, activityRepo, metricsService, cacheRepo, validate, logr, service.GeneratorConfig{
		DefaultQuestionCount: cfg.Generator.DefaultQuestionCount,
		MaxQuestionCount:     cfg.Generator.MaxQuestionCount,
		Timeout:              cfg.Gemini.Timeout,
	})

	examService := service.NewExamService(examRepo, activityRepo, cacheRepo, validate, logr, cfg.Exams.DuplicateEnabled)
	userService := service.NewUserService(userRepo, activityRepo, cacheRepo, validate, logr)
	activityService := service.NewActivityService(activityRepo, logr)
	resourceService := service.NewResourceService(resourceRepo, activityRepo, validate, logr)
	dashboardService := service.NewDashboardService(examRepo, userRepo, activityRepo, cacheRepo, metricsService, logr, cfg.Dashboard.CacheTTL)

	sheetStore, err := storage.NewLocalStorage(cfg.Sheets.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init sheet storage", "error", err)
	}
	sheetSigner := storage.NewSignedURLSigner(cfg.Sheets.SignedURLSecret, cfg.Sheets.SignedURLTTL)
	sheetRenderer := export.NewSheetRenderer(cfg.Sheets.FontPath)
	sheetService := service.NewSheetService(examRepo, sheetRenderer, sheetStore, sheetSigner, logr)

	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sheetService.Cleanup(cfg.Sheets.Retention)
			case <-cleanupDone:
				return
			}
		}
	}()

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authService.EnsureBootstrapAdmin(seedCtx, service.BootstrapAdmin{
		Email:      cfg.Bootstrap.AdminEmail,
		Password:   cfg.Bootstrap.AdminPassword,
		FullName:   cfg.Bootstrap.AdminName,
		SchoolName: cfg.Bootstrap.SchoolName,
	}); err != nil {
		logr.Sugar().Fatalw("failed to seed bootstrap admin", "error", err)
	}
	cancelSeed()

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	examHandler := handler.NewExamHandler(examService, generatorService, sheetService, export.NewCSVExporter())
	activityHandler := handler.NewActivityHandler(activityService)
	resourceHandler := handler.NewResourceHandler(resourceService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		// Sheet downloads authenticate through the signed token alone so the
		// link can be opened outside the dashboard session.
		api.GET("/sheets/download", examHandler.DownloadSheet)

		protected := api.Group("")
		protected.Use(middleware.JWT(authService))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.POST("/auth/change-password", authHandler.ChangePassword)
			protected.GET("/auth/me", authHandler.Me)

			exams := protected.Group("/exams")
			{
				exams.GET("", examHandler.List)
				exams.POST("/generate", examHandler.Generate)
				exams.GET("/export", examHandler.ExportCSV)
				exams.GET("/:id", examHandler.Get)
				exams.PUT("/:id", examHandler.Update)
				exams.DELETE("/:id", examHandler.Delete)
				exams.POST("/:id/duplicate", examHandler.Duplicate)
				exams.POST("/:id/sheet", examHandler.RenderSheet)
			}

			adminOnly := protected.Group("")
			adminOnly.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
			{
				adminOnly.GET("/users", userHandler.List)
				adminOnly.POST("/users", userHandler.Create)
				adminOnly.GET("/users/:id", userHandler.Get)
				adminOnly.PUT("/users/:id", userHandler.Update)
				adminOnly.DELETE("/users/:id", userHandler.Delete)

				adminOnly.GET("/activity", activityHandler.List)

				adminOnly.POST("/resources", resourceHandler.Create)
				adminOnly.DELETE("/resources/:id", resourceHandler.Delete)
			}

			protected.GET("/resources", resourceHandler.List)
			protected.GET("/dashboard", dashboardHandler.Summary)

			superOnly := protected.Group("")
			superOnly.Use(middleware.RequireRoles(models.RoleSuperAdmin))
			{
				superOnly.GET("/system/metrics", metricsHandler.Snapshot)
			}
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	close(cleanupDone)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("failed to close redis", "error", err)
	}
}
