package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable/api/swagger"
	"github.com/noah-isme/sma-timetable/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/repository"
	"github.com/noah-isme/sma-timetable/internal/service"
	"github.com/noah-isme/sma-timetable/pkg/cache"
	"github.com/noah-isme/sma-timetable/pkg/config"
	"github.com/noah-isme/sma-timetable/pkg/database"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
	"github.com/noah-isme/sma-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable/pkg/tracing"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Timetable generation, conflict detection and approval workflow
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, cfg.Tracing, cfg.Env, logr)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("migrations failed", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// the summary cache degrades to pass-through without redis
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		cfg.Cache.Enabled = false
	}

	events := jobs.NewQueue("timetable-events", service.LogEventSink(logr), jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.MaxRetries,
		Logger:     logr,
	})
	events.Start(ctx)

	engine, err := service.NewEngine(cfg.Scheduler, logr)
	if err != nil {
		logr.Fatal("scheduler engine init failed", zap.Error(err))
	}

	router := buildRouter(cfg, logr, db, redisClient, engine, events)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown failed", zap.Error(err))
	}
	events.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown failed", zap.Error(err))
	}
}

func buildRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, engine *service.Engine, events *jobs.Queue) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	locks := service.NewScheduleLocks()
	eventSvc := service.NewEventService(events, logr)

	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	loadRepo := repository.NewTeachingLoadRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.SummaryTTL, logr, cfg.Cache.Enabled)

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiration})
	scheduleSvc := service.NewScheduleService(service.ScheduleServiceDeps{
		Schedules: scheduleRepo,
		Sessions:  sessionRepo,
		Conflicts: conflictRepo,
		Loads:     loadRepo,
		Tx:        db,
		Engine:    engine,
		Locks:     locks,
		Cache:     cacheSvc,
		Events:    eventSvc,
		Audit:     auditRepo,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})
	generationSvc := service.NewGenerationService(service.GenerationServiceDeps{
		Schedules: scheduleRepo,
		Sessions:  sessionRepo,
		Conflicts: conflictRepo,
		Loads:     loadRepo,
		Settings:  settingsRepo,
		Resources: resourceRepo,
		Tx:        db,
		Engine:    engine,
		Locks:     locks,
		Cache:     cacheSvc,
		Events:    eventSvc,
		Audit:     auditRepo,
		Metrics:   metrics,
		Logger:    logr,
	})
	sessionSvc := service.NewSessionService(service.SessionServiceDeps{
		Schedules: scheduleRepo,
		Sessions:  sessionRepo,
		Conflicts: conflictRepo,
		Settings:  settingsRepo,
		Resources: resourceRepo,
		Tx:        db,
		Engine:    engine,
		Locks:     locks,
		Cache:     cacheSvc,
		Events:    eventSvc,
		Audit:     auditRepo,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})
	conflictSvc := service.NewConflictService(service.ConflictServiceDeps{
		Schedules: scheduleRepo,
		Sessions:  sessionRepo,
		Conflicts: conflictRepo,
		Settings:  settingsRepo,
		Resources: resourceRepo,
		Tx:        db,
		Engine:    engine,
		Locks:     locks,
		Cache:     cacheSvc,
		Events:    eventSvc,
		Audit:     auditRepo,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})
	settingsSvc := service.NewSettingsService(settingsRepo, auditRepo, logr)
	loadSvc := service.NewTeachingLoadService(loadRepo, validate, logr)
	resourceSvc := service.NewResourceService(resourceRepo, validate)

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, generationSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	conflictHandler := handler.NewConflictHandler(conflictSvc)
	catalogHandler := handler.NewCatalogHandler(loadSvc, resourceSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(internalmiddleware.JWT(tokens))

	admins := internalmiddleware.RequireRoles(models.RoleAdmin)
	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	schedules := api.Group("/schedules")
	{
		schedules.GET("", staff, scheduleHandler.List)
		schedules.POST("", admins, scheduleHandler.Create)
		schedules.GET("/:id", staff, scheduleHandler.Get)
		schedules.GET("/:id/summary", staff, scheduleHandler.Summary)
		schedules.POST("/:id/generate", admins, scheduleHandler.Generate)
		schedules.POST("/:id/submit", admins, scheduleHandler.Submit)
		schedules.POST("/:id/approve", admins, scheduleHandler.Approve)
		schedules.POST("/:id/reject", admins, scheduleHandler.Reject)
		schedules.POST("/:id/activate", admins, scheduleHandler.Activate)
		schedules.POST("/:id/archive", admins, scheduleHandler.Archive)

		schedules.GET("/:id/sessions", staff, sessionHandler.List)
		schedules.POST("/:id/sessions", admins, sessionHandler.Create)
		schedules.POST("/:id/sessions/check", staff, sessionHandler.Check)
		schedules.PUT("/:id/sessions/:sessionId", admins, sessionHandler.Update)
		schedules.DELETE("/:id/sessions/:sessionId", admins, sessionHandler.Delete)
		schedules.POST("/:id/sessions/:sessionId/substitute", admins, sessionHandler.Substitute)

		schedules.GET("/:id/conflicts", staff, conflictHandler.ListBySchedule)
		schedules.POST("/:id/conflicts/detect", admins, conflictHandler.Detect)
		schedules.POST("/:id/conflicts/auto-resolve", admins, conflictHandler.AutoResolveSchedule)
	}

	conflicts := api.Group("/conflicts")
	{
		conflicts.GET("/:id", staff, conflictHandler.Get)
		conflicts.POST("/:id/acknowledge", staff, conflictHandler.Acknowledge)
		conflicts.POST("/:id/start", staff, conflictHandler.Start)
		conflicts.POST("/:id/escalate", staff, conflictHandler.Escalate)
		conflicts.POST("/:id/ignore", admins, conflictHandler.Ignore)
		conflicts.POST("/:id/resolve", admins, conflictHandler.Resolve)
		conflicts.POST("/:id/auto-resolve", admins, conflictHandler.AutoResolve)
	}

	api.GET("/teaching-loads", staff, catalogHandler.ListLoads)
	api.POST("/teaching-loads", admins, catalogHandler.UpsertLoad)
	api.DELETE("/teaching-loads/:id", admins, catalogHandler.DeleteLoad)
	api.GET("/rooms", staff, catalogHandler.Rooms)
	api.PUT("/rooms", admins, catalogHandler.PutRooms)
	api.GET("/classes", staff, catalogHandler.Classes)
	api.PUT("/classes", admins, catalogHandler.PutClasses)

	api.GET("/settings/:institutionId", staff, settingsHandler.Get)
	api.PUT("/settings/:institutionId", admins, settingsHandler.Put)

	return r
}
