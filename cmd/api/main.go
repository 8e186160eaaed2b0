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

	_ "github.com/kosen-dev/timetable-api/api/swagger"
	"github.com/kosen-dev/timetable-api/internal/handler"
	"github.com/kosen-dev/timetable-api/internal/middleware"
	"github.com/kosen-dev/timetable-api/internal/models"
	"github.com/kosen-dev/timetable-api/internal/repository"
	"github.com/kosen-dev/timetable-api/internal/service"
	"github.com/kosen-dev/timetable-api/pkg/cache"
	"github.com/kosen-dev/timetable-api/pkg/config"
	"github.com/kosen-dev/timetable-api/pkg/database"
	"github.com/kosen-dev/timetable-api/pkg/logger"
	corsmiddleware "github.com/kosen-dev/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kosen-dev/timetable-api/pkg/middleware/requestid"
)

// @title Kosen Timetable API
// @version 1.0.0
// @description Weekly timetable management with change-request workflow
// @BasePath /api
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, redisClient != nil)

	// UserRepository and AuditRepository together satisfy the auth and user
	// service interfaces, which expect audit writes on the same value.
	userRepoWithAudit := struct {
		*repository.UserRepository
		*repository.AuditRepository
	}{userRepo, auditRepo}

	authSvc := service.NewAuthService(userRepoWithAudit, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepoWithAudit, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, validate, logr)
	periodSvc := service.NewPeriodService(periodRepo, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, cacheSvc, validate, logr)
	timetableSvc := service.NewTimetableService(scheduleRepo, periodRepo, classRepo, cacheSvc, metricsSvc, cfg.Timetable.CacheTTL, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, logr, cfg.Notifications.Enabled, cfg.Notifications.WorkerConcurrency, cfg.Notifications.WorkerRetries)
	requestSvc := service.NewRequestService(requestRepo, scheduleRepo, auditRepo, notificationSvc, cacheSvc,
		service.RequestPolicy{MinReasonLength: cfg.Requests.MinReasonLength}, validate, logr)
	csvSvc := service.NewCSVService(subjectRepo, classRepo, periodRepo, scheduleRepo, auditRepo, cacheSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	roomHandler := handler.NewRoomHandler(roomSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	csvHandler := handler.NewCSVHandler(csvSvc, cfg.CSV.MaxUploadBytes)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	view := authed.Group("")
	view.Use(middleware.RequireCapability(models.CapViewTimetable))
	view.GET("/classes", classHandler.List)
	view.GET("/classes/:id", classHandler.Get)
	view.GET("/subjects", subjectHandler.List)
	view.GET("/subjects/:id", subjectHandler.Get)
	view.GET("/rooms", roomHandler.List)
	view.GET("/rooms/:id", roomHandler.Get)
	view.GET("/periods", periodHandler.List)
	view.GET("/periods/:id", periodHandler.Get)
	view.GET("/schedules", scheduleHandler.List)
	view.GET("/schedules/:id", scheduleHandler.Get)
	view.GET("/timetables/:class_id/weekly", timetableHandler.Weekly)
	view.GET("/timetables/:class_id/export.pdf", timetableHandler.ExportPDF)

	masters := authed.Group("")
	masters.Use(middleware.RequireCapability(models.CapManageMasters))
	masters.Use(middleware.Audit(auditRepo, "write", "master_data"))
	masters.POST("/classes", classHandler.Create)
	masters.PUT("/classes/:id", classHandler.Update)
	masters.DELETE("/classes/:id", classHandler.Delete)
	masters.POST("/subjects", subjectHandler.Create)
	masters.PUT("/subjects/:id", subjectHandler.Update)
	masters.DELETE("/subjects/:id", subjectHandler.Delete)
	masters.POST("/rooms", roomHandler.Create)
	masters.PUT("/rooms/:id", roomHandler.Update)
	masters.DELETE("/rooms/:id", roomHandler.Delete)
	masters.POST("/periods", periodHandler.Create)
	masters.PUT("/periods/:id", periodHandler.Update)
	masters.DELETE("/periods/:id", periodHandler.Delete)

	scheduling := authed.Group("")
	scheduling.Use(middleware.RequireCapability(models.CapManageSchedules))
	scheduling.Use(middleware.Audit(auditRepo, "write", "schedule_slots"))
	scheduling.POST("/schedules", scheduleHandler.Create)
	scheduling.PUT("/schedules/:id", scheduleHandler.Update)
	scheduling.DELETE("/schedules/:id", scheduleHandler.Delete)

	requests := authed.Group("/requests")
	requests.POST("", middleware.RequireCapability(models.CapCreateRequest), requestHandler.Create)
	requests.GET("", requestHandler.List)
	requests.GET("/:id", requestHandler.Get)
	requests.POST("/:id/approve", middleware.RequireCapability(models.CapReviewRequest), requestHandler.Approve)
	requests.POST("/:id/reject", middleware.RequireCapability(models.CapReviewRequest), requestHandler.Reject)
	requests.POST("/:id/cancel", requestHandler.Cancel)

	csv := authed.Group("/csv")
	csv.POST("/import/subjects", middleware.RequireCapability(models.CapImportCSV), csvHandler.ImportSubjects)
	csv.POST("/import/timetables", middleware.RequireCapability(models.CapImportCSV), csvHandler.ImportTimetables)
	csv.GET("/export/subjects", middleware.RequireCapability(models.CapExportCSV), csvHandler.ExportSubjects)
	csv.GET("/export/timetables", middleware.RequireCapability(models.CapExportCSV), csvHandler.ExportTimetables)

	authed.GET("/notifications", notificationHandler.List)
	authed.POST("/notifications/:id/read", notificationHandler.MarkRead)

	users := authed.Group("/users")
	users.GET("", middleware.RequireCapability(models.CapManageUsers), userHandler.List)
	users.GET("/:id", middleware.RequireRoles(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.POST("", middleware.RequireCapability(models.CapManageUsers), userHandler.Create)
	users.PUT("/:id", middleware.RequireCapability(models.CapManageUsers), userHandler.Update)
	users.DELETE("/:id", middleware.RequireCapability(models.CapManageUsers), userHandler.Delete)

	if metricsSvc != nil {
		authed.GET("/admin/system", middleware.RequireCapability(models.CapManageUsers), metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
