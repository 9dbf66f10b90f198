package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dorm-adp-api/api/swagger"
	"github.com/noah-isme/dorm-adp-api/internal/handler"
	"github.com/noah-isme/dorm-adp-api/internal/middleware"
	"github.com/noah-isme/dorm-adp-api/internal/repository"
	"github.com/noah-isme/dorm-adp-api/internal/service"
	"github.com/noah-isme/dorm-adp-api/pkg/cache"
	"github.com/noah-isme/dorm-adp-api/pkg/config"
	"github.com/noah-isme/dorm-adp-api/pkg/database"
	"github.com/noah-isme/dorm-adp-api/pkg/export"
	"github.com/noah-isme/dorm-adp-api/pkg/jobs"
	"github.com/noah-isme/dorm-adp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dorm-adp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dorm-adp-api/pkg/middleware/requestid"
	"github.com/noah-isme/dorm-adp-api/pkg/storage"
)

// @title Dorm ADP API
// @version 1.0.0
// @description Dormitory administration API: rooms, residents, applications, billing
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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Room listing cache degrades to a no-op without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Billing.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("storage init failed", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Billing.SignedURLSecret, cfg.Billing.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(notificationRepo, studentRepo, userRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)

	roomSvc := service.NewRoomService(roomRepo, assignmentRepo, cacheRepo, metricsSvc, cfg.Rooms.CacheTTL, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, roomRepo, studentRepo, notificationSvc, roomSvc, metricsSvc, logr)
	studentSvc := service.NewStudentService(studentRepo, assignmentSvc, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, studentRepo, roomRepo, assignmentSvc, notificationSvc, validate, logr)
	billingSvc := service.NewBillingService(invoiceRepo, studentRepo, roomRepo, roomRepo, export.NewPDFExporter(), export.NewCSVExporter(), store, signer, notificationSvc, validate, logr)
	maintenanceSvc := service.NewMaintenanceService(maintenanceRepo, roomRepo, notificationSvc, validate, logr)
	messageSvc := service.NewMessageService(messageRepo, userRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, studentSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "dorm-adp-api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	go billingMaintenanceLoop(ctx, billingSvc, store, cfg.Billing, logr)

	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Rooms:         handler.NewRoomHandler(roomSvc, assignmentSvc),
		Students:      handler.NewStudentHandler(studentSvc),
		Applications:  handler.NewApplicationHandler(applicationSvc),
		Billing:       handler.NewBillingHandler(billingSvc, store),
		Maintenance:   handler.NewMaintenanceHandler(maintenanceSvc),
		Announcements: handler.NewAnnouncementHandler(announcementSvc, studentSvc),
		Messages:      handler.NewMessageHandler(messageSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc, db),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

// billingMaintenanceLoop flags overdue invoices and prunes expired invoice
// documents on a fixed interval.
func billingMaintenanceLoop(ctx context.Context, billing *service.BillingService, store *storage.LocalStorage, cfg config.BillingConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if count, err := billing.MarkOverdue(ctx); err != nil {
				logr.Sugar().Warnw("overdue sweep failed", "error", err)
			} else if count > 0 {
				logr.Sugar().Infow("invoices marked overdue", "count", count)
			}
			if removed, err := store.CleanupOlderThan(cfg.SignedURLTTL); err != nil {
				logr.Sugar().Warnw("document cleanup failed", "error", err)
			} else if len(removed) > 0 {
				logr.Sugar().Infow("expired invoice documents removed", "count", len(removed))
			}
		}
	}
}
