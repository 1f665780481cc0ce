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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/carnet-api/api/swagger"
	"github.com/noah-isme/carnet-api/internal/handler"
	internalmiddleware "github.com/noah-isme/carnet-api/internal/middleware"
	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/repository"
	"github.com/noah-isme/carnet-api/internal/service"
	"github.com/noah-isme/carnet-api/pkg/cache"
	"github.com/noah-isme/carnet-api/pkg/config"
	"github.com/noah-isme/carnet-api/pkg/credential"
	"github.com/noah-isme/carnet-api/pkg/database"
	"github.com/noah-isme/carnet-api/pkg/logger"
	"github.com/noah-isme/carnet-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/carnet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/carnet-api/pkg/middleware/requestid"
	"github.com/noah-isme/carnet-api/pkg/response"
	"github.com/noah-isme/carnet-api/pkg/verification"
)

// @title Carnet Comunitario API
// @version 1.0.0
// @description Intake, approval and credential delivery for entrepreneur and pet registrations
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	response.ExposeInternalErrors(cfg.Env != config.EnvProduction)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, status cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	loc := cfg.Location()
	validate := validator.New()

	requestRepo := repository.NewRequestRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Status.CacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	normalizer := service.NewIntakeNormalizer(validate)
	deliveryLog := service.NewDeliveryLogService(deliveryRepo, cacheSvc, metricsSvc, cfg.Status.CacheTTL, logr)
	requestSvc := service.NewRequestService(requestRepo, normalizer, deliveryLog, metricsSvc, loc, logr)
	exportSvc := service.NewExportService(requestRepo, loc, logr)

	var dispatcher service.NotificationDispatcher = mailer.Disabled{}
	if cfg.Mail.Enabled {
		dispatcher = mailer.New(cfg.Mail, logr)
	} else {
		logr.Warn("mail transport disabled, approvals will record failed deliveries")
	}
	renderer := credential.NewPDFRenderer(credential.Options{
		Issuer:      cfg.Credential.Issuer,
		LogoPath:    cfg.Credential.LogoPath,
		RequireLogo: cfg.Credential.RequireLogo,
	})
	signer := verification.NewSigner(cfg.Credential.VerificationSecret, cfg.Credential.VerificationBaseURL)
	lifecycleSvc := service.NewLifecycleService(requestRepo, renderer, dispatcher, signer, deliveryLog, metricsSvc, logr)

	requestHandler := handler.NewRequestHandler(requestSvc, lifecycleSvc, exportSvc, loc)
	webhookHandler := handler.NewWebhookHandler(requestSvc, deliveryLog, cfg.Status.Window, cfg.APIPrefix+"/webhook/requests")
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authRequired := internalmiddleware.JWT(authSvc)
	adminOnly := internalmiddleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	webhook := api.Group("/webhook")
	webhook.POST("/requests", internalmiddleware.WebhookToken(cfg.Webhook.Secret), webhookHandler.Receive)
	webhook.GET("/test", webhookHandler.Test)
	webhook.POST("/test", webhookHandler.Test)
	webhook.GET("/status", authRequired, webhookHandler.Status)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authRequired, authHandler.Refresh)
	auth.GET("/profile", authRequired, authHandler.Profile)

	api.POST("/users", authRequired, adminOnly, userHandler.Create)

	requests := api.Group("/requests", authRequired)
	requests.GET("", requestHandler.List)
	requests.POST("", requestHandler.Create)
	requests.GET("/stats", requestHandler.Stats)
	requests.GET("/months", requestHandler.Months)
	requests.GET("/export", requestHandler.Export)
	requests.GET("/:id", requestHandler.Get)
	requests.PATCH("/:id/state", requestHandler.Transition)
	requests.DELETE("/:id", adminOnly, requestHandler.Delete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logr.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
