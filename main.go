package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/cache"
	"github.com/JuanCarJ/studioz-academy-sub000/common/logger"
	commonmw "github.com/JuanCarJ/studioz-academy-sub000/common/middleware"
	"github.com/JuanCarJ/studioz-academy-sub000/controllers"
	"github.com/JuanCarJ/studioz-academy-sub000/database"
	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"
	"github.com/JuanCarJ/studioz-academy-sub000/routes"
	"github.com/JuanCarJ/studioz-academy-sub000/sender"
	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	// Secrets Manager override (AWS only)
	var secrets secretSource
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatalf("failed to load aws config: %v", err)
		}
		secrets = aws_pkg.NewSecretsClient(awsCfg)
	}

	cfg, err := LoadConfig(ctx, secrets)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// --- CloudWatch (Logs + Metrics) ---
	var cwWriter io.Writer
	cwLogsClient, cwErr := aws_pkg.NewCloudWatchLogsClient(ctx, routes.ServiceName)
	if cwErr == nil && cwLogsClient.IsEnabled() {
		cwWriter = cwLogsClient
	}

	zapLogger, err := logger.New(cfg.AppEnv, cwWriter)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if cwErr != nil {
		zapLogger.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(cwErr))
	}

	metricsClient, err := aws_pkg.NewMetricsClient(ctx)
	if err != nil {
		zapLogger.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
	}

	// SNS domain events (optional)
	var publisher aws_pkg.SNSPublisher
	if cfg.SNSTopicARN != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			zapLogger.Warn("SNS disabled: aws config failed", zap.Error(err))
		} else {
			publisher = aws_pkg.NewSNSClient(awsCfg)
		}
	}

	// Recheck throttle (optional; without redis every recheck is allowed)
	var throttle services.Throttle
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, recheck throttle disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			throttle = cache.NewThrottle(redisClient, "payments:", cfg.RecheckThrottle)
		}
	}

	// Database
	db, err := database.ConnectPostgres(cfg.DB, zapLogger)
	if err != nil {
		zapLogger.Fatal("DB connection failed", zap.Error(err))
	}

	emailSender, err := sender.NewSMTPSender(cfg.SMTP)
	if err != nil {
		zapLogger.Fatal("Failed to init SMTP sender", zap.Error(err))
	}

	// Dependency injection
	orderRepo := repository.NewGormOrderRepository(db)
	eventRepo := repository.NewGormPaymentEventRepository(db)
	catalogRepo := repository.NewGormCatalogRepository(db)
	outboxRepo := repository.NewGormOutboxRepository(db)

	wompi := gateway.NewWompiClient(cfg.Wompi)

	reconciler := services.NewReconciler(orderRepo, eventRepo, publisher, cfg.SNSTopicARN, metricsClient, zapLogger)
	webhookService := services.NewWebhookService(orderRepo, eventRepo, reconciler, cfg.EventsSecret, metricsClient, zapLogger)
	checkoutService := services.NewCheckoutService(orderRepo, catalogRepo, wompi, metricsClient, zapLogger, cfg.FrontendURL)
	poller := services.NewPoller(orderRepo, eventRepo, wompi, reconciler, throttle, metricsClient, zapLogger)
	notificationService := services.NewNotificationService(outboxRepo, orderRepo, emailSender, metricsClient, zapLogger, cfg.FrontendURL)
	orderService := services.NewOrderService(orderRepo, eventRepo, outboxRepo, zapLogger, cfg.FrontendURL)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.MetricsMiddleware(metricsClient, routes.ServiceName))
	r.Use(commonmw.RequestLogger(zapLogger))

	// Request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, routes.Controllers{
		Webhook:  controllers.NewWebhookController(webhookService, zapLogger),
		Checkout: controllers.NewCheckoutController(checkoutService, cfg.FrontendURL, zapLogger),
		Orders:   controllers.NewOrderController(orderService, poller),
		Cron:     controllers.NewCronController(poller, notificationService),
		Admin:    controllers.NewAdminController(orderService, notificationService, zapLogger),
	}, routes.Options{
		JWTSecret:        []byte(cfg.JWTSecret),
		CronSecret:       cfg.CronSecret,
		AllowedOrigins:   cfg.AllowedOrigins,
		WebhookRateLimit: cfg.WebhookRateLimit,
		RecheckRateLimit: cfg.RecheckRateLimit,
	})

	// HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLogger.Info("Payment service started", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server shutdown error", zap.Error(err))
	}

	if err := database.Close(db); err != nil {
		zapLogger.Error("Database close error", zap.Error(err))
	}

	zapLogger.Info("Payment service stopped gracefully")
}
