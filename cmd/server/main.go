package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	catalogapp "github.com/jdfresh/backend/internal/application/catalog"
	deliveryapp "github.com/jdfresh/backend/internal/application/delivery"
	identityapp "github.com/jdfresh/backend/internal/application/identity"
	notificationapp "github.com/jdfresh/backend/internal/application/notification"
	orderapp "github.com/jdfresh/backend/internal/application/order"
	paymentapp "github.com/jdfresh/backend/internal/application/payment"
	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/infrastructure/auth"
	"github.com/jdfresh/backend/internal/infrastructure/cache"
	"github.com/jdfresh/backend/internal/infrastructure/config"
	"github.com/jdfresh/backend/internal/infrastructure/gateway"
	"github.com/jdfresh/backend/internal/infrastructure/logger"
	notificationinfra "github.com/jdfresh/backend/internal/infrastructure/notification"
	"github.com/jdfresh/backend/internal/infrastructure/persistence"
	"github.com/jdfresh/backend/internal/infrastructure/realtime"
	"github.com/jdfresh/backend/internal/interfaces/http/handler"
	"github.com/jdfresh/backend/internal/interfaces/http/middleware"
	"github.com/jdfresh/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting JD Fresh backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// Repositories
	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	deliveryRepo := persistence.NewGormDeliveryRepository(db.DB)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := orderRepo.SeedOrderCounter(seedCtx); err != nil {
		seedCancel()
		log.Fatal("Failed to seed order number counter", zap.Error(err))
	}
	seedCancel()

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT)
	blacklist := auth.NewInMemoryTokenBlacklist()

	// Webhook idempotency store, Redis with in-memory fallback
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create webhook idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Payment gateways. A missing key disables that gateway outside
	// production; config validation requires both in production.
	var gateways []payment.Gateway
	stripeAdapter, err := gateway.NewStripeAdapter(&cfg.Stripe, log)
	if err != nil {
		log.Warn("Stripe gateway disabled", zap.Error(err))
	} else {
		gateways = append(gateways, stripeAdapter)
	}
	razorpayAdapter, err := gateway.NewRazorpayAdapter(&cfg.Razorpay, log)
	if err != nil {
		log.Warn("Razorpay gateway disabled", zap.Error(err))
	} else {
		gateways = append(gateways, razorpayAdapter)
	}

	// Notification dispatcher
	var senders []notificationapp.Sender
	if cfg.Notification.Enabled {
		senders = append(senders,
			notificationinfra.NewLogEmailSender(&cfg.Notification, log),
			notificationinfra.NewLogSMSSender(&cfg.Notification, log),
		)
	}
	dispatcher := notificationapp.NewDispatcher(senders, userRepo, log)
	defer dispatcher.Close()

	// Delivery tracking hub
	hub := realtime.NewHub(
		realtime.WithLogger(log),
		realtime.WithHeartbeat(cfg.Realtime.HeartbeatInterval),
		realtime.WithSendBufferSize(cfg.Realtime.SendBufferSize),
		realtime.WithMaxClients(cfg.Realtime.MaxClients),
	)
	defer hub.Stop()

	// Application services
	identityService := identityapp.NewService(userRepo, jwtService, blacklist, log)
	productService := catalogapp.NewProductService(productRepo, log)
	orderService := orderapp.NewService(orderRepo, productRepo, paymentRepo, deliveryRepo, dispatcher, log)
	paymentCfg := paymentapp.ServiceConfig{
		Payments:    paymentRepo,
		Orders:      orderRepo,
		Stock:       productRepo,
		Gateways:    gateways,
		Idempotency: idempotencyStore,
		Notifier:    dispatcher,
		Logger:      log,
	}
	if razorpayAdapter != nil {
		paymentCfg.Verifier = razorpayAdapter
	}
	paymentService := paymentapp.NewService(paymentCfg)
	deliveryService := deliveryapp.NewService(deliveryRepo, orderRepo, userRepo, orderService, hub, log)
	hub.SetPublisher(deliveryService)

	// HTTP layer
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
		}
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	rateLimiter := middleware.NewRateLimiter(100, time.Minute)
	engine.Use(middleware.RateLimit(rateLimiter))

	systemHandler := handler.NewSystemHandler(db, hub, version, log)
	engine.GET("/health", systemHandler.Health)
	engine.GET("/ready", systemHandler.Ready)

	authMW := middleware.JWTAuthMiddleware(middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: blacklist,
		Logger:         log,
	})

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterAPIRoutes(r, router.Handlers{
		Auth:          handler.NewAuthHandler(identityService, log),
		Product:       handler.NewProductHandler(productService, log),
		Order:         handler.NewOrderHandler(orderService, log),
		Payment:       handler.NewPaymentHandler(paymentService, log),
		StripeWebhook: handler.NewStripeWebhookHandler(paymentService, &cfg.Stripe, log),
		Delivery:      handler.NewDeliveryHandler(deliveryService, hub, log),
	}, authMW)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
