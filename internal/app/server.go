// internal/app/server.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"saas-billing/internal/config"
	"saas-billing/internal/db"
	"saas-billing/internal/events"
	adminHandler "saas-billing/internal/handlers/admin"
	authHandler "saas-billing/internal/handlers/auth"
	dashboardHandler "saas-billing/internal/handlers/dashboard"
	refundHandler "saas-billing/internal/handlers/refund"
	subscriptionHandler "saas-billing/internal/handlers/subscription"
	tierHandler "saas-billing/internal/handlers/tier"
	usageHandler "saas-billing/internal/handlers/usage"
	webhookHandler "saas-billing/internal/handlers/webhook"
	wsHandler "saas-billing/internal/handlers/websocket"
	"saas-billing/internal/jobs"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/pkg/validation"
	"saas-billing/internal/repository/postgres"
	adminsvc "saas-billing/internal/service/admin"
	auditsvc "saas-billing/internal/service/audit"
	authsvc "saas-billing/internal/service/auth"
	"saas-billing/internal/service/email"
	refundsvc "saas-billing/internal/service/refund"
	subscriptionsvc "saas-billing/internal/service/subscription"
	tiersvc "saas-billing/internal/service/tier"
	usagesvc "saas-billing/internal/service/usage"
	webhooksvc "saas-billing/internal/service/webhook"
	"saas-billing/internal/websocket"
	wsHandlers "saas-billing/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ShutdownTimeout = 10 * time.Second

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	http   *http.Server
	logger *zap.Logger

	pool      *pgxpool.Pool
	sqlDB     *sql.DB
	redis     *redis.Client
	kafka     *events.KafkaPublisher
	scheduler *jobs.Scheduler

	stopHub context.CancelFunc
	hubDone chan struct{}
}

// NewServer connects every backing store and wires the application. Nothing
// is served until Start.
func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, engine: gin.New(), logger: logger}
	if err := s.wire(ctx); err != nil {
		s.closeStores()
		return nil, err
	}
	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	cfg := s.cfg
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.pool = pool

	sqlDB, err := db.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.sqlDB = sqlDB

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return err
	}
	s.redis = redisClient
	logger.Info("storage connected", zap.String("redis", cfg.RedisAddr))

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	sessionManager := session.NewManager(redisClient)
	rateLimiter := session.NewRateLimiter(redisClient)
	locker := session.NewLocker(redisClient)

	// ----- Audit -----
	auditLog, err := auditsvc.NewDBLogger(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	// ----- Payments -----
	gateway := payment.NewBreakerGateway(
		payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, logger),
		payment.DefaultBreakerConfig(),
		logger,
	)

	// ----- Email -----
	sender, err := s.emailSender(ctx)
	if err != nil {
		return err
	}
	notifier := email.NewNotifier(email.NewRetryingSender(sender), logger, cfg.AppURL)

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	userRepo := postgres.NewUserRepository(pool)
	tierRepo := postgres.NewTierRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	paymentMethodRepo := postgres.NewPaymentMethodRepository(dbWrapper)
	refundRepo := postgres.NewRefundRepository(pool)
	usageRepo := postgres.NewUsageRepository(pool)
	adminRepo := postgres.NewAdminRepository(pool)

	// ----- Services -----
	authService := authsvc.NewAuthService(userRepo, subscriptionRepo, jwtManager, sessionManager, rateLimiter, logger)

	// ----- WebSocket Hub and event sinks -----
	hub := websocket.NewHub(authService, logger)
	publisher := events.Multi{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		s.kafka = kafka
		publisher = append(publisher, kafka)
	}

	tierService := tiersvc.NewTierService(tierRepo, auditLog, logger)
	subscriptionService := subscriptionsvc.NewSubscriptionService(
		subscriptionRepo,
		invoiceRepo,
		userRepo,
		paymentMethodRepo,
		tierService,
		gateway,
		config.EnvPriceResolver{},
		locker,
		auditLog,
		notifier,
		publisher,
		logger,
	)
	refundService := refundsvc.NewRefundService(refundRepo, invoiceRepo, gateway, locker, auditLog, notifier, publisher, logger)
	usageService := usagesvc.NewUsageService(usageRepo, subscriptionRepo, logger)
	webhookService := webhooksvc.NewWebhookService(
		gateway,
		subscriptionRepo,
		invoiceRepo,
		refundRepo,
		userRepo,
		locker,
		notifier,
		publisher,
		logger,
	)
	adminService := adminsvc.NewAdminService(
		adminRepo,
		userRepo,
		subscriptionRepo,
		invoiceRepo,
		refundRepo,
		usageRepo,
		auditLog,
		authService,
		notifier,
		auditLog,
		logger,
	)

	hub.RegisterHandler(wsHandlers.NewSubscriptionHandler(subscriptionService))
	hubCtx, stopHub := context.WithCancel(context.Background())
	s.stopHub = stopHub
	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		hub.Run(hubCtx)
	}()

	// ----- Super Admin -----
	if cfg.SuperAdminEmail != "" {
		adminCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := authService.EnsureAdmin(adminCtx, cfg.SuperAdminEmail, cfg.SuperAdminPassword, cfg.SuperAdminName)
		cancel()
		if err != nil {
			logger.Error("failed to initialize super admin", zap.Error(err))
		}
	}

	// ----- Jobs -----
	s.scheduler = jobs.NewScheduler(logger)
	if err := s.scheduler.Add(cfg.ExpireSchedule, jobs.NewExpireLapsed(subscriptionRepo, publisher, logger)); err != nil {
		return err
	}

	// ----- HTTP -----
	if err := validation.RegisterGin(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(authService, logger)
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.Metrics(),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.SecurityHeaders(),
	)

	SetupRouter(s.engine, &Handlers{
		AuthHandler:         authHandler.NewAuthHandler(authService, cfg.IsProduction(), logger),
		TierHandler:         tierHandler.NewTierHandler(tierService, logger),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(subscriptionService, logger),
		RefundHandler:       refundHandler.NewRefundHandler(refundService, logger),
		UsageHandler:        usageHandler.NewUsageHandler(usageService, logger),
		WebhookHandler:      webhookHandler.NewWebhookHandler(webhookService, logger),
		AdminHandler:        adminHandler.NewAdminHandler(adminService, logger),
		DashboardHandler:    dashboardHandler.NewDashboardHandler(authService, usageService, adminService, logger),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, cfg.CORSAllowedOrigins, logger),
		AuthMiddleware:      authMiddleware,
	})
	return nil
}

func (s *Server) emailSender(ctx context.Context) (email.Sender, error) {
	if s.cfg.EmailTransport == "ses" {
		sender, err := email.NewSESSender(ctx, s.cfg.AWSRegion, s.cfg.SESFrom)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES sender: %w", err)
		}
		return sender, nil
	}
	return email.NewSMTPSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	), nil
}

// Start serves HTTP and runs the cron jobs. It blocks until Shutdown.
func (s *Server) Start() error {
	s.scheduler.Start()
	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, then stops cron and the hub, then closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	httpCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(httpCtx)

	s.scheduler.Stop(ctx)

	s.stopHub()
	select {
	case <-s.hubDone:
	case <-ctx.Done():
	}

	s.closeStores()
	return err
}

func (s *Server) closeStores() {
	if s.stopHub != nil {
		s.stopHub()
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}
