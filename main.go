// Package main provides the entry point for the ATS message dispatch service
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/handlers"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/middleware"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/router"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/scheduler"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Application holds the wired components shared by every command
type Application struct {
	cfg    *config.ProductionConfig
	logger *slog.Logger
	db     *gorm.DB
	redis  *redis.Client

	tenantRepo   repository.TenantRepository
	templateRepo repository.TemplateRepository
	renderer     services.TemplateRenderer

	queue      dispatch.Queue
	dispatcher *dispatch.QueueDispatcher
	processor  *dispatch.Processor
	scheduler  *scheduler.MessageScheduler

	messageFlow    businessflow.MessageFlow
	templateFlow   businessflow.TemplateFlow
	automationFlow businessflow.AutomationFlow
	receiptFlow    businessflow.ReceiptFlow
	tokenService   services.TokenService

	closers []io.Closer
}

// Close releases connections in reverse order of acquisition
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close resource", "error", err)
		}
	}
}

// initializeDatabase opens the postgres connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established", "max_open", cfg.MaxOpenConns, "max_idle", cfg.MaxIdleConns)
	return db, nil
}

func needsRedis(cfg *config.ProductionConfig) bool {
	return cfg.Cache.Enabled || cfg.Queue.Backend == "redis" || cfg.RateLimit.Backend == "redis"
}

// initializeCache connects to redis when any component is configured to use it
func initializeCache(cfg *config.ProductionConfig, logger *slog.Logger) (*redis.Client, error) {
	if !needsRedis(cfg) {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.Cache.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", "db", cfg.Cache.RedisDB)
	return rc, nil
}

func initializeRateLimiter(cfg *config.ProductionConfig, rc *redis.Client) services.RateLimiter {
	if cfg.RateLimit.Backend == "redis" && rc != nil {
		return services.NewRedisRateLimiter(rc, cfg.Cache.RedisPrefix)
	}
	return services.NewMemoryRateLimiter()
}

// initializeApplication wires repositories, services, the queue and the flows
func initializeApplication(cfg *config.ProductionConfig, logger *slog.Logger) (*Application, error) {
	app := &Application{cfg: cfg, logger: logger}

	db, err := initializeDatabase(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		return nil, err
	}
	app.db = db
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB)
	}

	rc, err := initializeCache(cfg, logging.Component(logger, "redis"))
	if err != nil {
		app.Close()
		return nil, err
	}
	if rc != nil {
		app.redis = rc
		app.closers = append(app.closers, rc)
	}

	// Repositories
	messageRepo := repository.NewMessageLogRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	historyRepo := repository.NewTemplateHistoryRepository(db)
	ruleRepo := repository.NewAutomationRuleRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	userRepo := repository.NewUserRepository(db)
	interviewRepo := repository.NewInterviewRepository(db)
	tx := repository.NewTransactor(db)
	app.tenantRepo = tenantRepo
	app.templateRepo = templateRepo

	// Services
	renderer := services.NewTemplateRenderer(logging.Component(logger, "renderer"), time.UTC)
	app.renderer = renderer

	senders, err := services.NewChannelSenders(cfg, logging.Component(logger, "senders"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize channel senders: %w", err)
	}
	limiter := initializeRateLimiter(cfg, rc)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.tokenService = tokenService

	// Queue and delivery
	queue, err := dispatch.NewQueue(cfg.Queue, rc, cfg.Cache.RedisPrefix, logging.Component(logger, "queue"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	app.queue = queue
	app.closers = append(app.closers, queue)
	app.dispatcher = dispatch.NewDispatcher(queue, dispatch.OptionsFromConfig(cfg.Queue))
	app.processor = dispatch.NewProcessor(messageRepo, senders, logging.Component(logger, "processor"))

	// Flows
	recipients := businessflow.NewRecipientResolver(candidateRepo, userRepo)
	variables := businessflow.NewVariableResolver(interviewRepo, tenantRepo, logging.Component(logger, "variables"))

	app.messageFlow = businessflow.NewMessageFlow(
		messageRepo,
		scheduledRepo,
		templateRepo,
		recipients,
		renderer,
		app.dispatcher,
		limiter,
		cfg.RateLimit,
		logging.Component(logger, "message_flow"),
	)
	app.automationFlow = businessflow.NewAutomationFlow(
		ruleRepo,
		templateRepo,
		messageRepo,
		scheduledRepo,
		recipients,
		variables,
		renderer,
		app.dispatcher,
		logging.Component(logger, "automation_flow"),
	)
	app.templateFlow = businessflow.NewTemplateFlow(
		templateRepo,
		historyRepo,
		ruleRepo,
		tx,
		renderer,
		variables,
		logging.Component(logger, "template_flow"),
	)
	app.receiptFlow = businessflow.NewReceiptFlow(messageRepo, logging.Component(logger, "receipt_flow"))

	app.scheduler = scheduler.NewMessageScheduler(
		scheduledRepo,
		messageRepo,
		tx,
		app.dispatcher,
		logging.Component(logger, "scheduler"),
		cfg.Scheduler.Spec,
		cfg.Scheduler.BatchSize,
	)

	return app, nil
}

// newRouter builds the HTTP surface over the application's flows
func (a *Application) newRouter() router.Router {
	h := router.Handlers{
		Messages:   handlers.NewMessageHandler(a.messageFlow, logging.Component(a.logger, "message_handler")),
		Templates:  handlers.NewTemplateHandler(a.templateFlow, logging.Component(a.logger, "template_handler")),
		Automation: handlers.NewAutomationHandler(a.automationFlow, logging.Component(a.logger, "automation_handler")),
		Webhooks:   handlers.NewWebhookHandler(a.receiptFlow, a.cfg.WhatsApp.VerifyToken, logging.Component(a.logger, "webhook_handler")),
	}
	return router.NewFiberRouter(a.cfg, h, middleware.NewAuthMiddleware(a.tokenService), logging.Component(a.logger, "http"))
}

// runWorker drains the queue until ctx is cancelled
func (a *Application) runWorker(ctx context.Context) error {
	a.logger.Info("Queue worker starting", "backend", a.cfg.Queue.Backend, "concurrency", a.cfg.Queue.Concurrency)
	err := a.queue.Run(ctx, a.processor.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
