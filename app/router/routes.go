// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/handlers"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/middleware"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const webhookSecretHeader = "X-Webhook-Secret"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(timeout time.Duration) error
	GetApp() *fiber.App
}

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Messages   handlers.MessageHandlerInterface
	Templates  handlers.TemplateHandlerInterface
	Automation handlers.AutomationHandlerInterface
	Webhooks   handlers.WebhookHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.ProductionConfig
	handlers Handlers
	auth     *middleware.AuthMiddleware
	logger   *slog.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware, log *slog.Logger) Router {
	r := &FiberRouter{
		cfg:      cfg,
		handlers: h,
		auth:     auth,
		logger:   log,
	}
	r.app = fiber.New(fiber.Config{
		AppName:      "ATS Dispatch API",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	r.app.Get("/health", r.healthCheck)
	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Provider callbacks authenticate per provider, not with tenant tokens
	hooks := r.app.Group("/webhooks")
	hooks.Get("/whatsapp", r.handlers.Webhooks.VerifyWhatsApp)
	hooks.Post("/whatsapp", r.handlers.Webhooks.WhatsApp)
	hooks.Post("/ses", r.handlers.Webhooks.SES)
	hooks.Post("/twilio", r.handlers.Webhooks.Twilio)
	hooks.Post("/mock", middleware.SharedSecret(webhookSecretHeader, r.cfg.Webhooks.SharedSecret), r.handlers.Webhooks.Mock)

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.GlobalRateWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	authed := api.Group("", r.auth.Authenticate())

	messages := authed.Group("/messages")
	messages.Post("/", r.handlers.Messages.Send)
	messages.Get("/", r.handlers.Messages.List)
	messages.Post("/schedule", r.handlers.Messages.Schedule)
	messages.Get("/scheduled", r.handlers.Messages.ListScheduled)
	messages.Delete("/scheduled/:id", r.handlers.Messages.CancelScheduled)
	messages.Get("/stats", r.handlers.Messages.Stats)
	messages.Get("/export", r.handlers.Messages.Export)
	messages.Get("/dead-letters", r.handlers.Messages.DeadLetters)
	messages.Get("/:id", r.handlers.Messages.Get)
	messages.Post("/:id/retry", r.handlers.Messages.Retry)

	templates := authed.Group("/templates")
	templates.Post("/", r.handlers.Templates.Create)
	templates.Get("/", r.handlers.Templates.List)
	templates.Post("/preview", r.handlers.Templates.Preview)
	templates.Get("/:id", r.handlers.Templates.Get)
	templates.Put("/:id", r.handlers.Templates.Update)
	templates.Delete("/:id", r.handlers.Templates.Delete)
	templates.Get("/:id/history", r.handlers.Templates.History)

	automation := authed.Group("/automation")
	automation.Post("/triggers", r.handlers.Automation.Trigger)
	automation.Post("/rules", r.handlers.Automation.CreateRule)
	automation.Get("/rules", r.handlers.Automation.ListRules)
	automation.Get("/rules/:id", r.handlers.Automation.GetRule)
	automation.Put("/rules/:id", r.handlers.Automation.UpdateRule)
	automation.Delete("/rules/:id", r.handlers.Automation.DeleteRule)
	automation.Post("/rules/:id/toggle", r.handlers.Automation.ToggleRule)

	r.app.Use(r.notFoundHandler)
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID must run first so every later middleware can log it
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("Panic recovered",
				"request_id", requestid.FromContext(c),
				"error", fmt.Sprint(e),
				"path", c.Path(),
				"method", c.Method(),
			)
		},
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/api/v1/health"
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}
}

// Start serves HTTP until the app is shut down
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("Starting server", "address", address)
	return r.app.Listen(address)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(timeout time.Duration) error {
	return r.app.ShutdownWithTimeout(timeout)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"service":   "ats-dispatch",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Route not found",
		Error: dto.ErrorDetail{
			Code:    "ROUTE_NOT_FOUND",
			Details: fiber.Map{"method": c.Method(), "path": c.Path()},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		r.logger.Error("Request failed", "status", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}
