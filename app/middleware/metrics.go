package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request surfaces
const (
	SurfaceAPI     = "api"
	SurfaceWebhook = "webhook"
	SurfaceOps     = "ops"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface", "route"},
	)

	httpRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rejected_requests_total",
			Help: "Requests refused for auth or rate limit reasons",
		},
		[]string{"surface", "reason"},
	)

	webhookCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_callbacks_total",
			Help: "Delivery receipt callbacks received per provider",
		},
		[]string{"provider", "status"},
	)
)

// Surface classifies a route template into the api, webhook or ops surface
func Surface(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/"):
		return SurfaceAPI
	case strings.HasPrefix(route, "/webhooks/"):
		return SurfaceWebhook
	default:
		return SurfaceOps
	}
}

// WebhookProvider is the provider segment of a webhook route, empty for other routes
func WebhookProvider(route string) string {
	rest, ok := strings.CutPrefix(route, "/webhooks/")
	if !ok {
		return ""
	}
	provider, _, _ := strings.Cut(rest, "/")
	return provider
}

func rejectionReason(status int) string {
	switch status {
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return "auth"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	}
	return ""
}

// Metrics records request counts and latencies labelled by surface and matched route template.
// Webhook callbacks are also counted per provider.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		surface := Surface(route)
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		httpRequestsTotal.WithLabelValues(surface, c.Method(), route, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(surface, route).Observe(time.Since(start).Seconds())
		if reason := rejectionReason(status); reason != "" {
			httpRejectedTotal.WithLabelValues(surface, reason).Inc()
		}
		if provider := WebhookProvider(route); provider != "" && c.Method() == fiber.MethodPost {
			webhookCallbacksTotal.WithLabelValues(provider, statusLabel).Inc()
		}

		return err
	}
}
