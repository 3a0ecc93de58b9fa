package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface(t *testing.T) {
	assert.Equal(t, SurfaceAPI, Surface("/api/v1/messages/:id/retry"))
	assert.Equal(t, SurfaceWebhook, Surface("/webhooks/twilio"))
	assert.Equal(t, SurfaceOps, Surface("/health"))
	assert.Equal(t, SurfaceOps, Surface("/metrics"))
}

func TestWebhookProvider(t *testing.T) {
	assert.Equal(t, "whatsapp", WebhookProvider("/webhooks/whatsapp"))
	assert.Equal(t, "ses", WebhookProvider("/webhooks/ses/"))
	assert.Empty(t, WebhookProvider("/api/v1/messages"))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Post("/webhooks/twilio", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/api/v1/messages/:id/retry", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusTooManyRequests) })

	twilioBefore := counterValue(t, webhookCallbacksTotal.WithLabelValues("twilio", "200"))
	limitedBefore := counterValue(t, httpRejectedTotal.WithLabelValues(SurfaceAPI, "rate_limited"))
	routeBefore := counterValue(t, httpRequestsTotal.WithLabelValues(SurfaceAPI, http.MethodPost, "/api/v1/messages/:id/retry", "429"))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/twilio", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/messages/12/retry", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, twilioBefore+1, counterValue(t, webhookCallbacksTotal.WithLabelValues("twilio", "200")))
	assert.Equal(t, limitedBefore+1, counterValue(t, httpRejectedTotal.WithLabelValues(SurfaceAPI, "rate_limited")))
	assert.Equal(t, routeBefore+1,
		counterValue(t, httpRequestsTotal.WithLabelValues(SurfaceAPI, http.MethodPost, "/api/v1/messages/:id/retry", "429")))
}
