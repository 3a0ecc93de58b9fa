package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/handlers"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/middleware"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *fiber.App {
	t.Helper()
	cfg := &config.ProductionConfig{
		Server: config.ServerConfig{BodyLimit: 1 << 20, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Security: config.SecurityConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			GlobalRateLimit:  100,
			GlobalRateWindow: time.Minute,
		},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Webhooks: config.WebhookConfig{SharedSecret: "s3cret"},
	}
	tokens, err := services.NewTokenService(time.Hour, "iss", "aud", false, "", "", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	log := logging.Discard()
	// Flows are never reached: every request below stops in middleware
	h := Handlers{
		Messages:   handlers.NewMessageHandler(nil, log),
		Templates:  handlers.NewTemplateHandler(nil, log),
		Automation: handlers.NewAutomationHandler(nil, log),
		Webhooks:   handlers.NewWebhookHandler(nil, "verify-me", log),
	}
	r := NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokens), log)
	r.SetupRoutes()
	return r.GetApp()
}

func decode(t *testing.T, resp *http.Response) dto.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var body dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRouter_Health(t *testing.T) {
	app := newTestRouter(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.True(t, decode(t, resp).Success)
}

func TestRouter_APIRequiresToken(t *testing.T) {
	app := newTestRouter(t)

	for _, path := range []string{"/api/v1/messages", "/api/v1/templates", "/api/v1/automation/rules"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestRouter_NotFound(t *testing.T) {
	app := newTestRouter(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ROUTE_NOT_FOUND", decode(t, resp).Error.(map[string]any)["code"])
}

func TestRouter_MockWebhookNeedsSecret(t *testing.T) {
	app := newTestRouter(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/mock", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRouter_WhatsAppVerify(t *testing.T) {
	app := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRouter_Metrics(t *testing.T) {
	app := newTestRouter(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
