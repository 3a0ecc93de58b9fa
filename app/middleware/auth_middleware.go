// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware resolves the calling tenant from a bearer token
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the JWT and stores tenant, user and role in locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTHORIZATION_HEADER", "Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "MISSING_ACCESS_TOKEN", "Access token is required")
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "TOKEN_EXPIRED", "Access token has expired")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "TOKEN_INVALID", "Invalid access token")
			default:
				return unauthorized(c, "TOKEN_VALIDATION_FAILED", "Token validation failed")
			}
		}

		c.Locals("tenant_id", claims.TenantID)
		c.Locals("user_id", claims.UserID)
		c.Locals("token_id", claims.TokenID)
		c.Locals("token_claims", claims)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// SharedSecret guards webhook endpoints that authenticate with a static header value.
// An empty secret disables the check.
func SharedSecret(header, secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		got := c.Get(header)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return unauthorized(c, "INVALID_WEBHOOK_SECRET", "Invalid webhook secret")
		}
		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// GetTenantIDFromContext extracts tenant ID from the request context
func GetTenantIDFromContext(c fiber.Ctx) (uint, bool) {
	tenantID, ok := c.Locals("tenant_id").(uint)
	return tenantID, ok && tenantID != 0
}

// GetUserIDFromContext extracts the acting user; zero means a service token
func GetUserIDFromContext(c fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("user_id").(uint)
	return userID, ok && userID != 0
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals("token_claims").(*services.TokenClaims)
	return claims, ok
}

// RequireTenant writes a 401 when no tenant was authenticated
func RequireTenant(c fiber.Ctx) error {
	if _, ok := GetTenantIDFromContext(c); !ok {
		return unauthorized(c, "AUTHENTICATION_REQUIRED", "Authentication required")
	}
	return nil
}
