package services

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenService issues and verifies tenant-scoped access tokens
type TokenService interface {
	GenerateAccessToken(tenantID, userID uint, role string) (string, error)
	ValidateToken(token string) (*TokenClaims, error)
}

// TokenClaims represents the claims carried by an access token
type TokenClaims struct {
	TenantID  uint      `json:"tenant_id"`
	UserID    uint      `json:"user_id"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type accessClaims struct {
	TenantID uint   `json:"tenant_id"`
	UserID   uint   `json:"user_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	ttl           time.Duration
	issuer        string
	audience      string
	signingMethod jwt.SigningMethod
	signKey       any
	verifyKey     any
}

// NewTokenService creates a token service using HS256, or RS256 when useRSAKeys is set
func NewTokenService(ttl time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	svc := &TokenServiceImpl{ttl: ttl, issuer: issuer, audience: audience}

	if useRSAKeys {
		priv, pub, err := parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		svc.signingMethod = jwt.SigningMethodRS256
		svc.signKey, svc.verifyKey = priv, pub
		return svc, nil
	}

	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required when not using RSA keys")
	}
	svc.signingMethod = jwt.SigningMethodHS256
	svc.signKey, svc.verifyKey = []byte(secretKey), []byte(secretKey)
	return svc, nil
}

func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("both private and public keys are required")
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return priv, pub, nil
}

// GenerateAccessToken signs a token for a tenant member
func (s *TokenServiceImpl) GenerateAccessToken(tenantID, userID uint, role string) (string, error) {
	now := utils.UTCNow()
	claims := accessClaims{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(s.signingMethod, claims)
	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry, issuer and audience and returns the claims
func (s *TokenServiceImpl) ValidateToken(token string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.TenantID == 0 {
		return nil, ErrTokenInvalid
	}

	out := &TokenClaims{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
