package testutil

import (
	"fmt"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/middleware"
	"github.com/mfg-ops/ordrefab/models"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"
)

// Token defaults matching config.Load
const (
	TestJWTSecret   = "test-secret-do-not-use-in-production"
	TestJWTIssuer   = "ordrefab"
	TestJWTAudience = "ordrefab-api"
)

// MintToken signs an HS256 token for subject, carrying role as a custom claim
// when it is not empty
func MintToken(secret, issuer, audience, subject string, role models.Role, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	builder := jwt.Signed(signer).Claims(jwt.Claims{
		Subject:  subject,
		Issuer:   issuer,
		Audience: jwt.Audience{audience},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	})
	if role != "" {
		builder = builder.Claims(map[string]interface{}{"role": string(role)})
	}
	return builder.CompactSerialize()
}

// MustMintToken mints a one-hour token with the test secret, issuer and audience
func MustMintToken(subject string, role models.Role) string {
	token, err := MintToken(TestJWTSecret, TestJWTIssuer, TestJWTAudience, subject, role, time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject string, role models.Role) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  TestJWTIssuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role: string(role),
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing, as if
// EnsureValidToken and LoadUser had run for user
func SetMockAuthContext(c *gin.Context, user *models.User) {
	c.Set("user_id", user.Username)
	c.Set("validated_claims", MockValidatedClaims(user.Username, user.Role))
	c.Set("current_user", user)
}

// MockAuthMiddleware authenticates every request as user
func MockAuthMiddleware(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, user)
		c.Next()
	}
}

// CreateTestContext creates a test Gin context
func CreateTestContext() (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, engine := gin.CreateTestContext(nil)
	return c, engine
}
