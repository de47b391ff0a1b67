package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Keys under which authentication data is stored in the Gin context
const (
	userIDKey          = "user_id"
	validatedClaimsKey = "validated_claims"
	currentUserKey     = "current_user"
)

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	Role      string `json:"role,omitempty"`
	FirstName string `json:"given_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Validate rejects tokens announcing a role outside the known vocabulary.
func (c CustomClaims) Validate(ctx context.Context) error {
	if c.Role != "" && !models.Role(c.Role).Valid() {
		return errors.New("unknown role claim")
	}
	return nil
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
// Tokens are signed with the shared HS256 secret. Paths under the public
// prefix pass through untouched.
func EnsureValidToken(cfg *config.Config, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	secret := []byte(cfg.JWTSecret)
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return secret, nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		logger.Fatal("failed to set up the jwt validator", zap.Error(err))
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("rejected jwt", zap.String("path", r.URL.Path), zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	publicPrefix := cfg.PublicPathPrefix

	return func(c *gin.Context) {
		if publicPrefix != "" && strings.HasPrefix(c.Request.URL.Path, publicPrefix) {
			c.Next()
			return
		}

		authenticated := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			// Store the validated claims in Gin context
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Set(userIDKey, token.RegisteredClaims.Subject)
			c.Set(validatedClaimsKey, token)
			authenticated = true

			c.Next()
		}

		// Use the JWT middleware to check the token
		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		// The error handler already wrote the 401; stop the chain here
		if !authenticated {
			c.Abort()
		}
	}
}

// GetUserID extracts the user ID (the token subject) from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(validatedClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// LoadUser resolves the token subject to a user record, creating the record
// the first time a subject is seen. New users take the role claim when
// present, DEFAULT otherwise.
func LoadUser(db func() *gorm.DB, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		username, err := GetUserID(c)
		if err != nil {
			abortWithAuthError(c, http.StatusUnauthorized, err.(*AuthError))
			return
		}

		user, err := findOrProvision(db(), username, c)
		if err != nil {
			logger.Error("failed to load user", zap.String("username", username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to load user profile",
				},
			})
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func findOrProvision(db *gorm.DB, username string, c *gin.Context) (*models.User, error) {
	var user models.User
	err := db.Where("username = ?", username).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{Username: username, Role: models.RoleDefault}
	if claims, err := GetClaims(c); err == nil {
		if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
			if custom.Role != "" {
				user.Role = models.Role(custom.Role)
			}
			user.FirstName = custom.FirstName
			user.Email = custom.Email
		}
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetCurrentUser returns the user loaded by LoadUser
func GetCurrentUser(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}

	user, ok := value.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}

	return user, nil
}

// RequireRole is a middleware that checks the current user holds one of roles
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := GetCurrentUser(c)
		if err != nil {
			abortWithAuthError(c, http.StatusUnauthorized, err.(*AuthError))
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INSUFFICIENT_ROLE",
				"message": "Insufficient permissions to access this resource",
			},
		})
		c.Abort()
	}
}

func abortWithAuthError(c *gin.Context, status int, err *AuthError) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    err.Code,
			"message": err.Message,
		},
	})
	c.Abort()
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
