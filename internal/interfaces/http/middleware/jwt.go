package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	orderapp "github.com/jdfresh/backend/internal/application/order"
	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/infrastructure/auth"
	"github.com/jdfresh/backend/internal/interfaces/http/dto"
)

// Context keys for JWT claims
const (
	// JWTClaimsKey is the context key for the full JWT claims
	JWTClaimsKey = "jwt_claims"
	// JWTUserIDKey is the context key for the user ID from JWT
	JWTUserIDKey = "jwt_user_id"
	// JWTUserNameKey is the context key for the user name from JWT
	JWTUserNameKey = "jwt_user_name"
	// JWTRoleKey is the context key for the user role from JWT
	JWTRoleKey = "jwt_role"
)

// JWTMiddlewareConfig configures the JWT authentication middleware
type JWTMiddlewareConfig struct {
	// JWTService for token validation
	JWTService *auth.JWTService

	// TokenBlacklist for checking revoked tokens (optional)
	TokenBlacklist auth.TokenBlacklist

	// SkipPaths are exact paths that bypass authentication
	SkipPaths []string

	// SkipPathPrefixes are path prefixes that bypass authentication
	SkipPathPrefixes []string

	// Logger for auth events
	Logger *zap.Logger
}

// JWTAuthMiddleware creates a JWT authentication middleware.
// It validates the Bearer token, rejects revoked tokens, and stores the
// claims on the request context for handlers downstream.
func JWTAuthMiddleware(config JWTMiddlewareConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		for _, skipPath := range config.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range config.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		tokenString, err := extractBearerToken(c)
		if err != nil {
			handleAuthError(c, err)
			return
		}

		claims, err := config.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			logger.Debug("Token validation failed",
				zap.String("path", path),
				zap.Error(err))
			handleAuthError(c, err)
			return
		}

		if config.TokenBlacklist != nil {
			revoked, err := config.TokenBlacklist.IsBlacklisted(c.Request.Context(), claims.ID)
			if err != nil {
				// Fail open on blacklist errors so an unavailable store
				// does not lock every user out
				logger.Warn("Token blacklist check failed",
					zap.String("jti", claims.ID),
					zap.Error(err))
			} else if revoked {
				handleAuthError(c, auth.ErrTokenBlacklisted)
				return
			}

			invalidated, err := config.TokenBlacklist.IsUserTokenInvalidated(
				c.Request.Context(), claims.UserID, claims.GetIssuedAtTime())
			if err != nil {
				logger.Warn("User token invalidation check failed",
					zap.String("user_id", claims.UserID),
					zap.Error(err))
			} else if invalidated {
				handleAuthError(c, auth.ErrTokenBlacklisted)
				return
			}
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTUserNameKey, claims.Name)
		c.Set(JWTRoleKey, claims.Role)

		c.Next()
	}
}

// OptionalJWTAuthMiddleware validates a token when present but lets
// unauthenticated requests through. Useful for endpoints that serve both
// anonymous and signed-in users.
func OptionalJWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c)
		if err != nil {
			c.Next()
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			c.Next()
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTUserNameKey, claims.Name)
		c.Set(JWTRoleKey, claims.Role)

		c.Next()
	}
}

// RequireRole creates a middleware that only lets the given roles through.
// It must run after JWTAuthMiddleware.
func RequireRole(roles ...identity.Role) gin.HandlerFunc {
	allowed := make(map[identity.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := GetJWTClaims(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		if _, ok := allowed[identity.Role(claims.Role)]; !ok {
			abortWithError(c, http.StatusForbidden, dto.ErrCodeForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header
func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", auth.ErrInvalidToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}

	return parts[1], nil
}

// handleAuthError writes an appropriate error response for auth failures
func handleAuthError(c *gin.Context, err error) {
	code := dto.ErrCodeTokenInvalid
	message := "Invalid authentication token"

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code = dto.ErrCodeTokenExpired
		message = "Authentication token has expired"
	case errors.Is(err, auth.ErrTokenBlacklisted):
		message = "Authentication token has been revoked"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		message = "Authentication token is not yet valid"
	case errors.Is(err, auth.ErrInvalidTokenType):
		message = "Wrong token type for this endpoint"
	}

	abortWithError(c, http.StatusUnauthorized, code, message)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	requestID := c.GetString(RequestIDKey)
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// GetJWTClaims retrieves the JWT claims from the gin context
func GetJWTClaims(c *gin.Context) (*auth.Claims, bool) {
	value, exists := c.Get(JWTClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

// GetJWTUserID retrieves the authenticated user ID from the gin context
func GetJWTUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get(JWTUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok
}

// GetActor builds the acting principal from the authenticated claims.
// Returns false when the request is unauthenticated or the user ID is
// malformed.
func GetActor(c *gin.Context) (orderapp.Actor, bool) {
	claims, ok := GetJWTClaims(c)
	if !ok {
		return orderapp.Actor{}, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return orderapp.Actor{}, false
	}
	return orderapp.Actor{ID: id, Role: identity.Role(claims.Role)}, true
}
