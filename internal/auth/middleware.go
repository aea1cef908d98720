package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by the middlewares
const (
	UserIDKey    = "user_id"
	UsernameKey  = "username"
	UserRolesKey = "user_roles"
	ClaimsKey    = "claims"
)

// Middleware authenticates gin requests with JWT bearer tokens
type Middleware struct {
	jwtManager *JWTManager
	logger     *zap.Logger
}

// NewMiddleware creates the authentication middleware
func NewMiddleware(jwtManager *JWTManager, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{jwtManager: jwtManager, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token, ok := BearerToken(c)
		if !ok {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			abort(c, http.StatusUnauthorized, "Missing or invalid authorization header", models.ErrCodeUnauthorized)
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := m.jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			m.logger.Warn("Invalid token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			abort(c, http.StatusUnauthorized, "Invalid or expired token", models.ErrCodeUnauthorized)
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("user.id", claims.UserID),
		)
		setClaims(c, claims)

		m.logger.Debug("User authenticated",
			zap.String("user_id", claims.UserID),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))

		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// lets the request through anonymously
func (m *Middleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.optional_auth")
		defer span.End()

		token, ok := BearerToken(c)
		if !ok {
			span.SetAttributes(attribute.Bool("auth.authenticated", false))
			c.Next()
			return
		}

		claims, err := m.jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.authenticated", false))
			m.logger.Debug("Ignoring invalid optional token", zap.Error(err))
			c.Next()
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.authenticated", true),
			attribute.String("user.id", claims.UserID),
		)
		setClaims(c, claims)
		c.Next()
	}
}

// RequireRole rejects authenticated users lacking role. Use after RequireAuth.
func (m *Middleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role")
		defer span.End()
		span.SetAttributes(attribute.String("required.role", role))

		roles, _ := c.Get(UserRolesKey)
		list, _ := roles.([]string)
		for _, r := range list {
			if r == role {
				span.SetAttributes(attribute.Bool("auth.role_authorized", true))
				c.Next()
				return
			}
		}

		userID, _ := UserID(c)
		span.SetAttributes(attribute.Bool("auth.role_authorized", false))
		m.logger.Warn("Insufficient permissions",
			zap.String("user_id", userID),
			zap.String("required_role", role))
		abort(c, http.StatusForbidden, "Insufficient permissions", models.ErrCodeForbidden)
	}
}

// UserID returns the authenticated user id, if any
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func setClaims(c *gin.Context, claims *Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(UsernameKey, claims.Username)
	c.Set(UserRolesKey, claims.Roles)
	c.Set(ClaimsKey, claims)
}

// BearerToken returns the token from the Authorization header
func BearerToken(c *gin.Context) (string, bool) {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Code: code})
}
