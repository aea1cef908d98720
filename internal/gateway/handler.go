// Package gateway exposes the calculator API over HTTP and websocket.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/metrics"
	"github.com/bizmatters/calculator-studio/internal/models"
	"github.com/bizmatters/calculator-studio/internal/session"
	"github.com/bizmatters/calculator-studio/internal/store"
)

// CalculatorStore is the persistence the gateway depends on. *store.Store implements it.
type CalculatorStore interface {
	Ping(ctx context.Context) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateCalculator(ctx context.Context, userID string, in models.CreateCalculatorInput) (*models.Calculator, error)
	GetCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error)
	LoadCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error)
	UpdateCalculator(ctx context.Context, userID, calculatorID string, in models.UpdateCalculatorInput) (*models.Calculator, error)
	DeleteCalculator(ctx context.Context, userID, calculatorID string) error
	ListCalculators(ctx context.Context, f models.ListFilter, viewerID string) ([]*models.Calculator, error)
	LikeCalculator(ctx context.Context, userID, calculatorID string) error
	UnlikeCalculator(ctx context.Context, userID, calculatorID string) error
	ForkCalculator(ctx context.Context, userID, calculatorID string) (*models.Calculator, error)
}

// SpecGenerator produces calculator specs from prompts. *specgen.Generator implements it.
type SpecGenerator interface {
	Generate(ctx context.Context, prompt string) models.GenerationResult
	ProviderName() string
	HasProvider() bool
	BreakerState() string
	TestConnection(ctx context.Context) bool
}

var gatewayTracer = otel.Tracer("gateway")

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	store      CalculatorStore
	generator  SpecGenerator
	sessions   *session.Manager
	jwtManager *auth.JWTManager
	metrics    *metrics.CalculatorMetrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewHandler creates a new gateway handler
func NewHandler(
	st CalculatorStore,
	generator SpecGenerator,
	sessions *session.Manager,
	jwtManager *auth.JWTManager,
	m *metrics.CalculatorMetrics,
	logger *zap.Logger,
) *Handler {
	if sessions == nil {
		sessions = session.NewManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:      st,
		generator:  generator,
		sessions:   sessions,
		jwtManager: jwtManager,
		metrics:    m,
		logger:     logger,
		tracer:     gatewayTracer,
	}
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Reports ready once the database answers a ping
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ready [get]
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "Invalid request") {
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.internalError(c, "Failed to look up user", err)
			return
		}
		h.logger.Warn("User not found", zap.String("email", req.Email))
		respondError(c, http.StatusUnauthorized, "Invalid email or password", models.ErrCodeUnauthorized)
		return
	}

	if !auth.CheckPassword(user.HashedPassword, req.Password) {
		h.logger.Warn("Invalid password", zap.String("email", req.Email))
		respondError(c, http.StatusUnauthorized, "Invalid email or password", models.ErrCodeUnauthorized)
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(c.Request.Context(), user.ID, user.Email, []string{"user"})
	if err != nil {
		h.internalError(c, "Failed to generate token", err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToUserInfo(),
	})
}

// RefreshToken godoc
// @Summary Refresh JWT
// @Description Exchanges a valid token for a new one with a full lifetime
// @Tags auth
// @Produce json
// @Success 200 {object} models.TokenResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	token, ok := auth.BearerToken(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Missing or invalid authorization header", models.ErrCodeUnauthorized)
		return
	}

	refreshed, expiresAt, err := h.jwtManager.RefreshToken(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("Token refresh rejected", zap.Error(err))
		respondError(c, http.StatusUnauthorized, "Invalid or expired token", models.ErrCodeUnauthorized)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     refreshed,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(h.jwtManager.TTL().Seconds()),
	})
}

// GetSession godoc
// @Summary Current generation session
// @Description Returns the caller's last prompt, generation state and current spec
// @Tags session
// @Produce json
// @Success 200 {object} session.Snapshot
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /session [get]
func (h *Handler) GetSession(c *gin.Context) {
	userID, _ := auth.UserID(c)
	c.JSON(http.StatusOK, h.sessions.Get(userID).Snapshot())
}

// ResetSession godoc
// @Summary Clear the generation session
// @Tags session
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /session [delete]
func (h *Handler) ResetSession(c *gin.Context) {
	userID, _ := auth.UserID(c)
	if err := h.sessions.Reset(userID); err != nil {
		respondError(c, http.StatusConflict, "A calculator is already being generated", models.ErrCodeAlreadyGenerating)
		return
	}
	c.Status(http.StatusNoContent)
}

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

// LimitBody rejects request bodies larger than n bytes once they are read
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// bindJSON decodes the body into obj, answering 413 or 400 on failure
func bindJSON(c *gin.Context, obj any, message string) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "Request body too large", models.ErrCodeRequestTooLarge)
		return false
	}
	badRequest(c, message)
	return false
}

func respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message, models.ErrCodeInvalidRequest)
}

func (h *Handler) internalError(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	h.logger.Error(message, zap.Error(err), zap.String("path", c.Request.URL.Path))
	respondError(c, http.StatusInternalServerError, message, models.ErrCodeInternalError)
}

// storeError maps store sentinels onto HTTP responses
func (h *Handler) storeError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "Calculator not found", models.ErrCodeNotFound)
	case errors.Is(err, store.ErrForbidden):
		respondError(c, http.StatusForbidden, "You do not own this calculator", models.ErrCodeForbidden)
	case errors.Is(err, store.ErrAlreadyExists):
		respondError(c, http.StatusConflict, "Already exists", models.ErrCodeAlreadyExists)
	default:
		h.internalError(c, message, err)
	}
}
