package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/bizmatters/calculator-studio/internal/auth"
)

// RegisterRoutes mounts the health probes at the root and the API under /api
func RegisterRoutes(router *gin.Engine, h *Handler, mw *auth.Middleware) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api")
	api.Use(LimitBody(MaxBodyBytes))
	api.GET("/health", h.Health)
	api.POST("/auth/login", h.Login)

	// Public routes; a valid token personalizes the response
	public := api.Group("")
	public.Use(mw.OptionalAuth())
	public.POST("/calculators/generate", h.GenerateCalculator)
	public.POST("/calculators/evaluate", h.EvaluateCalculator)
	public.GET("/generator/status", h.GeneratorStatus)
	public.GET("/calculators", h.ListCalculators)
	public.GET("/calculators/:id", h.GetCalculator)

	// The stream authenticates itself since browsers cannot set headers on upgrade
	api.GET("/ws/generate", h.StreamGeneration)

	protected := api.Group("")
	protected.Use(mw.RequireAuth())
	protected.POST("/calculators", h.CreateCalculator)
	protected.PUT("/calculators/:id", h.UpdateCalculator)
	protected.DELETE("/calculators/:id", h.DeleteCalculator)
	protected.POST("/calculators/:id/evaluate", h.EvaluateSavedCalculator)
	protected.POST("/calculators/:id/like", h.LikeCalculator)
	protected.DELETE("/calculators/:id/like", h.UnlikeCalculator)
	protected.POST("/calculators/:id/fork", h.ForkCalculator)
	protected.GET("/me/calculators", h.ListMyCalculators)
	protected.POST("/auth/refresh", h.RefreshToken)
	protected.GET("/session", h.GetSession)
	protected.DELETE("/session", h.ResetSession)
}
