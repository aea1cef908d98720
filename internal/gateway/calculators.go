package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/evaluator"
	"github.com/bizmatters/calculator-studio/internal/models"
	"github.com/bizmatters/calculator-studio/internal/session"
)

// GenerateRequest asks for a calculator spec
type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// EvaluateRequest carries a spec and the values entered for its fields.
// Values may be JSON strings or numbers.
type EvaluateRequest struct {
	Spec   models.CalculatorSpec `json:"spec"`
	Values map[string]any        `json:"values"`
}

// EvaluateValuesRequest carries values for a saved calculator
type EvaluateValuesRequest struct {
	Values map[string]any `json:"values"`
}

// GeneratorStatusResponse describes the configured provider
type GeneratorStatusResponse struct {
	Provider     string `json:"provider"`
	Configured   bool   `json:"configured"`
	Connected    bool   `json:"connected"`
	BreakerState string `json:"breaker_state"`
}

// GenerateCalculator godoc
// @Summary Generate a calculator spec
// @Description Turns a natural-language prompt into a calculator spec. Falls back to a keyword template when no model is available.
// @Tags calculators
// @Accept json
// @Produce json
// @Param request body GenerateRequest true "Prompt"
// @Success 200 {object} models.GenerationResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /calculators/generate [post]
func (h *Handler) GenerateCalculator(c *gin.Context) {
	var req GenerateRequest
	if !bindJSON(c, &req, "Prompt is required") {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Prompt is required")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.generate")
	defer span.End()

	userID, authenticated := auth.UserID(c)
	span.SetAttributes(attribute.Bool("auth.authenticated", authenticated))

	if !authenticated {
		c.JSON(http.StatusOK, h.generator.Generate(ctx, strings.TrimSpace(req.Prompt)))
		return
	}

	result, err := h.sessions.Get(userID).Run(ctx, req.Prompt, h.generator.Generate)
	switch {
	case errors.Is(err, session.ErrAlreadyGenerating):
		respondError(c, http.StatusConflict, "A calculator is already being generated", models.ErrCodeAlreadyGenerating)
		return
	case errors.Is(err, session.ErrEmptyPrompt):
		badRequest(c, "Prompt is required")
		return
	case err != nil:
		h.internalError(c, "Failed to generate calculator", err)
		return
	}

	span.SetAttributes(attribute.String("generation.source", string(result.Source)))
	c.JSON(http.StatusOK, result)
}

// EvaluateCalculator godoc
// @Summary Evaluate a calculator spec
// @Description Computes the display result for a spec and entered values
// @Tags calculators
// @Accept json
// @Produce json
// @Param request body EvaluateRequest true "Spec and values"
// @Success 200 {object} evaluator.Result
// @Failure 400 {object} models.ErrorResponse
// @Router /calculators/evaluate [post]
func (h *Handler) EvaluateCalculator(c *gin.Context) {
	var req EvaluateRequest
	if !bindJSON(c, &req, "Invalid request") {
		return
	}
	if len(req.Spec.Fields) == 0 {
		badRequest(c, "Spec must have at least one field")
		return
	}

	c.JSON(http.StatusOK, h.evaluate(c, req.Spec.Normalized(), req.Values))
}

// EvaluateSavedCalculator godoc
// @Summary Evaluate a saved calculator
// @Tags calculators
// @Accept json
// @Produce json
// @Param id path string true "Calculator ID"
// @Param request body EvaluateValuesRequest true "Values"
// @Success 200 {object} evaluator.Result
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id}/evaluate [post]
func (h *Handler) EvaluateSavedCalculator(c *gin.Context) {
	var req EvaluateValuesRequest
	if !bindJSON(c, &req, "Invalid request") {
		return
	}

	userID, _ := auth.UserID(c)
	calc, err := h.store.LoadCalculator(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.storeError(c, "Failed to load calculator", err)
		return
	}

	c.JSON(http.StatusOK, h.evaluate(c, calc.Spec, req.Values))
}

func (h *Handler) evaluate(c *gin.Context, spec models.CalculatorSpec, values map[string]any) evaluator.Result {
	res := evaluator.EvaluateDetailed(spec, stringValues(values))
	h.metrics.RecordEvaluation(c.Request.Context(), string(spec.Kind), string(res.Status))
	return res
}

// stringValues renders JSON values the way a form would submit them
func stringValues(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out
}

// GeneratorStatus godoc
// @Summary Generator status
// @Description Reports the configured provider, whether it answers and the breaker state
// @Tags calculators
// @Produce json
// @Success 200 {object} GeneratorStatusResponse
// @Router /generator/status [get]
func (h *Handler) GeneratorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, GeneratorStatusResponse{
		Provider:     h.generator.ProviderName(),
		Configured:   h.generator.HasProvider(),
		Connected:    h.generator.TestConnection(c.Request.Context()),
		BreakerState: h.generator.BreakerState(),
	})
}

// ListCalculators godoc
// @Summary Public gallery
// @Description Lists public calculators, newest first
// @Tags calculators
// @Produce json
// @Param template query bool false "Only templates"
// @Param category query string false "Category"
// @Param q query string false "Search title and description"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Calculator
// @Failure 400 {object} models.ErrorResponse
// @Router /calculators [get]
func (h *Handler) ListCalculators(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	public := true
	filter.IsPublic = &public
	if c.Query("template") == "true" {
		template := true
		filter.IsTemplate = &template
	}
	filter.Category = c.Query("category")
	filter.Search = c.Query("q")

	userID, _ := auth.UserID(c)
	calcs, err := h.store.ListCalculators(c.Request.Context(), filter, userID)
	if err != nil {
		h.internalError(c, "Failed to list calculators", err)
		return
	}
	c.JSON(http.StatusOK, calcs)
}

// ListMyCalculators godoc
// @Summary The caller's calculators
// @Tags calculators
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Calculator
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /me/calculators [get]
func (h *Handler) ListMyCalculators(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	userID, _ := auth.UserID(c)
	filter.UserID = userID

	calcs, err := h.store.ListCalculators(c.Request.Context(), filter, userID)
	if err != nil {
		h.internalError(c, "Failed to list calculators", err)
		return
	}

	h.sessions.Get(userID).SetSaved(calcs)
	c.JSON(http.StatusOK, calcs)
}

func listFilter(c *gin.Context) (models.ListFilter, bool) {
	var f models.ListFilter
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "Invalid "+p.name)
			return f, false
		}
		*p.dst = n
	}
	return f, true
}

// GetCalculator godoc
// @Summary Get a calculator
// @Description Returns a calculator and counts the view. Private calculators are visible to their owner only.
// @Tags calculators
// @Produce json
// @Param id path string true "Calculator ID"
// @Success 200 {object} models.Calculator
// @Failure 404 {object} models.ErrorResponse
// @Router /calculators/{id} [get]
func (h *Handler) GetCalculator(c *gin.Context) {
	userID, _ := auth.UserID(c)
	calc, err := h.store.GetCalculator(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.storeError(c, "Failed to load calculator", err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

// CreateCalculator godoc
// @Summary Save a calculator
// @Tags calculators
// @Accept json
// @Produce json
// @Param request body models.CreateCalculatorInput true "Calculator"
// @Success 201 {object} models.Calculator
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators [post]
func (h *Handler) CreateCalculator(c *gin.Context) {
	var in models.CreateCalculatorInput
	if !bindJSON(c, &in, "Invalid request") {
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Spec.Fields) == 0 {
		respondError(c, http.StatusBadRequest, "Title and at least one field are required", models.ErrCodeValidationFailed)
		return
	}

	userID, _ := auth.UserID(c)
	calc, err := h.store.CreateCalculator(c.Request.Context(), userID, in)
	if err != nil {
		h.storeError(c, "Failed to save calculator", err)
		return
	}

	h.logger.Info("Calculator saved",
		zap.String("calculator_id", calc.ID),
		zap.String("user_id", userID),
		zap.String("kind", string(calc.Spec.Kind)))
	c.JSON(http.StatusCreated, calc)
}

// UpdateCalculator godoc
// @Summary Update a calculator
// @Description Partial update; omitted fields keep their value. Owner only.
// @Tags calculators
// @Accept json
// @Produce json
// @Param id path string true "Calculator ID"
// @Param request body models.UpdateCalculatorInput true "Changes"
// @Success 200 {object} models.Calculator
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id} [put]
func (h *Handler) UpdateCalculator(c *gin.Context) {
	var in models.UpdateCalculatorInput
	if !bindJSON(c, &in, "Invalid request") {
		return
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		respondError(c, http.StatusBadRequest, "Title cannot be empty", models.ErrCodeValidationFailed)
		return
	}
	if in.Spec != nil && len(in.Spec.Fields) == 0 {
		respondError(c, http.StatusBadRequest, "Spec must have at least one field", models.ErrCodeValidationFailed)
		return
	}

	userID, _ := auth.UserID(c)
	calc, err := h.store.UpdateCalculator(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		h.storeError(c, "Failed to update calculator", err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

// DeleteCalculator godoc
// @Summary Delete a calculator
// @Tags calculators
// @Param id path string true "Calculator ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id} [delete]
func (h *Handler) DeleteCalculator(c *gin.Context) {
	userID, _ := auth.UserID(c)
	if err := h.store.DeleteCalculator(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.storeError(c, "Failed to delete calculator", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LikeCalculator godoc
// @Summary Like a calculator
// @Tags social
// @Param id path string true "Calculator ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id}/like [post]
func (h *Handler) LikeCalculator(c *gin.Context) {
	userID, _ := auth.UserID(c)
	if err := h.store.LikeCalculator(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.storeError(c, "Failed to like calculator", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnlikeCalculator godoc
// @Summary Remove a like
// @Tags social
// @Param id path string true "Calculator ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id}/like [delete]
func (h *Handler) UnlikeCalculator(c *gin.Context) {
	userID, _ := auth.UserID(c)
	if err := h.store.UnlikeCalculator(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.storeError(c, "Failed to unlike calculator", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ForkCalculator godoc
// @Summary Fork a calculator
// @Description Copies a visible calculator into the caller's private collection
// @Tags social
// @Produce json
// @Param id path string true "Calculator ID"
// @Success 201 {object} models.Calculator
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /calculators/{id}/fork [post]
func (h *Handler) ForkCalculator(c *gin.Context) {
	userID, _ := auth.UserID(c)
	calc, err := h.store.ForkCalculator(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.storeError(c, "Failed to fork calculator", err)
		return
	}
	c.JSON(http.StatusCreated, calc)
}
