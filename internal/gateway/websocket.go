package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/models"
	"github.com/bizmatters/calculator-studio/internal/session"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 8 * 1024
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamRequest is a client message on the generation stream
type StreamRequest struct {
	Prompt string `json:"prompt"`
}

// StreamGeneration handles WebSocket /api/ws/generate
// @Summary Stream calculator generation
// @Description Client sends {"prompt": "..."}; server replies with a generating event followed by completed or error. The token may be passed as a query parameter for browsers.
// @Tags calculators
// @Param token query string false "JWT token"
// @Param Authorization header string false "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/generate [get]
func (h *Handler) StreamGeneration(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.stream_generation")
	defer span.End()

	userID, err := h.streamUserID(ctx, c)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("Rejected generation stream", zap.Error(err))
		respondError(c, http.StatusUnauthorized, "Missing or invalid token", models.ErrCodeUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	h.logger.Info("Generation stream opened", zap.String("user_id", userID))
	sess := h.sessions.Get(userID)

	for {
		var req StreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Generation stream read failed", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if err := h.streamOne(ctx, conn, sess, req.Prompt); err != nil {
			h.logger.Warn("Generation stream write failed", zap.String("user_id", userID), zap.Error(err))
			return
		}
	}
}

// streamOne runs one generation through the session guard and reports it on conn
func (h *Handler) streamOne(ctx context.Context, conn *websocket.Conn, sess *session.Session, prompt string) error {
	var writeErr error
	gen := func(ctx context.Context, p string) models.GenerationResult {
		writeErr = writeEvent(conn, models.GenerationEvent{EventType: models.EventTypeGenerating, Prompt: p})
		return h.generator.Generate(ctx, p)
	}

	result, err := sess.Run(ctx, prompt, gen)
	if err != nil {
		msg := "Failed to generate calculator"
		switch {
		case errors.Is(err, session.ErrAlreadyGenerating):
			msg = "A calculator is already being generated"
		case errors.Is(err, session.ErrEmptyPrompt):
			msg = "Prompt is required"
		}
		return writeEvent(conn, models.GenerationEvent{EventType: models.EventTypeError, Prompt: prompt, Error: msg})
	}
	if writeErr != nil {
		return writeErr
	}

	return writeEvent(conn, models.GenerationEvent{
		EventType: models.EventTypeCompleted,
		Prompt:    strings.TrimSpace(prompt),
		Result:    &result,
	})
}

func writeEvent(conn *websocket.Conn, ev models.GenerationEvent) error {
	ev.Timestamp = time.Now().UTC()
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// streamUserID authenticates the stream from the token query parameter or the
// Authorization header
func (h *Handler) streamUserID(ctx context.Context, c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c)
	}
	if token == "" {
		return "", errors.New("missing JWT token")
	}

	claims, err := h.jwtManager.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
