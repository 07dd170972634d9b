package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/validation"
	"github.com/eventplanner/backend/pkg/response"
)

// SystemPrompt keeps the assistant on event-planning topics.
const SystemPrompt = `You are an AI assistant for an Event Planning application.
You can only help with:
- Event planning and management
- Organization features
- User authentication and profiles
- General event-related questions

You cannot and will not:
- Provide information about other systems or applications
- Share sensitive data like API keys, passwords, or personal information
- Generate code or technical implementation details
- Discuss topics unrelated to event planning

Keep responses focused on event planning functionality only.`

const (
	defaultHistory = 20
	maxHistory     = 100
)

// Completer produces assistant replies.
type Completer interface {
	Configured() bool
	Model() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Store persists chat exchanges.
type Store interface {
	SaveExchange(ctx context.Context, userID uuid.UUID, question, answer string) error
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Handler serves the assistant endpoints.
type Handler struct {
	llm    Completer
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a chat handler.
func NewHandler(llm Completer, store Store, logger *zap.Logger) *Handler {
	return &Handler{llm: llm, store: store, logger: logger, now: time.Now}
}

// MessageRequest is the body for POST /chat/message.
type MessageRequest struct {
	Message string `json:"message"`
}

// Message handles POST /chat/message.
func (h *Handler) Message(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	if !h.llm.Configured() {
		response.ServiceUnavailable(c, "AI assistant is not available right now")
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		response.BadRequest(c, "Message is required")
		return
	}
	question := validation.SanitizeChatInput(strings.TrimSpace(req.Message))

	ctx := c.Request.Context()
	reply, err := h.llm.Complete(ctx, []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: models.ChatRoleUser, Content: question},
	})
	switch {
	case errors.Is(err, ErrTimeout):
		h.logger.Warn("chat completion timed out", zap.String("user_id", userID.String()))
		response.GatewayTimeout(c, "The AI assistant took too long to respond. Please try again.")
		return
	case errors.Is(err, ErrNotConfigured):
		response.ServiceUnavailable(c, "AI assistant is not available right now")
		return
	case err != nil:
		h.logger.Error("chat completion", zap.String("user_id", userID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "AI assistant is temporarily unavailable")
		return
	}
	answer := validation.FilterChatResponse(reply)

	if err := h.store.SaveExchange(ctx, userID, question, answer); err != nil {
		h.logger.Warn("save chat exchange", zap.String("user_id", userID.String()), zap.Error(err))
	}
	response.OK(c, gin.H{"response": answer, "timestamp": h.now().UTC()})
}

// History handles GET /chat/history?limit=.
func (h *Handler) History(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	limit := defaultHistory
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}
	msgs, err := h.store.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("chat history", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to load chat history")
		return
	}
	response.OK(c, gin.H{"messages": msgs, "count": len(msgs)})
}

// Health handles GET /chat/health.
func (h *Handler) Health(c *gin.Context) {
	status := "ok"
	if !h.llm.Configured() {
		status = "unconfigured"
	}
	response.OK(c, gin.H{"status": status, "configured": h.llm.Configured(), "model": h.llm.Model()})
}
