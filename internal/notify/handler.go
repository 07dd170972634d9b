package notify

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/response"
)

// LogLister reads email logs.
type LogLister interface {
	List(ctx context.Context, f LogFilter) ([]models.EmailLog, error)
}

// Handler serves the email log endpoints.
type Handler struct {
	logs   LogLister
	logger *zap.Logger
}

// NewHandler creates an email log handler.
func NewHandler(logs LogLister, logger *zap.Logger) *Handler {
	return &Handler{logs: logs, logger: logger}
}

// List handles GET /admin/email-logs. Mount behind RequireRole(admin).
// Filters: status, type, reference_id (an event, invitation or user id), limit (max 200).
func (h *Handler) List(c *gin.Context) {
	f := LogFilter{
		Status:    c.Query("status"),
		EmailType: c.Query("type"),
		Limit:     50,
	}
	switch f.Status {
	case "", models.EmailLogStatusQueued, models.EmailLogStatusSent, models.EmailLogStatusFailed:
	default:
		response.BadRequest(c, "status must be queued, sent or failed")
		return
	}
	if raw := c.Query("reference_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid reference_id")
			return
		}
		f.ReferenceID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, 200)
	}
	logs, err := h.logs.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list email logs", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, gin.H{"count": len(logs), "logs": logs})
}
