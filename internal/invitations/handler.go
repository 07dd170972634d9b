package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/response"
)

// Store is the persistence the invitation handlers need.
type Store interface {
	ListActiveForEmail(ctx context.Context, email string) ([]models.PendingInvitation, error)
	GetPendingForEmail(ctx context.Context, id uuid.UUID, email string) (*models.Invitation, error)
	Accept(ctx context.Context, inv *models.Invitation, userID uuid.UUID, role models.Role) error
}

// UserStore loads users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OrgLoader loads organizations.
type OrgLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// TokenIssuer issues access tokens. Accepting changes role and organization, so a fresh token is returned.
type TokenIssuer interface {
	Generate(u *models.User) (string, error)
}

// Handler serves the invitee's side of organization invitations.
type Handler struct {
	store  Store
	users  UserStore
	orgs   OrgLoader
	tokens TokenIssuer
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an invitations handler.
func NewHandler(store Store, users UserStore, orgs OrgLoader, tokens TokenIssuer, logger *zap.Logger) *Handler {
	return &Handler{store: store, users: users, orgs: orgs, tokens: tokens, logger: logger, now: time.Now}
}

// AcceptRequest is the body for POST /auth/accept-invitation.
type AcceptRequest struct {
	InvitationID string `json:"invitation_id"`
}

// Mine handles GET /auth/my-invitations.
func (h *Handler) Mine(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.store.ListActiveForEmail(c.Request.Context(), user.Email)
	if err != nil {
		h.logger.Error("list my invitations", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to retrieve invitations")
		return
	}
	if list == nil {
		list = []models.PendingInvitation{}
	}
	response.OK(c, gin.H{"invitation_count": len(list), "invitations": list})
}

// Accept handles POST /auth/accept-invitation.
func (h *Handler) Accept(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req AcceptRequest
	_ = c.ShouldBindJSON(&req)
	if req.InvitationID == "" {
		response.BadRequest(c, "Invitation ID is required")
		return
	}
	invID, err := uuid.Parse(req.InvitationID)
	if err != nil {
		response.BadRequest(c, "invalid invitation id")
		return
	}
	ctx := c.Request.Context()

	inv, err := h.store.GetPendingForEmail(ctx, invID, user.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Invitation not found or already accepted")
			return
		}
		response.Internal(c, "failed to accept invitation")
		return
	}
	if inv.Expired(h.now()) {
		response.BadRequest(c, "Invitation has expired")
		return
	}
	if user.OrganizationID != nil {
		response.BadRequest(c, "You already belong to an organization. Please leave it first.")
		return
	}
	org, err := h.orgs.GetByID(ctx, inv.OrganizationID)
	if err != nil || org.IsDeleted {
		response.NotFound(c, "Organization no longer exists")
		return
	}

	newRole := models.RoleAfterAccept(user.Role, inv.Role)
	switch err := h.store.Accept(ctx, inv, user.ID, newRole); {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "Invitation not found or already accepted")
		return
	case errors.Is(err, ErrAlreadyInOrganization):
		response.BadRequest(c, "You already belong to an organization. Please leave it first.")
		return
	case err != nil:
		h.logger.Error("accept invitation", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
		response.Internal(c, "failed to accept invitation")
		return
	}

	user.Role = newRole
	user.OrganizationID = &org.ID
	token, err := h.tokens.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("invitation accepted", zap.String("invitation_id", inv.ID.String()), zap.String("user_id", user.ID.String()))
	response.OK(c, gin.H{
		"message":      fmt.Sprintf("Successfully joined %s", org.Name),
		"organization": org.Summary(),
		"new_role":     newRole,
		"token":        token,
	})
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	id, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, false
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "User not found")
			return nil, false
		}
		response.Internal(c, "failed to load user")
		return nil, false
	}
	return user, true
}
