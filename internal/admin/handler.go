package admin

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/organizations"
	"github.com/eventplanner/backend/pkg/response"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	maxPage        = 1_000_000 // keeps the offset far from overflow
)

// Store is the persistence the admin handlers need.
type Store interface {
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, int, error)
	SetRole(ctx context.Context, id uuid.UUID, role models.Role, orgID *uuid.UUID) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*Stats, error)
}

// OrgStore is the part of the organizations repository admins drive.
type OrgStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (organizations.DeleteResult, error)
	Restore(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Handler serves the /admin endpoints. Routes are mounted behind RequireRole(admin).
type Handler struct {
	store  Store
	orgs   OrgStore
	logger *zap.Logger
}

// NewHandler creates an admin handler.
func NewHandler(store Store, orgs OrgStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, orgs: orgs, logger: logger}
}

// SetRoleRequest is the body for PUT /admin/users/:id/role.
type SetRoleRequest struct {
	Role           string  `json:"role" binding:"required"`
	OrganizationID *string `json:"organization_id"`
}

// Users handles GET /admin/users?page&per_page&search&role.
func (h *Handler) Users(c *gin.Context) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		response.BadRequest(c, "page must be a positive integer")
		return
	}
	if page > maxPage {
		response.BadRequest(c, "page is out of range")
		return
	}
	perPage, err := positiveQuery(c, "per_page", defaultPerPage)
	if err != nil {
		response.BadRequest(c, "per_page must be a positive integer")
		return
	}
	perPage = min(perPage, maxPerPage)
	f := UserFilter{Search: c.Query("search"), Limit: perPage, Offset: (page - 1) * perPage}
	if r := c.Query("role"); r != "" {
		f.Role = models.Role(r)
		if !f.Role.Valid() {
			response.BadRequest(c, "invalid role")
			return
		}
	}
	users, total, err := h.store.ListUsers(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("admin list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	out := make([]models.UserPublic, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToPublic())
	}
	response.OK(c, gin.H{
		"users": out,
		"pagination": gin.H{
			"page":        page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + perPage - 1) / perPage,
		},
	})
}

// SetRole handles PUT /admin/users/:id/role. Organization roles need an active organization;
// guest and admin leave any organization.
func (h *Handler) SetRole(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role is required")
		return
	}
	role := models.Role(req.Role)
	if !role.Valid() {
		response.BadRequest(c, "Invalid role. Must be one of: admin, organizer, team_member, guest")
		return
	}
	if self, _ := auth.CurrentUserID(c); self == id && role != models.RoleAdmin {
		response.BadRequest(c, "You cannot remove your own admin role")
		return
	}

	ctx := c.Request.Context()
	var orgID *uuid.UUID
	if role == models.RoleOrganizer || role == models.RoleTeamMember {
		if req.OrganizationID == nil || *req.OrganizationID == "" {
			response.BadRequest(c, "organization_id is required for organizer and team_member roles")
			return
		}
		oid, err := uuid.Parse(*req.OrganizationID)
		if err != nil {
			response.BadRequest(c, "invalid organization id")
			return
		}
		org, err := h.orgs.GetByID(ctx, oid)
		if err != nil || org.IsDeleted {
			response.BadRequest(c, "Organization not found or deleted")
			return
		}
		orgID = &org.ID
	}

	user, err := h.store.SetRole(ctx, id, role, orgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		h.logger.Error("admin set role", zap.String("user_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to update role")
		return
	}
	h.logger.Info("user role changed", zap.String("user_id", id.String()), zap.String("role", string(role)))
	response.OK(c, user.ToPublic())
}

// DeleteUser handles DELETE /admin/users/:id.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := h.userParam(c)
	if !ok {
		return
	}
	if self, _ := auth.CurrentUserID(c); self == id {
		response.BadRequest(c, "You cannot delete your own account")
		return
	}
	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		h.logger.Error("admin delete user", zap.String("user_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to delete user")
		return
	}
	h.logger.Info("user deleted", zap.String("user_id", id.String()))
	response.OK(c, gin.H{"message": "User deleted successfully"})
}

// DeleteOrganization handles DELETE /admin/organizations/:id.
func (h *Handler) DeleteOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	res, err := h.orgs.SoftDelete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Organization not found or already deleted")
			return
		}
		h.logger.Error("admin delete organization", zap.String("org_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to delete organization")
		return
	}
	h.logger.Info("organization deleted by admin", zap.String("org_id", id.String()), zap.Int64("affected_users", res.AffectedUsers))
	response.OK(c, res)
}

// RestoreOrganization handles POST /admin/organizations/:id/restore. Former members are not re-attached.
func (h *Handler) RestoreOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	ctx := c.Request.Context()
	org, err := h.orgs.Restore(ctx, id)
	if err == nil {
		h.logger.Info("organization restored", zap.String("org_id", id.String()))
		response.OK(c, org)
		return
	}
	if !errors.Is(err, models.ErrNotFound) {
		h.logger.Error("admin restore organization", zap.String("org_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to restore organization")
		return
	}
	// Restore matched nothing: find out why.
	existing, lookupErr := h.orgs.GetByID(ctx, id)
	switch {
	case errors.Is(lookupErr, models.ErrNotFound):
		response.NotFound(c, "Organization not found")
	case lookupErr != nil:
		response.Internal(c, "failed to restore organization")
	case !existing.IsDeleted:
		response.BadRequest(c, "Organization is not deleted")
	default:
		response.Conflict(c, "Another active organization now uses this name")
	}
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(c *gin.Context) {
	s, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("admin stats", zap.Error(err))
		response.Internal(c, "failed to load statistics")
		return
	}
	response.OK(c, s)
}

func (h *Handler) userParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New(key + " must be positive")
	}
	return n, nil
}
