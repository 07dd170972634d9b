package organizations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

// Store is the persistence the organization handlers need.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindByName(ctx context.Context, name string) (*models.Organization, error)
	ActiveNameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error)
	CreateForUser(ctx context.Context, name, description string, userID uuid.UUID) (*models.Organization, error)
	List(ctx context.Context, filter string) ([]models.Organization, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Organization, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (DeleteResult, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error)
	ChangeMemberRole(ctx context.Context, orgID, userID uuid.UUID, role models.Role) error
	CreateInvitation(ctx context.Context, inv *models.Invitation, now time.Time) (*models.Invitation, error)
	ListActiveInvitations(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error)
}

// UserStore loads users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Notifier queues invitation emails. invitee is nil when the address is not registered yet.
type Notifier interface {
	OrganizationInvitation(ctx context.Context, inv *models.Invitation, org *models.Organization, inviter, invitee *models.User) error
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	store    Store
	users    UserStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates an organizations handler.
func NewHandler(store Store, users UserStore, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, users: users, notifier: notifier, logger: logger, now: time.Now}
}

// CreateOrganizationRequest is the body for POST /organizations/create.
type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateOrganizationRequest is the body for PUT /organizations/:id.
type UpdateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// InviteRequest is the body for POST /organizations/:id/invite.
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ChangeRoleRequest is the body for PUT /organizations/:id/members/:memberId/role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// Create handles POST /organizations/create. The caller joins the new organization.
func (h *Handler) Create(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.Role != models.RoleOrganizer {
		response.Forbidden(c, "Only organizers can create organizations")
		return
	}
	ctx := c.Request.Context()
	if user.OrganizationID != nil {
		response.BadRequest(c, "You already belong to an organization. Please leave it first before creating a new one.")
		return
	}
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := validation.First(validation.OrganizationName(name), validation.OrganizationDescription(req.Description)); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if existing, err := h.store.FindByName(ctx, name); err == nil {
		if existing.IsDeleted {
			response.Conflict(c, fmt.Sprintf("Organization name '%s' was previously used by a deleted organization. Please choose a different name.", name))
			return
		}
		response.Conflict(c, fmt.Sprintf("Organization name '%s' already exists. Please choose a different name.", name))
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		h.logger.Error("lookup organization name", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}

	org, err := h.store.CreateForUser(ctx, name, strings.TrimSpace(req.Description), user.ID)
	switch {
	case errors.Is(err, ErrNameTaken):
		response.Conflict(c, fmt.Sprintf("Organization name '%s' already exists. Please choose a different name.", name))
		return
	case errors.Is(err, ErrAlreadyMember):
		response.BadRequest(c, "You already belong to an organization. Please leave it first before creating a new one.")
		return
	case err != nil:
		h.logger.Error("create organization", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	h.logger.Info("organization created", zap.String("org_id", org.ID.String()), zap.String("user_id", user.ID.String()))
	response.Created(c, org)
}

// List handles GET /organizations/list and /organizations/list/:filter (admin).
func (h *Handler) List(c *gin.Context) {
	filter := c.Param("filter")
	if filter == "" {
		filter = FilterActive
	}
	if filter != FilterAll && filter != FilterActive && filter != FilterDeleted {
		response.BadRequest(c, "Invalid filter type. Must be 'all', 'active', or 'deleted'")
		return
	}
	list, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list organizations", zap.Error(err))
		response.Internal(c, "failed to retrieve organizations")
		return
	}
	if list == nil {
		list = []models.Organization{}
	}
	response.OK(c, gin.H{"filter_type": filter, "count": len(list), "organizations": list})
}

// Get handles GET /organizations/:id.
func (h *Handler) Get(c *gin.Context) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if !CanView(user, org.ID) {
		response.Forbidden(c, "You can only view your own organization")
		return
	}
	members, err := h.store.ListMembers(c.Request.Context(), org.ID)
	if err != nil {
		h.logger.Error("list members", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to retrieve organization")
		return
	}
	members = markCurrent(members, user.ID)
	response.OK(c, gin.H{
		"organization": org,
		"members":      members,
		"member_count": len(members),
	})
}

// Update handles PUT /organizations/:id.
func (h *Handler) Update(c *gin.Context) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if !IsOrganizerOf(user, org.ID) {
		response.Forbidden(c, "Only organizers can update their own organization")
		return
	}
	if org.IsDeleted {
		response.BadRequest(c, "Cannot update a deleted organization")
		return
	}
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validation.OrganizationName(name); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		taken, err := h.store.ActiveNameTaken(ctx, name, org.ID)
		if err != nil {
			response.Internal(c, "failed to update organization")
			return
		}
		if taken {
			response.Conflict(c, "An organization with this name already exists")
			return
		}
		req.Name = &name
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if err := validation.OrganizationDescription(desc); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.Description = &desc
	}
	updated, err := h.store.Update(ctx, org.ID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			response.Conflict(c, "An organization with this name already exists")
			return
		}
		h.logger.Error("update organization", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update organization")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /organizations/:id. Organizers delete their own organization; admins any.
func (h *Handler) Delete(c *gin.Context) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if user.Role != models.RoleAdmin && !IsOrganizerOf(user, org.ID) {
		response.Forbidden(c, "You can only delete your own organization")
		return
	}
	if org.IsDeleted {
		response.BadRequest(c, "Organization is already deleted")
		return
	}
	res, err := h.store.SoftDelete(c.Request.Context(), org.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.BadRequest(c, "Organization is already deleted")
			return
		}
		h.logger.Error("delete organization", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to delete organization")
		return
	}
	h.logger.Info("organization deleted", zap.String("org_id", org.ID.String()),
		zap.Int64("affected_users", res.AffectedUsers), zap.Int64("cancelled_invitations", res.CancelledInvitations))
	response.OK(c, res)
}

// Leave handles POST /organizations/leave. The sole organizer cannot leave.
func (h *Handler) Leave(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.OrganizationID == nil {
		response.BadRequest(c, "You are not a member of any organization")
		return
	}
	err := h.store.ChangeMemberRole(c.Request.Context(), *user.OrganizationID, user.ID, models.RoleGuest)
	switch {
	case errors.Is(err, ErrLastOrganizer):
		response.BadRequest(c, "You cannot leave the organization as you are the only organizer. Please transfer ownership or delete the organization first.")
		return
	case errors.Is(err, ErrNotMember):
		response.BadRequest(c, "You are not a member of any organization")
		return
	case err != nil:
		h.logger.Error("leave organization", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to leave organization")
		return
	}
	response.OK(c, gin.H{"message": "Successfully left the organization", "new_role": models.RoleGuest})
}

// Members handles GET /organizations/:id/members.
func (h *Handler) Members(c *gin.Context) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if org.IsDeleted {
		response.BadRequest(c, "Cannot view members of a deleted organization")
		return
	}
	if !CanView(user, org.ID) {
		response.Forbidden(c, "You can only view members of your own organization")
		return
	}
	members, err := h.store.ListMembers(c.Request.Context(), org.ID)
	if err != nil {
		h.logger.Error("list members", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to retrieve organization members")
		return
	}
	members = markCurrent(members, user.ID)
	response.OK(c, gin.H{
		"organization": org.Summary(),
		"member_count": len(members),
		"members":      members,
	})
}

// RemoveMember handles DELETE /organizations/:id/members/:memberId.
func (h *Handler) RemoveMember(c *gin.Context) {
	h.changeMember(c, models.RoleGuest, true)
}

// ChangeMemberRole handles PUT /organizations/:id/members/:memberId/role. Changing to guest removes the member.
func (h *Handler) ChangeMemberRole(c *gin.Context) {
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Role == "" {
		response.BadRequest(c, "Role is required")
		return
	}
	role := models.Role(req.Role)
	if !role.OrgRole() {
		response.BadRequest(c, "Invalid role. Valid roles are: guest, team_member, organizer")
		return
	}
	h.changeMember(c, role, false)
}

func (h *Handler) changeMember(c *gin.Context, role models.Role, removal bool) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if !IsOrganizerOf(user, org.ID) {
		response.Forbidden(c, "Only organizers can manage members of their own organization")
		return
	}
	if org.IsDeleted {
		response.BadRequest(c, "Organization has been deleted")
		return
	}
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}
	ctx := c.Request.Context()
	member, err := h.users.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Member not found")
			return
		}
		response.Internal(c, "failed to load member")
		return
	}
	if !member.InOrganization(org.ID) {
		response.BadRequest(c, "User is not a member of this organization")
		return
	}
	err = h.store.ChangeMemberRole(ctx, org.ID, member.ID, role)
	switch {
	case errors.Is(err, ErrLastOrganizer):
		if removal {
			response.BadRequest(c, "Cannot remove the last organizer. Please promote another member to organizer first or delete the organization.")
		} else {
			response.BadRequest(c, "Cannot demote the last organizer. Please promote another member to organizer first.")
		}
		return
	case errors.Is(err, ErrNotMember):
		response.BadRequest(c, "User is not a member of this organization")
		return
	case err != nil:
		h.logger.Error("set member role", zap.String("member_id", member.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update member")
		return
	}

	action := "role_changed"
	msg := fmt.Sprintf("%s's role has been changed from %s to %s", member.FullName(), member.Role, role)
	if role == models.RoleGuest {
		action = "removed_from_organization"
		msg = fmt.Sprintf("%s has been removed from %s", member.FullName(), org.Name)
	}
	response.OK(c, gin.H{
		"message": msg,
		"action":  action,
		"member": gin.H{
			"id":       member.ID,
			"name":     member.FullName(),
			"email":    member.Email,
			"old_role": member.Role,
			"new_role": role,
		},
	})
}

// Invite handles POST /organizations/:id/invite. Works for registered and unregistered emails.
func (h *Handler) Invite(c *gin.Context) {
	inviter, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if !IsOrganizerOf(inviter, org.ID) {
		response.Forbidden(c, "You can only invite users to your own organization")
		return
	}
	if org.IsDeleted {
		response.BadRequest(c, "Cannot invite users to a deleted organization")
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	email := validation.NormalizeEmail(req.Email)
	if email == "" {
		response.BadRequest(c, "Email is required")
		return
	}
	if !validation.IsValidEmail(email) {
		response.BadRequest(c, "Invalid email format")
		return
	}
	role := models.RoleTeamMember
	if req.Role != "" {
		role = models.Role(req.Role)
	}
	if !models.InvitableRole(role) {
		response.BadRequest(c, "Invalid role. Can only invite users as: guest, team_member")
		return
	}

	ctx := c.Request.Context()
	invitee, err := h.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if invitee.InOrganization(org.ID) {
			response.BadRequest(c, "User is already a member of this organization")
			return
		}
		if invitee.OrganizationID != nil {
			response.BadRequest(c, "User already belongs to another organization. They must leave it first.")
			return
		}
		if invitee.Role == models.RoleAdmin {
			response.BadRequest(c, "Cannot invite admin users to organizations")
			return
		}
	case errors.Is(err, models.ErrNotFound):
		invitee = nil
	default:
		response.Internal(c, "failed to send invitation")
		return
	}

	now := h.now()
	inv := &models.Invitation{
		OrganizationID: org.ID,
		Email:          email,
		Role:           role,
		InvitedBy:      &inviter.ID,
		ExpiresAt:      now.Add(models.InvitationTTL),
	}
	existing, err := h.store.CreateInvitation(ctx, inv, now)
	if err != nil {
		if errors.Is(err, ErrActiveInvitation) {
			body := response.Body{Error: ErrActiveInvitation.Error()}
			if existing != nil {
				body.Data = gin.H{"existing_invitation": gin.H{"expires_at": existing.ExpiresAt, "role": existing.Role}}
			}
			c.JSON(http.StatusConflict, body)
			return
		}
		h.logger.Error("create invitation", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to send invitation")
		return
	}

	emailQueued := true
	if err := h.notifier.OrganizationInvitation(ctx, inv, org, inviter, invitee); err != nil {
		emailQueued = false
		h.logger.Warn("queue invitation email", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
	}
	msg := "Invitation created successfully"
	if invitee == nil {
		msg += ". The user will need to register first to accept the invitation."
	}
	response.Created(c, gin.H{
		"message":         msg,
		"email_queued":    emailQueued,
		"invitation":      inv,
		"organization":    org.Name,
		"user_registered": invitee != nil,
	})
}

// Invitations handles GET /organizations/:id/invitations.
func (h *Handler) Invitations(c *gin.Context) {
	user, org, ok := h.loadOrg(c)
	if !ok {
		return
	}
	if !IsOrganizerOf(user, org.ID) {
		response.Forbidden(c, "You can only view invitations for your own organization")
		return
	}
	list, err := h.store.ListActiveInvitations(c.Request.Context(), org.ID, h.now())
	if err != nil {
		h.logger.Error("list invitations", zap.String("org_id", org.ID.String()), zap.Error(err))
		response.Internal(c, "failed to retrieve organization invitations")
		return
	}
	if list == nil {
		list = []models.Invitation{}
	}
	response.OK(c, gin.H{"organization": org.Name, "invitation_count": len(list), "invitations": list})
}

func markCurrent(members []models.Member, userID uuid.UUID) []models.Member {
	if members == nil {
		return []models.Member{}
	}
	for i := range members {
		members[i].IsCurrentUser = members[i].ID == userID
	}
	return members
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

func (h *Handler) loadOrg(c *gin.Context) (*models.User, *models.Organization, bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return nil, nil, false
	}
	user, ok := h.currentUser(c)
	if !ok {
		return nil, nil, false
	}
	org, err := h.store.GetByID(c.Request.Context(), orgID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Organization not found")
			return nil, nil, false
		}
		response.Internal(c, "failed to load organization")
		return nil, nil, false
	}
	return user, org, true
}
