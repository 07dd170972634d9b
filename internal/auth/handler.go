package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/validation"
	"github.com/eventplanner/backend/pkg/response"
	"github.com/eventplanner/backend/pkg/utils"
)

// UserStore is the persistence the auth handlers need.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, p CreateUserParams) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	CountAdmins(ctx context.Context) (int, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	ListPendingOrganizers(ctx context.Context) ([]models.User, error)
	ResolveOrganizerRequest(ctx context.Context, id uuid.UUID, approve bool) (*models.User, error)
}

// InvitationLister returns the active organization invitations addressed to an email.
type InvitationLister interface {
	ListActiveForEmail(ctx context.Context, email string) ([]models.PendingInvitation, error)
}

// Notifier queues the emails auth flows send.
type Notifier interface {
	PasswordReset(ctx context.Context, u *models.User, resetURL string) error
	OrganizerRequested(ctx context.Context, u *models.User, admins []models.User) error
	OrganizerDecision(ctx context.Context, u *models.User, approved bool, adminName string) error
}

// Options holds product settings for auth flows.
type Options struct {
	FrontendURL         string
	AllowAdminBootstrap bool
}

const weakPasswordMsg = "Password must be at least 8 characters long and include uppercase, lowercase, numeric, and special characters."

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	FirstName string `json:"first_name" binding:"required,max=50"`
	LastName  string `json:"last_name" binding:"required,max=50"`
	Email     string `json:"email" binding:"required,emailaddr"`
	Password  string `json:"password" binding:"required,strongpassword"`
	Role      string `json:"role"`
}

var registerMessages = map[string]string{
	"emailaddr":      "Invalid email format",
	"strongpassword": weakPasswordMsg,
}

// RegisterResponse is returned after self-registration.
type RegisterResponse struct {
	Message            string            `json:"message"`
	User               models.UserPublic `json:"user"`
	PendingApproval    bool              `json:"pending_approval"`
	PendingInvitations int               `json:"pending_invitations"`
	NextSteps          string            `json:"next_steps"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token                   string                     `json:"token"`
	User                    models.UserPublic          `json:"user"`
	PendingInvitationsCount int                        `json:"pending_invitations_count"`
	PendingInvitations      []models.PendingInvitation `json:"pending_invitations,omitempty"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users    UserStore
	invites  InvitationLister
	jwt      *JWTService
	notifier Notifier
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, invites InvitationLister, jwt *JWTService, notifier Notifier, opts Options, logger *zap.Logger) *Handler {
	return &Handler{users: users, invites: invites, jwt: jwt, notifier: notifier, opts: opts, logger: logger}
}

// Register handles POST /auth/register. Organizer requests start as guests awaiting admin approval.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, validation.BindingMessage(err, registerMessages,
			"first_name, last_name, email and password are required"))
		return
	}
	email := validation.NormalizeEmail(req.Email)

	pending := false
	switch models.Role(req.Role) {
	case "", models.RoleGuest:
	case models.RoleOrganizer:
		pending = true
	case models.RoleTeamMember:
		response.BadRequest(c, "Team member role cannot be selected during registration. Register as a guest and join an organization through an invitation")
		return
	case models.RoleAdmin:
		response.BadRequest(c, "Admin role cannot be selected during registration. Register as 'guest' or request 'organizer' approval")
		return
	default:
		response.BadRequest(c, fmt.Sprintf("Invalid role '%s'. Valid options are: 'guest' or 'organizer'", req.Role))
		return
	}

	user, ok := h.createUser(c, email, req.Password, req.FirstName, req.LastName, models.RoleGuest, pending)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if pending {
		admins, err := h.users.ListAdmins(ctx)
		if err == nil {
			err = h.notifier.OrganizerRequested(ctx, user, admins)
		}
		if err != nil {
			h.logger.Warn("organizer request notification failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		}
		response.Created(c, RegisterResponse{
			Message:         "User created successfully. Your organizer role request has been submitted for admin approval.",
			User:            user.ToPublic(),
			PendingApproval: true,
			NextSteps:       "You can login and check for any pending invitations in your dashboard",
		})
		return
	}

	invites, err := h.invites.ListActiveForEmail(ctx, user.Email)
	if err != nil {
		h.logger.Warn("list invitations after register", zap.String("email", user.Email), zap.Error(err))
	}
	resp := RegisterResponse{
		Message:            "User created successfully as guest",
		User:               user.ToPublic(),
		PendingInvitations: len(invites),
		NextSteps:          "You can now request organizer privileges or wait for organization invitations",
	}
	if len(invites) > 0 {
		resp.Message += fmt.Sprintf(". You have %d pending invitation(s) waiting", len(invites))
		resp.NextSteps = "Please login to see your pending invitations in the dashboard"
	}
	response.Created(c, resp)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Email and password are required")
		return
	}
	ctx := c.Request.Context()

	user, err := h.users.GetByEmail(ctx, validation.NormalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			h.logger.Error("login lookup failed", zap.Error(err))
			response.Internal(c, "failed to login")
			return
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	invites, err := h.invites.ListActiveForEmail(ctx, user.Email)
	if err != nil {
		h.logger.Warn("list invitations on login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	response.OK(c, TokenResponse{
		Token:                   token,
		User:                    user.ToPublic(),
		PendingInvitationsCount: len(invites),
		PendingInvitations:      invites,
	})
}

// Me handles GET /auth/user/me.
func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	response.OK(c, user.ToPublic())
}

// ForgotPasswordRequest is the body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,emailaddr"`
}

// ForgotPassword handles POST /auth/forgot-password. The reply does not reveal whether the account exists.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid email format.")
		return
	}
	email := validation.NormalizeEmail(req.Email)
	ctx := c.Request.Context()

	user, err := h.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		token, err := h.jwt.GenerateReset(user)
		if err != nil {
			response.Internal(c, "failed to generate reset token")
			return
		}
		link := h.opts.FrontendURL + "/reset-password?token=" + url.QueryEscape(token)
		if err := h.notifier.PasswordReset(ctx, user, link); err != nil {
			h.logger.Error("queue password reset email", zap.String("user_id", user.ID.String()), zap.Error(err))
			response.Internal(c, "failed to send reset email")
			return
		}
	case !errors.Is(err, models.ErrNotFound):
		h.logger.Error("forgot password lookup failed", zap.Error(err))
		response.Internal(c, "failed to process request")
		return
	}
	response.OK(c, gin.H{"message": "If an account exists for this email, a password reset link has been sent."})
}

// ResetPasswordRequest is the body for POST /auth/reset-password/:token.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,strongpassword"`
}

// ResetPassword handles POST /auth/reset-password/:token.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, weakPasswordMsg)
		return
	}
	claims, err := h.jwt.ValidateReset(c.Param("token"))
	if err != nil {
		response.BadRequest(c, "Invalid or expired token.")
		return
	}
	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, claims.UserID)
	if err != nil || !ResetMatches(claims, user) {
		response.BadRequest(c, "Invalid or expired token.")
		return
	}
	if utils.CheckPassword(req.Password, user.Password) {
		response.BadRequest(c, "New password cannot be the same as the old password.")
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	if err := h.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		h.logger.Error("update password", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update password")
		return
	}
	response.OK(c, gin.H{"message": "Your password has been updated!"})
}

// RegisterAdmin handles POST /auth/register-admin. It only works until the first admin exists.
func (h *Handler) RegisterAdmin(c *gin.Context) {
	if !h.opts.AllowAdminBootstrap {
		response.Forbidden(c, "Admin registration is disabled")
		return
	}
	ctx := c.Request.Context()
	n, err := h.users.CountAdmins(ctx)
	if err != nil {
		response.Internal(c, "failed to check admins")
		return
	}
	if n > 0 {
		response.Forbidden(c, "Admin registration is disabled once an admin exists")
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, validation.BindingMessage(err, registerMessages,
			"first_name, last_name, email and password are required"))
		return
	}
	email := validation.NormalizeEmail(req.Email)
	user, ok := h.createUser(c, email, req.Password, req.FirstName, req.LastName, models.RoleAdmin, false)
	if !ok {
		return
	}
	h.logger.Info("bootstrap admin created", zap.String("user_id", user.ID.String()))
	response.Created(c, user.ToPublic())
}

// OrganizerRequests handles GET /auth/admin/organizer-requests.
func (h *Handler) OrganizerRequests(c *gin.Context) {
	users, err := h.users.ListPendingOrganizers(c.Request.Context())
	if err != nil {
		h.logger.Error("list organizer requests", zap.Error(err))
		response.Internal(c, "failed to retrieve organizer requests")
		return
	}
	out := make([]models.UserPublic, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToPublic())
	}
	response.OK(c, gin.H{"pending_count": len(out), "requests": out})
}

// ApproveOrganizer handles POST /auth/admin/organizer-requests/:id/approve.
func (h *Handler) ApproveOrganizer(c *gin.Context) {
	h.resolveOrganizer(c, true)
}

// RejectOrganizer handles POST /auth/admin/organizer-requests/:id/reject.
func (h *Handler) RejectOrganizer(c *gin.Context) {
	h.resolveOrganizer(c, false)
}

func (h *Handler) resolveOrganizer(c *gin.Context, approve bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	admin, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.users.ResolveOrganizerRequest(ctx, id, approve)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "User not found or not pending organizer approval")
			return
		}
		h.logger.Error("resolve organizer request", zap.String("user_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to update organizer request")
		return
	}
	if err := h.notifier.OrganizerDecision(ctx, user, approve, admin.FullName()); err != nil {
		h.logger.Warn("organizer decision notification failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	verb := "rejected"
	if approve {
		verb = "approved"
	}
	response.OK(c, gin.H{
		"message":     fmt.Sprintf("Organizer request %s for %s", verb, user.FullName()),
		"user":        user.ToPublic(),
		"resolved_by": admin.FullName(),
	})
}

func (h *Handler) createUser(c *gin.Context, email, password, first, last string, role models.Role, pending bool) (*models.User, bool) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return nil, false
	}
	user, err := h.users.Create(c.Request.Context(), CreateUserParams{
		Email:                    email,
		PasswordHash:             hash,
		FirstName:                strings.TrimSpace(first),
		LastName:                 strings.TrimSpace(last),
		Role:                     role,
		PendingOrganizerApproval: pending,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.BadRequest(c, "Email already registered")
			return nil, false
		}
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return nil, false
	}
	return user, true
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	id, ok := CurrentUserID(c)
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
