package guests

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/events"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/validation"
	"github.com/eventplanner/backend/pkg/response"
	"github.com/eventplanner/backend/pkg/utils"
)

// MaxGuestsPerRequest bounds a single invite-guests call.
const MaxGuestsPerRequest = 100

// EventRSVPUpdated is the live feed event sent when a guest answers.
const EventRSVPUpdated = "rsvp_updated"

// Store is the persistence the guest handlers need.
type Store interface {
	Create(ctx context.Context, g *models.Guest) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Guest, error)
	GetByToken(ctx context.Context, token string) (*models.Guest, error)
	Respond(ctx context.Context, id uuid.UUID, status string, at time.Time) (bool, error)
	Counts(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error)
}

// EventLoader loads live events.
type EventLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EventView, error)
}

// UserStore loads users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier queues the invitation email carrying the guest's RSVP link.
type Notifier interface {
	EventInvitation(ctx context.Context, g *models.Guest, ev *models.EventView, inviter *models.User, rsvpURL string) error
}

// LiveFeed pushes RSVP changes to the event's editors.
type LiveFeed interface {
	Broadcast(roomID uuid.UUID, event string, payload interface{})
	Serve(c *gin.Context, upgrader *websocket.Upgrader, roomID, userID uuid.UUID)
}

// Handler handles guest invitation and RSVP endpoints.
type Handler struct {
	store       Store
	events      EventLoader
	users       UserStore
	notifier    Notifier
	live        LiveFeed
	upgrader    *websocket.Upgrader
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler creates a guests handler. RSVP links point at frontendURL/rsvp/<token>.
func NewHandler(store Store, evs EventLoader, users UserStore, notifier Notifier, live LiveFeed, upgrader *websocket.Upgrader, frontendURL string, logger *zap.Logger) *Handler {
	return &Handler{
		store: store, events: evs, users: users, notifier: notifier, live: live, upgrader: upgrader,
		frontendURL: strings.TrimRight(frontendURL, "/"), logger: logger, now: time.Now,
	}
}

// GuestInput is one entry of an invite-guests request.
type GuestInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// InviteGuestsRequest is the body for POST /events/:id/invite-guests.
type InviteGuestsRequest struct {
	Guests []GuestInput `json:"guests"`
}

// RSVPRequest is the body for POST /events/rsvp/:token.
type RSVPRequest struct {
	Response string `json:"response"`
}

// InviteResult sorts the outcome of an invite-guests call per guest.
type InviteResult struct {
	Successful     []models.Guest `json:"successful"`
	Failed         []FailedGuest  `json:"failed"`
	AlreadyInvited []string       `json:"already_invited"`
}

// FailedGuest is a guest that could not be invited.
type FailedGuest struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Invite handles POST /events/:id/invite-guests.
func (h *Handler) Invite(c *gin.Context) {
	user, ev, ok := h.loadEditable(c)
	if !ok {
		return
	}
	var req InviteGuestsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Guests) == 0 {
		response.BadRequest(c, "No guests provided")
		return
	}
	if len(req.Guests) > MaxGuestsPerRequest {
		response.BadRequest(c, "Too many guests in one request")
		return
	}

	ctx := c.Request.Context()
	res := InviteResult{Successful: []models.Guest{}, Failed: []FailedGuest{}, AlreadyInvited: []string{}}
	for _, in := range req.Guests {
		email := validation.NormalizeEmail(in.Email)
		if email == "" {
			res.Failed = append(res.Failed, FailedGuest{Email: in.Email, Error: "Email is required"})
			continue
		}
		if !validation.IsValidEmail(email) {
			res.Failed = append(res.Failed, FailedGuest{Email: in.Email, Error: "Invalid email format"})
			continue
		}
		token, err := utils.GenerateToken()
		if err != nil {
			res.Failed = append(res.Failed, FailedGuest{Email: email, Error: "Failed to create invitation"})
			continue
		}
		g := &models.Guest{EventID: ev.ID, Email: email, Name: strings.TrimSpace(in.Name), Token: token}
		switch err := h.store.Create(ctx, g); {
		case errors.Is(err, ErrAlreadyInvited):
			res.AlreadyInvited = append(res.AlreadyInvited, email)
			continue
		case err != nil:
			h.logger.Error("create guest", zap.String("event_id", ev.ID.String()), zap.Error(err))
			res.Failed = append(res.Failed, FailedGuest{Email: email, Error: "Failed to create invitation"})
			continue
		}
		if err := h.notifier.EventInvitation(ctx, g, ev, user, h.RSVPURL(token)); err != nil {
			h.logger.Warn("queue guest invitation email", zap.String("guest_id", g.ID.String()), zap.Error(err))
		}
		res.Successful = append(res.Successful, *g)
	}
	h.logger.Info("guests invited", zap.String("event_id", ev.ID.String()),
		zap.Int("successful", len(res.Successful)), zap.Int("failed", len(res.Failed)), zap.Int("already_invited", len(res.AlreadyInvited)))
	response.OK(c, gin.H{
		"results": res,
		"summary": gin.H{
			"total":           len(req.Guests),
			"successful":      len(res.Successful),
			"failed":          len(res.Failed),
			"already_invited": len(res.AlreadyInvited),
		},
	})
}

// List handles GET /events/:id/guest-list.
func (h *Handler) List(c *gin.Context) {
	_, ev, ok := h.loadEditable(c)
	if !ok {
		return
	}
	guests, err := h.store.ListByEvent(c.Request.Context(), ev.ID)
	if err != nil {
		h.logger.Error("list guests", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to retrieve guest list")
		return
	}
	response.OK(c, gin.H{
		"event_id":      ev.ID,
		"event_title":   ev.Title,
		"guests":        guests,
		"status_counts": models.CountGuests(guests),
	})
}

// RSVPDetails handles GET /events/rsvp/:token. The token is the only credential.
func (h *Handler) RSVPDetails(c *gin.Context) {
	g, ev, ok := h.loadByToken(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{
		"guest": gin.H{
			"name":         g.DisplayName(),
			"email":        g.Email,
			"status":       g.Status,
			"responded_at": g.RespondedAt,
		},
		"event": eventSummary(ev),
	})
}

// RSVPRespond handles POST /events/rsvp/:token. A guest answers once; later answers
// return the stored status.
func (h *Handler) RSVPRespond(c *gin.Context) {
	var req RSVPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	g, ev, ok := h.loadByToken(c)
	if !ok {
		return
	}
	next, answered, err := models.NextRSVPStatus(g.Status, strings.ToLower(strings.TrimSpace(req.Response)))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if answered {
		h.respondAlready(c, g)
		return
	}

	ctx := c.Request.Context()
	at := h.now()
	changed, err := h.store.Respond(ctx, g.ID, next, at)
	if err != nil {
		h.logger.Error("record rsvp", zap.String("guest_id", g.ID.String()), zap.Error(err))
		response.Internal(c, "failed to record response")
		return
	}
	if !changed {
		if fresh, err := h.store.GetByToken(ctx, g.Token); err == nil {
			g = fresh
		}
		h.respondAlready(c, g)
		return
	}
	g.Status, g.RespondedAt = next, &at

	counts, err := h.store.Counts(ctx, ev.ID)
	if err != nil {
		h.logger.Warn("count guests", zap.String("event_id", ev.ID.String()), zap.Error(err))
	} else {
		h.live.Broadcast(ev.ID, EventRSVPUpdated, gin.H{
			"event_id": ev.ID,
			"guest_id": g.ID,
			"email":    g.Email,
			"name":     g.Name,
			"status":   g.Status,
			"counts":   counts,
		})
	}
	h.logger.Info("rsvp recorded", zap.String("event_id", ev.ID.String()), zap.String("guest_id", g.ID.String()), zap.String("status", next))
	response.OK(c, gin.H{
		"message":           "Thank you for your response",
		"status":            g.Status,
		"already_responded": false,
		"event":             eventSummary(ev),
	})
}

// Live handles GET /events/:id/live. Authentication comes from the token query parameter.
func (h *Handler) Live(c *gin.Context) {
	user, ev, ok := h.loadEditable(c)
	if !ok {
		return
	}
	h.live.Serve(c, h.upgrader, ev.ID, user.ID)
}

// RSVPURL returns the public link for token.
func (h *Handler) RSVPURL(token string) string {
	return h.frontendURL + "/rsvp/" + token
}

func (h *Handler) respondAlready(c *gin.Context, g *models.Guest) {
	response.OK(c, gin.H{
		"message":           "You have already responded to this invitation",
		"status":            g.Status,
		"already_responded": true,
	})
}

func eventSummary(ev *models.EventView) gin.H {
	out := gin.H{
		"id":                ev.ID,
		"title":             ev.Title,
		"description":       ev.Description,
		"date":              ev.Date,
		"time":              ev.Time,
		"location":          ev.Location,
		"category":          ev.Category,
		"organization_name": ev.OrganizationName,
	}
	if ev.Organizer != nil {
		out["organizer"] = gin.H{"name": ev.Organizer.Name, "email": ev.Organizer.Email}
	}
	return out
}

func (h *Handler) loadByToken(c *gin.Context) (*models.Guest, *models.EventView, bool) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "token is required")
		return nil, nil, false
	}
	ctx := c.Request.Context()
	g, err := h.store.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Invalid or expired invitation link")
			return nil, nil, false
		}
		response.Internal(c, "failed to load invitation")
		return nil, nil, false
	}
	ev, err := h.events.GetByID(ctx, g.EventID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Event not found")
			return nil, nil, false
		}
		response.Internal(c, "failed to load event")
		return nil, nil, false
	}
	return g, ev, true
}

// loadEditable loads the :id event and the caller, requiring edit rights.
func (h *Handler) loadEditable(c *gin.Context) (*models.User, *models.EventView, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, nil, false
	}
	uid, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, nil, false
	}
	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, uid)
	if err != nil {
		response.Unauthorized(c, "User not found")
		return nil, nil, false
	}
	ev, err := h.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Event not found")
			return nil, nil, false
		}
		response.Internal(c, "failed to load event")
		return nil, nil, false
	}
	if !events.CanEdit(user, &ev.Event) {
		response.Forbidden(c, "You do not have permission to manage this event's guests")
		return nil, nil, false
	}
	return user, ev, true
}
