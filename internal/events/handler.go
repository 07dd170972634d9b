package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
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
	"github.com/eventplanner/backend/pkg/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Store is the persistence the event handlers need.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EventView, error)
	Create(ctx context.Context, e *models.Event) error
	Update(ctx context.Context, id uuid.UUID, p Patch) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	SetCoverKey(ctx context.Context, id uuid.UUID, key string) error
	List(ctx context.Context, p ListParams) ([]models.EventView, int, error)
}

// UserStore loads users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OrgLoader loads organizations.
type OrgLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// GuestLister lists an event's guests for its editors.
type GuestLister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Guest, error)
}

// CoverStorage issues pre-signed URLs for cover images.
type CoverStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
	Delete(ctx context.Context, key string) error
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	users  UserStore
	orgs   OrgLoader
	guests GuestLister
	covers CoverStorage
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates an events handler. covers may be nil when object storage is not configured.
// Event dates and times are interpreted in loc.
func NewHandler(store Store, users UserStore, orgs OrgLoader, guests GuestLister, covers CoverStorage, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{store: store, users: users, orgs: orgs, guests: guests, covers: covers, loc: loc, logger: logger, now: time.Now}
}

// CreateEventRequest is the body for POST /events/create.
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	IsPublic    bool   `json:"is_public"`
}

// UpdateEventRequest is the body for PUT /events/:id. Absent fields are left unchanged.
type UpdateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Location    *string `json:"location"`
	Category    *string `json:"category"`
	IsPublic    *bool   `json:"is_public"`
}

// CoverUploadRequest is the body for POST /events/:id/cover-upload-url.
type CoverUploadRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// Create handles POST /events/create.
func (h *Handler) Create(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	// the token role may predate a demotion
	if user.Role != models.RoleOrganizer {
		response.Forbidden(c, "Only organizers can create events")
		return
	}
	if user.OrganizationID == nil {
		response.BadRequest(c, "You must belong to an organization to create events")
		return
	}
	ctx := c.Request.Context()
	org, err := h.orgs.GetByID(ctx, *user.OrganizationID)
	if err != nil || org.IsDeleted {
		response.BadRequest(c, "Your organization is no longer active")
		return
	}

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if req.Category == "" {
		req.Category = models.CategoryOther
	}
	if err := validation.First(
		validation.EventTitle(req.Title),
		validation.EventDescription(req.Description),
		validation.EventDate(req.Date, h.now().In(h.loc)),
		validation.EventTime(req.Time),
		validation.EventLocation(req.Location),
		validation.EventCategory(req.Category),
	); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	creator := user.ID
	e := &models.Event{
		Title:          req.Title,
		Description:    strings.TrimSpace(req.Description),
		Date:           req.Date,
		Time:           req.Time,
		Location:       req.Location,
		Category:       req.Category,
		IsPublic:       req.IsPublic,
		OrganizationID: org.ID,
		UserID:         &creator,
	}
	if err := h.store.Create(ctx, e); err != nil {
		h.logger.Error("create event", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("org_id", org.ID.String()))
	response.Created(c, models.EventView{
		Event:            *e,
		OrganizationName: org.Name,
		Organizer:        &models.Organizer{ID: user.ID, Name: user.FullName(), Email: user.Email},
	})
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	params, ok := h.listParams(c)
	if !ok {
		return
	}
	params.Filter = c.DefaultQuery("filter", FilterPublic)
	switch params.Filter {
	case FilterPublic:
	case FilterMyOrg:
		if user.OrganizationID == nil {
			response.BadRequest(c, "You must belong to an organization to view organization events")
			return
		}
		params.OrgID = user.OrganizationID
	case FilterAll:
		if user.Role != models.RoleAdmin {
			response.Forbidden(c, "Only admins can view all events")
			return
		}
	default:
		response.BadRequest(c, "filter must be one of public, my_org, all")
		return
	}
	h.respondList(c, params)
}

// AdminAll handles GET /events/admin/all?filter=active|deleted|all.
func (h *Handler) AdminAll(c *gin.Context) {
	params, ok := h.listParams(c)
	if !ok {
		return
	}
	params.State = c.DefaultQuery("filter", StateAll)
	if params.State != StateActive && params.State != StateDeleted && params.State != StateAll {
		response.BadRequest(c, "filter must be one of active, deleted, all")
		return
	}
	h.respondList(c, params)
}

func (h *Handler) respondList(c *gin.Context, params ListParams) {
	list, total, err := h.store.List(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("list events", zap.String("filter", params.Filter), zap.Error(err))
		response.Internal(c, "failed to retrieve events")
		return
	}
	response.OK(c, gin.H{
		"events":      list,
		"total_count": total,
		"filter":      params.Filter,
		"pagination": gin.H{
			"offset":   params.Offset,
			"limit":    params.Limit,
			"has_more": params.Offset+len(list) < total,
		},
	})
}

// listParams reads paging and narrowing query parameters shared by the listings.
func (h *Handler) listParams(c *gin.Context) (ListParams, bool) {
	p := ListParams{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Limit:    defaultLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return p, false
		}
		p.Limit = min(n, maxLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(c, "offset must be a non-negative integer")
			return p, false
		}
		p.Offset = n
	}
	if p.Category != "" && !models.ValidCategory(p.Category) {
		response.BadRequest(c, "invalid category")
		return p, false
	}
	for _, d := range []string{p.DateFrom, p.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			response.BadRequest(c, "dates must use the YYYY-MM-DD format")
			return p, false
		}
	}
	return p, true
}

// Get handles GET /events/:id. Editors also receive the guest list and counts.
func (h *Handler) Get(c *gin.Context) {
	user, ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if !CanView(user, &ev.Event) {
		response.Forbidden(c, "You do not have access to this event")
		return
	}
	ctx := c.Request.Context()
	canEdit := CanEdit(user, &ev.Event)
	ev.CanEdit = &canEdit
	if canEdit {
		guests, err := h.guests.ListByEvent(ctx, ev.ID)
		if err != nil {
			h.logger.Error("list event guests", zap.String("event_id", ev.ID.String()), zap.Error(err))
			response.Internal(c, "failed to load event")
			return
		}
		counts := models.CountGuests(guests)
		if guests == nil {
			guests = []models.Guest{}
		}
		ev.Guests, ev.GuestCounts = guests, &counts
	}
	if ev.CoverImageKey != "" && h.covers != nil {
		if url, err := h.covers.PresignDownload(ctx, ev.CoverImageKey); err == nil {
			ev.CoverImageURL = url
		} else {
			h.logger.Warn("presign cover", zap.String("event_id", ev.ID.String()), zap.Error(err))
		}
	}
	response.OK(c, ev)
}

// Update handles PUT /events/:id.
func (h *Handler) Update(c *gin.Context) {
	user, ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if !CanEdit(user, &ev.Event) {
		response.Forbidden(c, "You do not have permission to edit this event")
		return
	}
	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	var errs []error
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		req.Title = &t
		errs = append(errs, validation.EventTitle(t))
	}
	if req.Description != nil {
		errs = append(errs, validation.EventDescription(*req.Description))
	}
	if req.Date != nil {
		errs = append(errs, validation.EventDate(*req.Date, h.now().In(h.loc)))
	}
	if req.Time != nil {
		errs = append(errs, validation.EventTime(*req.Time))
	}
	if req.Location != nil {
		l := strings.TrimSpace(*req.Location)
		req.Location = &l
		errs = append(errs, validation.EventLocation(l))
	}
	if req.Category != nil {
		if *req.Category == "" {
			other := models.CategoryOther
			req.Category = &other
		}
		errs = append(errs, validation.EventCategory(*req.Category))
	}
	if err := validation.First(errs...); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	patch := Patch{
		Title: req.Title, Description: req.Description, Date: req.Date, Time: req.Time,
		Location: req.Location, Category: req.Category, IsPublic: req.IsPublic,
	}
	if err := h.store.Update(ctx, ev.ID, patch); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Event not found")
			return
		}
		h.logger.Error("update event", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	updated, err := h.store.GetByID(ctx, ev.ID)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	canEdit := true
	updated.CanEdit = &canEdit
	response.OK(c, updated)
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	user, ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if !CanEdit(user, &ev.Event) {
		response.Forbidden(c, "You do not have permission to delete this event")
		return
	}
	if err := h.store.SoftDelete(c.Request.Context(), ev.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Event not found")
			return
		}
		h.logger.Error("delete event", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to delete event")
		return
	}
	h.logger.Info("event deleted", zap.String("event_id", ev.ID.String()), zap.String("user_id", user.ID.String()))
	response.OK(c, gin.H{"message": "Event deleted successfully", "event_id": ev.ID})
}

// Calendar handles GET /events/:id/calendar.ics.
func (h *Handler) Calendar(c *gin.Context) {
	user, ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if !CanView(user, &ev.Event) {
		response.Forbidden(c, "You do not have access to this event")
		return
	}
	var buf bytes.Buffer
	if err := WriteCalendar(&buf, []models.EventView{*ev}, h.loc, h.now()); err != nil {
		h.logger.Error("render calendar", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to render calendar")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%s.ics"`, ev.ID))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// CoverUploadURL handles POST /events/:id/cover-upload-url.
func (h *Handler) CoverUploadURL(c *gin.Context) {
	if h.covers == nil {
		response.ServiceUnavailable(c, "File uploads are not configured")
		return
	}
	user, ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if !CanEdit(user, &ev.Event) {
		response.Forbidden(c, "You do not have permission to edit this event")
		return
	}
	var req CoverUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content_type is required")
		return
	}
	key, err := storage.CoverKey(ev.ID, req.ContentType)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	url, err := h.covers.PresignUpload(ctx, key, strings.ToLower(req.ContentType))
	if err != nil {
		h.logger.Error("presign cover upload", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	if err := h.store.SetCoverKey(ctx, ev.ID, key); err != nil {
		h.logger.Error("store cover key", zap.String("event_id", ev.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	// Every upload gets a fresh key, so the previous object is no longer referenced.
	if old := ev.CoverImageKey; old != "" && old != key {
		if err := h.covers.Delete(ctx, old); err != nil {
			h.logger.Warn("delete previous cover", zap.String("key", old), zap.Error(err))
		}
	}
	response.OK(c, gin.H{
		"upload_url": url,
		"key":        key,
		"expires_in": int(h.covers.PresignExpire().Seconds()),
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

func (h *Handler) loadEvent(c *gin.Context) (*models.User, *models.EventView, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, nil, false
	}
	user, ok := h.currentUser(c)
	if !ok {
		return nil, nil, false
	}
	ev, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "Event not found")
			return nil, nil, false
		}
		h.logger.Error("load event", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load event")
		return nil, nil, false
	}
	return user, ev, true
}
