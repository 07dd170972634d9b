package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/models"
)

type memEvents struct {
	events map[uuid.UUID]*models.EventView
	orgs   map[uuid.UUID]*models.Organization
	last   ListParams
}

func (m *memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.EventView, error) {
	e, ok := m.events[id]
	if !ok || e.IsDeleted() {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) Create(_ context.Context, e *models.Event) error {
	e.ID, e.CreatedAt, e.UpdatedAt = uuid.New(), time.Now(), time.Now()
	m.events[e.ID] = &models.EventView{Event: *e, OrganizationName: m.orgs[e.OrganizationID].Name}
	return nil
}

func (m *memEvents) Update(_ context.Context, id uuid.UUID, p Patch) error {
	e, ok := m.events[id]
	if !ok {
		return models.ErrNotFound
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.IsPublic != nil {
		e.IsPublic = *p.IsPublic
	}
	return nil
}

func (m *memEvents) SoftDelete(_ context.Context, id uuid.UUID) error {
	e, ok := m.events[id]
	if !ok || e.IsDeleted() {
		return models.ErrNotFound
	}
	now := time.Now()
	e.DeletedAt = &now
	return nil
}

func (m *memEvents) SetCoverKey(_ context.Context, id uuid.UUID, key string) error {
	m.events[id].CoverImageKey = key
	return nil
}

func (m *memEvents) List(_ context.Context, p ListParams) ([]models.EventView, int, error) {
	m.last = p
	var all []models.EventView
	for _, e := range m.events {
		if e.IsDeleted() && p.State != StateAll && p.State != StateDeleted {
			continue
		}
		if p.Filter == FilterPublic && !e.IsPublic {
			continue
		}
		if p.Filter == FilterMyOrg && e.OrganizationID != *p.OrgID {
			continue
		}
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date+all[i].Time < all[j].Date+all[j].Time })
	total := len(all)
	end := min(p.Offset+p.Limit, total)
	if p.Offset >= total {
		return []models.EventView{}, total, nil
	}
	return all[p.Offset:end], total, nil
}

type memUsers map[uuid.UUID]*models.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

type memOrgs map[uuid.UUID]*models.Organization

func (m memOrgs) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if o, ok := m[id]; ok {
		return o, nil
	}
	return nil, models.ErrNotFound
}

type stubGuests map[uuid.UUID][]models.Guest

func (s stubGuests) ListByEvent(_ context.Context, id uuid.UUID) ([]models.Guest, error) {
	return s[id], nil
}

type stubCovers struct{}

func (stubCovers) PresignUpload(_ context.Context, key, _ string) (string, error) {
	return "https://bucket.example/" + key + "?sig=put", nil
}
func (stubCovers) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://bucket.example/" + key + "?sig=get", nil
}
func (stubCovers) PresignExpire() time.Duration { return 15 * time.Minute }
func (stubCovers) Delete(context.Context, string) error { return nil }

type recordingCovers struct {
	stubCovers
	deleted []string
}

func (r *recordingCovers) Delete(_ context.Context, key string) error {
	r.deleted = append(r.deleted, key)
	return nil
}

type fixture struct {
	store     *memEvents
	users     memUsers
	guests    stubGuests
	org       *models.Organization
	organizer *models.User
	member    *models.User
	outsider  *models.User
	admin     *models.User
	router    *gin.Engine
	handler   *Handler
}

var fixedNow = time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, covers CoverStorage) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	other := &models.Organization{ID: uuid.New(), Name: "Globex"}
	orgs := memOrgs{org.ID: org, other.ID: other}
	f := &fixture{
		store:  &memEvents{events: map[uuid.UUID]*models.EventView{}, orgs: orgs},
		users:  memUsers{},
		guests: stubGuests{},
		org:    org,
	}
	mk := func(role models.Role, o *models.Organization) *models.User {
		u := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", FirstName: "F", LastName: "L", Role: role}
		if o != nil {
			u.OrganizationID = &o.ID
		}
		f.users[u.ID] = u
		return u
	}
	f.organizer = mk(models.RoleOrganizer, org)
	f.member = mk(models.RoleTeamMember, org)
	f.outsider = mk(models.RoleOrganizer, other)
	f.admin = mk(models.RoleAdmin, nil)

	f.handler = NewHandler(f.store, f.users, orgs, f.guests, covers, time.UTC, zap.NewNop())
	f.handler.now = func() time.Time { return fixedNow }

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set(auth.ContextUserID, id)
		}
	})
	r.POST("/events/create", f.handler.Create)
	r.GET("/events", f.handler.List)
	r.GET("/events/admin/all", f.handler.AdminAll)
	r.GET("/events/:id", f.handler.Get)
	r.PUT("/events/:id", f.handler.Update)
	r.DELETE("/events/:id", f.handler.Delete)
	r.GET("/events/:id/calendar.ics", f.handler.Calendar)
	r.POST("/events/:id/cover-upload-url", f.handler.CoverUploadURL)
	f.router = r
	return f
}

func (f *fixture) call(t *testing.T, as *models.User, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", as.ID.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (f *fixture) seed(title, date string, public bool, org uuid.UUID, creator *models.User) *models.EventView {
	ev := &models.EventView{Event: models.Event{
		ID: uuid.New(), Title: title, Date: date, Time: "10:00", Location: "Main Hall",
		Category: models.CategoryMeetup, IsPublic: public, OrganizationID: org, UserID: &creator.ID,
	}}
	f.store.events[ev.ID] = ev
	return ev
}

func validCreate() gin.H {
	return gin.H{"title": "  Spring Meetup ", "date": "2030-04-01", "time": "18:00", "location": "Main Hall", "is_public": true}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.call(t, f.organizer, http.MethodPost, "/events/create", validCreate())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Spring Meetup", data["title"])
	assert.Equal(t, "other", data["category"])
	assert.Equal(t, "Acme", data["organization_name"])

	past := validCreate()
	past["date"] = "2030-03-09"
	rec, out = f.call(t, f.organizer, http.MethodPost, "/events/create", past)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Event date cannot be in the past", out["error"])

	today := validCreate()
	today["date"] = "2030-03-10"
	rec, _ = f.call(t, f.organizer, http.MethodPost, "/events/create", today)
	assert.Equal(t, http.StatusCreated, rec.Code)

	badTime := validCreate()
	badTime["time"] = "25:00"
	rec, _ = f.call(t, f.organizer, http.MethodPost, "/events/create", badTime)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badCategory := validCreate()
	badCategory["category"] = "rave"
	rec, _ = f.call(t, f.organizer, http.MethodPost, "/events/create", badCategory)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.call(t, f.admin, http.MethodPost, "/events/create", validCreate())
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no organization")

	f.org.IsDeleted = true
	rec, _ = f.call(t, f.organizer, http.MethodPost, "/events/create", validCreate())
	assert.Equal(t, http.StatusBadRequest, rec.Code, "deleted organization")
}

func TestCreate_RequiresStoredOrganizerRole(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.call(t, f.member, http.MethodPost, "/events/create", validCreate())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.store.events)
}

func TestUpdateAndDelete_DemotedCreator(t *testing.T) {
	f := newFixture(t, nil)
	ev := f.seed("Planned", "2030-04-03", false, f.org.ID, f.organizer)
	path := "/events/" + ev.ID.String()
	f.organizer.Role = models.RoleTeamMember

	rec, _ := f.call(t, f.organizer, http.MethodPut, path, gin.H{"title": "Renamed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.call(t, f.organizer, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, f.store.events[ev.ID].IsDeleted())
}

func TestList_FiltersAndPagination(t *testing.T) {
	f := newFixture(t, nil)
	f.seed("Public A", "2030-04-02", true, f.org.ID, f.organizer)
	f.seed("Public B", "2030-04-01", true, *f.outsider.OrganizationID, f.outsider)
	f.seed("Private", "2030-04-03", false, f.org.ID, f.organizer)

	rec, out := f.call(t, f.member, http.MethodGet, "/events?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total_count"])
	page := data["pagination"].(map[string]interface{})
	assert.Equal(t, true, page["has_more"])
	first := data["events"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Public B", first["title"], "ordered by date")

	rec, out = f.call(t, f.member, http.MethodGet, "/events?filter=my_org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, out["data"].(map[string]interface{})["total_count"])

	rec, _ = f.call(t, f.admin, http.MethodGet, "/events?filter=my_org", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.call(t, f.member, http.MethodGet, "/events?filter=all", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out = f.call(t, f.admin, http.MethodGet, "/events?filter=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, out["data"].(map[string]interface{})["total_count"])

	rec, _ = f.call(t, f.member, http.MethodGet, "/events?limit=500&offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLimit, f.store.last.Limit)

	rec, _ = f.call(t, f.member, http.MethodGet, "/events?date_from=01-04-2030", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAll(t *testing.T) {
	f := newFixture(t, nil)
	gone := f.seed("Gone", "2030-04-02", true, f.org.ID, f.organizer)
	now := time.Now()
	gone.DeletedAt = &now
	f.seed("Live", "2030-04-02", true, f.org.ID, f.organizer)

	rec, out := f.call(t, f.admin, http.MethodGet, "/events/admin/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, out["data"].(map[string]interface{})["total_count"])

	rec, _ = f.call(t, f.admin, http.MethodGet, "/events/admin/all?filter=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_VisibilityAndGuests(t *testing.T) {
	f := newFixture(t, stubCovers{})
	ev := f.seed("Private", "2030-04-03", false, f.org.ID, f.organizer)
	ev.CoverImageKey = "covers/x.png"
	f.guests[ev.ID] = []models.Guest{{Status: models.RSVPAccepted}, {Status: models.RSVPPending}}

	rec, _ := f.call(t, f.outsider, http.MethodGet, "/events/"+ev.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := f.call(t, f.organizer, http.MethodGet, "/events/"+ev.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, true, data["can_edit"], "creator")
	counts := data["guest_counts"].(map[string]interface{})
	assert.EqualValues(t, 1, counts["accepted"])
	assert.EqualValues(t, 2, counts["total"])
	assert.True(t, strings.HasSuffix(data["cover_image_url"].(string), "?sig=get"))

	viewer := &models.User{ID: uuid.New(), Role: models.RoleTeamMember, OrganizationID: &f.org.ID}
	f.users[viewer.ID] = viewer
	rec, out = f.call(t, viewer, http.MethodGet, "/events/"+ev.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, false, data["can_edit"])
	assert.Nil(t, data["guest_counts"])

	rec, _ = f.call(t, f.member, http.MethodGet, "/events/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ev := f.seed("Original", "2030-04-03", false, f.org.ID, f.member)
	path := "/events/" + ev.ID.String()

	rec, _ := f.call(t, f.outsider, http.MethodPut, path, gin.H{"title": "Hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.call(t, f.organizer, http.MethodPut, path, gin.H{"title": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := f.call(t, f.organizer, http.MethodPut, path, gin.H{"title": " Renamed ", "category": "", "is_public": true})
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Renamed", data["title"])
	assert.Equal(t, "other", data["category"])
	assert.Equal(t, true, data["is_public"])

	rec, _ = f.call(t, f.outsider, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.call(t, f.admin, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.store.events[ev.ID].IsDeleted())

	rec, _ = f.call(t, f.admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarExport(t *testing.T) {
	f := newFixture(t, nil)
	ev := f.seed("Launch", "2030-04-03", true, f.org.ID, f.organizer)

	rec, _ := f.call(t, f.outsider, http.MethodGet, "/events/"+ev.ID.String()+"/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Launch")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".ics")
}

func TestCoverUploadURL(t *testing.T) {
	f := newFixture(t, nil)
	ev := f.seed("Launch", "2030-04-03", true, f.org.ID, f.organizer)
	path := "/events/" + ev.ID.String() + "/cover-upload-url"

	rec, _ := f.call(t, f.organizer, http.MethodPost, path, gin.H{"content_type": "image/png"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f = newFixture(t, stubCovers{})
	ev = f.seed("Launch", "2030-04-03", true, f.org.ID, f.organizer)
	path = "/events/" + ev.ID.String() + "/cover-upload-url"

	rec, _ = f.call(t, f.organizer, http.MethodPost, path, gin.H{"content_type": "image/gif"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.call(t, f.member, http.MethodPost, path, gin.H{"content_type": "image/png"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := f.call(t, f.organizer, http.MethodPost, path, gin.H{"content_type": "image/png"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 900, data["expires_in"])
	assert.Equal(t, data["key"], f.store.events[ev.ID].CoverImageKey)
	assert.Contains(t, data["upload_url"], "?sig=put")
}

func TestCoverUploadURL_DropsPreviousObject(t *testing.T) {
	covers := &recordingCovers{}
	f := newFixture(t, covers)
	ev := f.seed("Launch", "2030-04-03", true, f.org.ID, f.organizer)
	ev.CoverImageKey = "covers/old.png"
	path := "/events/" + ev.ID.String() + "/cover-upload-url"

	rec, _ := f.call(t, f.organizer, http.MethodPost, path, gin.H{"content_type": "image/webp"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"covers/old.png"}, covers.deleted)
	assert.NotEqual(t, "covers/old.png", f.store.events[ev.ID].CoverImageKey)
}
