package organizations

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

// memStore keeps organizations, users and invitations in memory.
type memStore struct {
	orgs    map[uuid.UUID]*models.Organization
	users   map[uuid.UUID]*models.User
	invites []*models.Invitation
}

func newMemStore() *memStore {
	return &memStore{orgs: map[uuid.UUID]*models.Organization{}, users: map[uuid.UUID]*models.User{}}
}

func (m *memStore) addOrg(name string) *models.Organization {
	o := &models.Organization{ID: uuid.New(), Name: name}
	m.orgs[o.ID] = o
	return o
}

func (m *memStore) addUser(email string, role models.Role, org *models.Organization) *models.User {
	u := &models.User{ID: uuid.New(), Email: email, FirstName: strings.Split(email, "@")[0], LastName: "X", Role: role}
	if org != nil {
		id := org.ID
		u.OrganizationID = &id
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (m *memStore) FindByName(_ context.Context, name string) (*models.Organization, error) {
	for _, o := range m.orgs {
		if strings.EqualFold(o.Name, name) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ActiveNameTaken(_ context.Context, name string, except uuid.UUID) (bool, error) {
	for _, o := range m.orgs {
		if strings.EqualFold(o.Name, name) && !o.IsDeleted && o.ID != except {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateForUser(_ context.Context, name, description string, userID uuid.UUID) (*models.Organization, error) {
	o := m.addOrg(name)
	o.Description = description
	id := o.ID
	m.users[userID].OrganizationID = &id
	cp := *o
	return &cp, nil
}

func (m *memStore) List(_ context.Context, filter string) ([]models.Organization, error) {
	var out []models.Organization
	for _, o := range m.orgs {
		if filter == FilterActive && o.IsDeleted || filter == FilterDeleted && !o.IsDeleted {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, name, description *string) (*models.Organization, error) {
	o := m.orgs[id]
	if name != nil {
		o.Name = *name
	}
	if description != nil {
		o.Description = *description
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) SoftDelete(_ context.Context, id uuid.UUID) (DeleteResult, error) {
	o := m.orgs[id]
	now := time.Now()
	o.DeletedAt, o.IsDeleted = &now, true
	var res DeleteResult
	for _, u := range m.users {
		if u.InOrganization(id) {
			u.OrganizationID = nil
			if u.Role == models.RoleOrganizer || u.Role == models.RoleTeamMember {
				u.Role = models.RoleGuest
			}
			res.AffectedUsers++
		}
	}
	kept := m.invites[:0]
	for _, inv := range m.invites {
		if inv.OrganizationID == id && !inv.IsAccepted {
			res.CancelledInvitations++
			continue
		}
		kept = append(kept, inv)
	}
	m.invites = kept
	return res, nil
}

func (m *memStore) ListMembers(_ context.Context, orgID uuid.UUID) ([]models.Member, error) {
	var out []models.Member
	for _, u := range m.users {
		if u.InOrganization(orgID) {
			out = append(out, models.Member{ID: u.ID, Email: u.Email, FirstName: u.FirstName, Role: u.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return models.MemberSortRank(out[i].Role) < models.MemberSortRank(out[j].Role)
	})
	return out, nil
}

func (m *memStore) ChangeMemberRole(_ context.Context, orgID, userID uuid.UUID, role models.Role) error {
	u, ok := m.users[userID]
	if !ok || !u.InOrganization(orgID) {
		return ErrNotMember
	}
	organizers := 0
	for _, o := range m.users {
		if o.InOrganization(orgID) && o.Role == models.RoleOrganizer {
			organizers++
		}
	}
	if err := CheckOrganizerChange(u.Role, role, organizers); err != nil {
		return err
	}
	u.Role = role
	if role == models.RoleGuest {
		u.OrganizationID = nil
	}
	return nil
}

func (m *memStore) CreateInvitation(_ context.Context, inv *models.Invitation, now time.Time) (*models.Invitation, error) {
	kept := m.invites[:0]
	for _, cur := range m.invites {
		if cur.OrganizationID == inv.OrganizationID && cur.Email == inv.Email && !cur.IsAccepted {
			if cur.Active(now) {
				return cur, ErrActiveInvitation
			}
			continue
		}
		kept = append(kept, cur)
	}
	m.invites = kept
	inv.ID = uuid.New()
	inv.CreatedAt = now
	cp := *inv
	m.invites = append(m.invites, &cp)
	return nil, nil
}

func (m *memStore) ListActiveInvitations(_ context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error) {
	var out []models.Invitation
	for _, inv := range m.invites {
		if inv.OrganizationID == orgID && inv.Active(now) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type memUsers struct{ s *memStore }

func (u memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if usr, ok := u.s.users[id]; ok {
		cp := *usr
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (u memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, usr := range u.s.users {
		if strings.EqualFold(usr.Email, email) {
			cp := *usr
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

type recordingNotifier struct {
	sent []*models.User
}

func (n *recordingNotifier) OrganizationInvitation(_ context.Context, _ *models.Invitation, _ *models.Organization, _, invitee *models.User) error {
	n.sent = append(n.sent, invitee)
	return nil
}

type env struct {
	store    *memStore
	notifier *recordingNotifier
	handler  *Handler
	router   *gin.Engine
}

func newEnv() *env {
	gin.SetMode(gin.TestMode)
	e := &env{store: newMemStore(), notifier: &recordingNotifier{}}
	e.handler = NewHandler(e.store, memUsers{e.store}, e.notifier, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set(auth.ContextUserID, id)
		}
	})
	r.POST("/organizations/create", e.handler.Create)
	r.GET("/organizations/list", e.handler.List)
	r.GET("/organizations/list/:filter", e.handler.List)
	r.POST("/organizations/leave", e.handler.Leave)
	r.GET("/organizations/:id", e.handler.Get)
	r.PUT("/organizations/:id", e.handler.Update)
	r.DELETE("/organizations/:id", e.handler.Delete)
	r.GET("/organizations/:id/members", e.handler.Members)
	r.DELETE("/organizations/:id/members/:memberId", e.handler.RemoveMember)
	r.PUT("/organizations/:id/members/:memberId/role", e.handler.ChangeMemberRole)
	r.POST("/organizations/:id/invite", e.handler.Invite)
	r.GET("/organizations/:id/invitations", e.handler.Invitations)
	e.router = r
	return e
}

func (e *env) call(t *testing.T, as *models.User, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("X-Test-User", as.ID.String())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCreate(t *testing.T) {
	e := newEnv()
	deleted := e.store.addOrg("Old Co")
	deleted.IsDeleted = true
	e.store.addOrg("Acme")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, nil)

	w, out := e.call(t, organizer, http.MethodPost, "/organizations/create", gin.H{"name": "acme"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, out["error"], "already exists")

	w, out = e.call(t, organizer, http.MethodPost, "/organizations/create", gin.H{"name": "OLD CO"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, out["error"], "deleted organization")

	w, _ = e.call(t, organizer, http.MethodPost, "/organizations/create", gin.H{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.call(t, organizer, http.MethodPost, "/organizations/create", gin.H{"name": " Launchpad ", "description": "d"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, e.store.users[organizer.ID].OrganizationID)

	w, _ = e.call(t, organizer, http.MethodPost, "/organizations/create", gin.H{"name": "Second"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "already in an organization")
}

func TestCreate_RequiresStoredOrganizerRole(t *testing.T) {
	e := newEnv()
	demoted := e.store.addUser("d@example.com", models.RoleGuest, nil)
	orgsBefore := len(e.store.orgs)

	w, _ := e.call(t, demoted, http.MethodPost, "/organizations/create", gin.H{"name": "Ghost Co"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, e.store.orgs, orgsBefore)
	assert.Nil(t, e.store.users[demoted.ID].OrganizationID)
}

func TestGetAndMembers(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	guestMember := e.store.addUser("g@example.com", models.RoleGuest, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	admin := e.store.addUser("a@example.com", models.RoleAdmin, nil)
	outsider := e.store.addUser("x@example.com", models.RoleOrganizer, e.store.addOrg("Other"))
	_ = guestMember

	w, out := e.call(t, member, http.MethodGet, "/organizations/"+org.ID.String()+"/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["member_count"])
	members := data["members"].([]interface{})
	first := members[0].(map[string]interface{})
	assert.Equal(t, organizer.ID.String(), first["id"], "organizers first")
	for _, raw := range members {
		m := raw.(map[string]interface{})
		assert.Equal(t, m["id"] == member.ID.String(), m["is_current_user"])
	}

	w, _ = e.call(t, admin, http.MethodGet, "/organizations/"+org.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.call(t, outsider, http.MethodGet, "/organizations/"+org.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.call(t, member, http.MethodGet, "/organizations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdate(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	e.store.addOrg("Taken")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)
	path := "/organizations/" + org.ID.String()

	w, _ := e.call(t, member, http.MethodPut, path, gin.H{"name": "New"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.call(t, organizer, http.MethodPut, path, gin.H{"name": "taken"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.call(t, organizer, http.MethodPut, path, gin.H{"name": "ACME"})
	assert.Equal(t, http.StatusOK, w.Code, "renaming to own name in another case is allowed")

	w, _ = e.call(t, organizer, http.MethodPut, path, gin.H{"description": "  new desc "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new desc", e.store.orgs[org.ID].Description)
}

func TestDelete_DetachesMembersAndCancelsInvites(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)
	e.store.invites = append(e.store.invites, &models.Invitation{ID: uuid.New(), OrganizationID: org.ID, Email: "p@example.com", ExpiresAt: time.Now().Add(time.Hour)})

	w, _ := e.call(t, member, http.MethodDelete, "/organizations/"+org.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.call(t, organizer, http.MethodDelete, "/organizations/"+org.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := out["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["affected_users"])
	assert.EqualValues(t, 1, data["cancelled_invitations"])
	assert.Equal(t, models.RoleGuest, e.store.users[organizer.ID].Role)
	assert.Nil(t, e.store.users[member.ID].OrganizationID)

	admin := e.store.addUser("a@example.com", models.RoleAdmin, nil)
	w, _ = e.call(t, admin, http.MethodDelete, "/organizations/"+org.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "already deleted")
}

func TestLeave(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)

	w, _ := e.call(t, organizer, http.MethodPost, "/organizations/leave", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "sole organizer cannot leave")

	w, _ = e.call(t, member, http.MethodPost, "/organizations/leave", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, e.store.users[member.ID].OrganizationID)
	assert.Equal(t, models.RoleGuest, e.store.users[member.ID].Role)

	w, _ = e.call(t, member, http.MethodPost, "/organizations/leave", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no organization to leave")
}

func TestMemberManagement(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)
	stranger := e.store.addUser("s@example.com", models.RoleGuest, nil)
	base := "/organizations/" + org.ID.String() + "/members/"

	w, _ := e.call(t, organizer, http.MethodPut, base+organizer.ID.String()+"/role", gin.H{"role": "team_member"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "last organizer cannot be demoted")

	w, _ = e.call(t, organizer, http.MethodDelete, base+organizer.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "last organizer cannot be removed")

	w, _ = e.call(t, organizer, http.MethodPut, base+member.ID.String()+"/role", gin.H{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.call(t, organizer, http.MethodPut, base+stranger.ID.String()+"/role", gin.H{"role": "organizer"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "not a member")

	w, _ = e.call(t, member, http.MethodPut, base+organizer.ID.String()+"/role", gin.H{"role": "guest"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.call(t, organizer, http.MethodPut, base+member.ID.String()+"/role", gin.H{"role": "organizer"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "role_changed", out["data"].(map[string]interface{})["action"])

	w, _ = e.call(t, organizer, http.MethodPut, base+organizer.ID.String()+"/role", gin.H{"role": "guest"})
	require.Equal(t, http.StatusOK, w.Code, "a second organizer exists now")
	assert.Nil(t, e.store.users[organizer.ID].OrganizationID, "guest role removes the member")

	w, _ = e.call(t, member, http.MethodDelete, base+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvite(t *testing.T) {
	e := newEnv()
	org := e.store.addOrg("Acme")
	organizer := e.store.addUser("o@example.com", models.RoleOrganizer, org)
	member := e.store.addUser("m@example.com", models.RoleTeamMember, org)
	e.store.addUser("busy@example.com", models.RoleTeamMember, e.store.addOrg("Other"))
	e.store.addUser("admin@example.com", models.RoleAdmin, nil)
	free := e.store.addUser("free@example.com", models.RoleGuest, nil)
	path := "/organizations/" + org.ID.String() + "/invite"

	w, _ := e.call(t, member, http.MethodPost, path, gin.H{"email": "x@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, tc := range []struct {
		body gin.H
		code int
	}{
		{gin.H{"email": ""}, http.StatusBadRequest},
		{gin.H{"email": "not-an-email"}, http.StatusBadRequest},
		{gin.H{"email": "x@example.com", "role": "organizer"}, http.StatusBadRequest},
		{gin.H{"email": "m@example.com"}, http.StatusBadRequest},
		{gin.H{"email": "busy@example.com"}, http.StatusBadRequest},
		{gin.H{"email": "admin@example.com"}, http.StatusBadRequest},
	} {
		w, _ := e.call(t, organizer, http.MethodPost, path, tc.body)
		assert.Equal(t, tc.code, w.Code, "body %v", tc.body)
	}

	w, out := e.call(t, organizer, http.MethodPost, path, gin.H{"email": "Free@Example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, true, data["user_registered"])
	inv := data["invitation"].(map[string]interface{})
	assert.Equal(t, "team_member", inv["role"], "role defaults to team_member")
	require.Len(t, e.notifier.sent, 1)
	assert.Equal(t, free.ID, e.notifier.sent[0].ID)

	w, _ = e.call(t, organizer, http.MethodPost, path, gin.H{"email": "free@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code, "active invitation exists")

	e.store.invites[0].ExpiresAt = time.Now().Add(-time.Minute)
	w, _ = e.call(t, organizer, http.MethodPost, path, gin.H{"email": "free@example.com", "role": "guest"})
	require.Equal(t, http.StatusCreated, w.Code, "expired invitation is replaced")
	require.Len(t, e.store.invites, 1)
	assert.Equal(t, models.RoleGuest, e.store.invites[0].Role)
	assert.WithinDuration(t, time.Now().Add(models.InvitationTTL), e.store.invites[0].ExpiresAt, time.Minute)

	w, out = e.call(t, organizer, http.MethodPost, path, gin.H{"email": "new@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, false, out["data"].(map[string]interface{})["user_registered"])
	assert.Nil(t, e.notifier.sent[len(e.notifier.sent)-1], "unregistered invitee")

	w, out = e.call(t, organizer, http.MethodGet, "/organizations/"+org.ID.String()+"/invitations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, out["data"].(map[string]interface{})["invitation_count"])
}

func TestList(t *testing.T) {
	e := newEnv()
	e.store.addOrg("A")
	d := e.store.addOrg("B")
	d.IsDeleted = true

	for filter, want := range map[string]int{"": 1, "/all": 2, "/active": 1, "/deleted": 1} {
		w, out := e.call(t, nil, http.MethodGet, "/organizations/list"+filter, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, want, out["data"].(map[string]interface{})["count"], filter)
	}
	w, _ := e.call(t, nil, http.MethodGet, "/organizations/list/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
