package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's platform role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOrganizer  Role = "organizer"
	RoleTeamMember Role = "team_member"
	RoleGuest      Role = "guest"
)

// roleLevel orders the organization roles. Admin sits outside the hierarchy.
var roleLevel = map[Role]int{
	RoleGuest:      1,
	RoleTeamMember: 2,
	RoleOrganizer:  3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RoleTeamMember, RoleGuest:
		return true
	}
	return false
}

// Level returns the hierarchy level of r; unknown roles and admin rank as guest.
func (r Role) Level() int {
	if l, ok := roleLevel[r]; ok {
		return l
	}
	return 1
}

// OrgRole reports whether r can be held inside an organization.
func (r Role) OrgRole() bool {
	_, ok := roleLevel[r]
	return ok
}

// RoleAfterAccept returns the role a user ends up with after accepting an
// organization invitation for invited. Guests always become team members;
// anyone else is only ever promoted.
func RoleAfterAccept(current, invited Role) Role {
	if current == RoleGuest {
		return RoleTeamMember
	}
	if invited.Level() > current.Level() {
		return invited
	}
	return current
}

// MemberSortRank orders members for listing: organizers, team members, guests, others.
func MemberSortRank(r Role) int {
	switch r {
	case RoleOrganizer:
		return 1
	case RoleTeamMember:
		return 2
	case RoleGuest:
		return 3
	}
	return 4
}

// User represents a platform user.
type User struct {
	ID                       uuid.UUID  `json:"id"`
	Email                    string     `json:"email"`
	Password                 string     `json:"-"`
	FirstName                string     `json:"first_name"`
	LastName                 string     `json:"last_name"`
	Role                     Role       `json:"role"`
	OrganizationID           *uuid.UUID `json:"organization_id"`
	PendingOrganizerApproval bool       `json:"pending_organizer_approval"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// InOrganization reports whether the user belongs to orgID.
func (u *User) InOrganization(orgID uuid.UUID) bool {
	return u.OrganizationID != nil && *u.OrganizationID == orgID
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID                       uuid.UUID  `json:"id"`
	Email                    string     `json:"email"`
	FirstName                string     `json:"first_name"`
	LastName                 string     `json:"last_name"`
	Role                     Role       `json:"role"`
	OrganizationID           *uuid.UUID `json:"organization_id"`
	PendingOrganizerApproval bool       `json:"pending_organizer_approval"`
	CreatedAt                time.Time  `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:                       u.ID,
		Email:                    u.Email,
		FirstName:                u.FirstName,
		LastName:                 u.LastName,
		Role:                     u.Role,
		OrganizationID:           u.OrganizationID,
		PendingOrganizerApproval: u.PendingOrganizerApproval,
		CreatedAt:                u.CreatedAt,
	}
}
