package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationTTL is how long an organization invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation offers a user (registered or not, keyed by email) a place in an organization.
type Invitation struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	InvitedBy      *uuid.UUID `json:"invited_by,omitempty"`
	IsAccepted     bool       `json:"is_accepted"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Expired reports whether the invitation can no longer be accepted at now.
func (i *Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// Active reports whether the invitation is pending and unexpired at now.
func (i *Invitation) Active(now time.Time) bool {
	return !i.IsAccepted && !i.Expired(now)
}

// InvitableRole reports whether r may be offered through an organization invitation.
func InvitableRole(r Role) bool {
	return r == RoleGuest || r == RoleTeamMember
}

// PendingInvitation is an active invitation as shown to its recipient.
type PendingInvitation struct {
	ID           uuid.UUID           `json:"id"`
	Role         Role                `json:"role"`
	ExpiresAt    time.Time           `json:"expires_at"`
	Organization OrganizationSummary `json:"organization"`
}
