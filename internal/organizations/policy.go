package organizations

import (
	"errors"

	"github.com/google/uuid"

	"github.com/eventplanner/backend/internal/models"
)

// ErrLastOrganizer blocks changes that would leave an organization without an organizer.
var ErrLastOrganizer = errors.New("organization must keep at least one organizer")

// IsOrganizerOf reports whether u organizes orgID.
func IsOrganizerOf(u *models.User, orgID uuid.UUID) bool {
	return u.Role == models.RoleOrganizer && u.InOrganization(orgID)
}

// CanView reports whether u may read orgID's details and members.
func CanView(u *models.User, orgID uuid.UUID) bool {
	return u.Role == models.RoleAdmin || u.InOrganization(orgID)
}

// CheckOrganizerChange returns ErrLastOrganizer when a member holding current would move
// to next while organizers is the organization's organizer count. next == "" means removal.
func CheckOrganizerChange(current, next models.Role, organizers int) error {
	if current == models.RoleOrganizer && next != models.RoleOrganizer && organizers <= 1 {
		return ErrLastOrganizer
	}
	return nil
}
