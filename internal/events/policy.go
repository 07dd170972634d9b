package events

import "github.com/eventplanner/backend/internal/models"

// CanView reports whether u may see e: public events are visible to every
// authenticated user, private ones to members of the owning organization and admins.
func CanView(u *models.User, e *models.Event) bool {
	return e.IsPublic || u.Role == models.RoleAdmin || u.InOrganization(e.OrganizationID)
}

// CanEdit reports whether u may change or delete e. Only organizers and admins edit;
// an organizer must have created e or belong to its organization.
func CanEdit(u *models.User, e *models.Event) bool {
	switch u.Role {
	case models.RoleAdmin:
		return true
	case models.RoleOrganizer:
		return (e.UserID != nil && *e.UserID == u.ID) || u.InOrganization(e.OrganizationID)
	}
	return false
}
