package models

import (
	"time"

	"github.com/google/uuid"
)

// Event categories.
const (
	CategoryConference = "conference"
	CategoryMeetup     = "meetup"
	CategoryWorkshop   = "workshop"
	CategorySocial     = "social"
	CategoryNetworking = "networking"
	CategoryWebinar    = "webinar"
	CategoryOther      = "other"
)

// Categories lists the accepted event categories.
var Categories = []string{
	CategoryConference, CategoryMeetup, CategoryWorkshop, CategorySocial,
	CategoryNetworking, CategoryWebinar, CategoryOther,
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Event is a planned gathering owned by an organization.
// Date is YYYY-MM-DD and Time is HH:MM (24h).
type Event struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Location       string     `json:"location"`
	Category       string     `json:"category"`
	IsPublic       bool       `json:"is_public"`
	CoverImageKey  string     `json:"cover_image_key,omitempty"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         *uuid.UUID `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the event was soft-deleted.
func (e *Event) IsDeleted() bool {
	return e.DeletedAt != nil
}

// StartsAt combines Date and Time in loc.
func (e *Event) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", e.Date+" "+e.Time, loc)
}

// Organizer is the creator shown alongside an event.
type Organizer struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// EventView is an event enriched with organization and organizer details.
type EventView struct {
	Event
	OrganizationName string       `json:"organization_name"`
	Organizer        *Organizer   `json:"organizer,omitempty"`
	CanEdit          *bool        `json:"can_edit,omitempty"`
	CoverImageURL    string       `json:"cover_image_url,omitempty"`
	GuestCounts      *GuestCounts `json:"guest_counts,omitempty"`
	Guests           []Guest      `json:"guests,omitempty"`
}
