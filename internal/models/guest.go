package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RSVP statuses.
const (
	RSVPPending  = "pending"
	RSVPAccepted = "accepted"
	RSVPDeclined = "declined"
)

// RSVP responses a guest may send.
const (
	ResponseAccept  = "accept"
	ResponseDecline = "decline"
)

// ErrInvalidResponse is returned for anything other than accept or decline.
var ErrInvalidResponse = errors.New("invalid response, must be 'accept' or 'decline'")

// Guest is an external invitee of an event, addressed by a private RSVP token.
type Guest struct {
	ID          uuid.UUID  `json:"id"`
	EventID     uuid.UUID  `json:"event_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	Token       string     `json:"-"`
	Status      string     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	InvitedAt   time.Time  `json:"invited_at"`
}

// DisplayName returns the guest name or "Guest" when none was given.
func (g *Guest) DisplayName() string {
	if g.Name == "" {
		return "Guest"
	}
	return g.Name
}

// NextRSVPStatus computes the status after a guest responds. A guest answers once:
// when current is not pending, current is returned unchanged with answered=true.
func NextRSVPStatus(current, response string) (next string, answered bool, err error) {
	var target string
	switch response {
	case ResponseAccept:
		target = RSVPAccepted
	case ResponseDecline:
		target = RSVPDeclined
	default:
		return current, false, ErrInvalidResponse
	}
	if current != RSVPPending {
		return current, true, nil
	}
	return target, false, nil
}

// GuestCounts tallies guests by RSVP status.
type GuestCounts struct {
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`
	Total    int `json:"total"`
}

// CountGuests tallies guests by status.
func CountGuests(guests []Guest) GuestCounts {
	var c GuestCounts
	for _, g := range guests {
		switch g.Status {
		case RSVPPending:
			c.Pending++
		case RSVPAccepted:
			c.Accepted++
		case RSVPDeclined:
			c.Declined++
		}
	}
	c.Total = len(guests)
	return c
}
