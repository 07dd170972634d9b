package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType identifies the template an email was rendered from.
const (
	EmailTypeOrgInvitation         = "org_invitation"
	EmailTypeOrgRegistrationInvite = "org_registration_invitation"
	EmailTypeEventInvitation       = "event_invitation"
	EmailTypePasswordReset         = "password_reset"
	EmailTypeOrganizerRequest      = "organizer_request"
	EmailTypeOrganizerDecision     = "organizer_decision"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusQueued = "queued"
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records outgoing emails and their delivery state.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	ReferenceID    *uuid.UUID `json:"reference_id,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
