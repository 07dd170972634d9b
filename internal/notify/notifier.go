package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/queue"
)

// Enqueuer hands a rendered email to the delivery pipeline.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// LogStore records every email before it is queued.
type LogStore interface {
	Create(ctx context.Context, l *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Options holds product settings used in templates.
type Options struct {
	AppName      string
	FrontendURL  string
	ResetMinutes int
}

// Notifier renders product emails, logs them and queues them for the worker.
type Notifier struct {
	queue  Enqueuer
	logs   LogStore
	opts   Options
	logger *zap.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(q Enqueuer, logs LogStore, opts Options, logger *zap.Logger) *Notifier {
	if opts.AppName == "" {
		opts.AppName = "Event Planner"
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &Notifier{queue: q, logs: logs, opts: opts, logger: logger}
}

func (n *Notifier) link(path string) string {
	return n.opts.FrontendURL + path
}

// PasswordReset sends the reset link to u.
func (n *Notifier) PasswordReset(ctx context.Context, u *models.User, resetURL string) error {
	msg, err := tplPasswordReset.render(passwordResetData{
		AppName:   n.opts.AppName,
		Name:      u.FirstName,
		ResetURL:  resetURL,
		ExpiresIn: n.opts.ResetMinutes,
	})
	if err != nil {
		return err
	}
	return n.send(ctx, models.EmailTypePasswordReset, u.Email, u.FullName(), &u.ID, msg)
}

// OrganizerRequested tells every admin that u asked for organizer access.
func (n *Notifier) OrganizerRequested(ctx context.Context, u *models.User, admins []models.User) error {
	var errs []error
	for i := range admins {
		admin := &admins[i]
		msg, err := tplOrganizerRequest.render(organizerRequestData{
			AppName:     n.opts.AppName,
			AdminName:   admin.FirstName,
			Requester:   u.FullName(),
			Email:       u.Email,
			ApprovalURL: n.link("/admin/organizer-requests"),
		})
		if err != nil {
			return err
		}
		if err := n.send(ctx, models.EmailTypeOrganizerRequest, admin.Email, admin.FullName(), &u.ID, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", admin.Email, err))
		}
	}
	return errors.Join(errs...)
}

// OrganizerDecision tells u whether the organizer request was approved.
func (n *Notifier) OrganizerDecision(ctx context.Context, u *models.User, approved bool, adminName string) error {
	msg, err := tplOrganizerDecision.render(organizerDecisionData{
		AppName:   n.opts.AppName,
		Name:      u.FirstName,
		Approved:  approved,
		AdminName: adminName,
		LoginURL:  n.link("/login"),
	})
	if err != nil {
		return err
	}
	return n.send(ctx, models.EmailTypeOrganizerDecision, u.Email, u.FullName(), &u.ID, msg)
}

// OrganizationInvitation sends the invite. Unregistered invitees (invitee nil) get a
// registration link prefilled with their address.
func (n *Notifier) OrganizationInvitation(ctx context.Context, inv *models.Invitation, org *models.Organization, inviter, invitee *models.User) error {
	data := orgInvitationData{
		AppName:      n.opts.AppName,
		InviterName:  inviter.FullName(),
		Organization: org.Name,
		Role:         strings.ReplaceAll(string(inv.Role), "_", " "),
		ExpiresAt:    inv.ExpiresAt.UTC().Format("January 2, 2006"),
	}
	tpl, emailType, name := tplOrgRegistrationInvite, models.EmailTypeOrgRegistrationInvite, ""
	data.ActionURL = n.link("/register?email=" + url.QueryEscape(inv.Email))
	if invitee != nil {
		tpl, emailType, name = tplOrgInvitation, models.EmailTypeOrgInvitation, invitee.FullName()
		data.ActionURL = n.link("/invitations")
	}
	msg, err := tpl.render(data)
	if err != nil {
		return err
	}
	return n.send(ctx, emailType, inv.Email, name, &inv.ID, msg)
}

// EventInvitation sends a guest the event details and RSVP link.
func (n *Notifier) EventInvitation(ctx context.Context, g *models.Guest, ev *models.EventView, inviter *models.User, rsvpURL string) error {
	msg, err := tplEventInvitation.render(eventInvitationData{
		AppName:      n.opts.AppName,
		GuestName:    g.DisplayName(),
		InviterName:  inviter.FullName(),
		Title:        ev.Title,
		Description:  ev.Description,
		Date:         ev.Date,
		Time:         ev.Time,
		Location:     ev.Location,
		Organization: ev.OrganizationName,
		RSVPURL:      rsvpURL,
	})
	if err != nil {
		return err
	}
	return n.send(ctx, models.EmailTypeEventInvitation, g.Email, g.Name, &ev.ID, msg)
}

func (n *Notifier) send(ctx context.Context, emailType, to, toName string, ref *uuid.UUID, msg Message) error {
	entry := &models.EmailLog{
		EmailType:      emailType,
		RecipientEmail: to,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusQueued,
		ReferenceID:    ref,
	}
	if err := n.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	err := n.queue.EnqueueEmail(ctx, queue.EmailPayload{
		LogID:     entry.ID,
		EmailType: emailType,
		To:        to,
		ToName:    toName,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
	})
	if err != nil {
		if markErr := n.logs.MarkFailed(ctx, entry.ID, "enqueue: "+err.Error()); markErr != nil {
			n.logger.Warn("mark email log failed", zap.String("log_id", entry.ID.String()), zap.Error(markErr))
		}
		return fmt.Errorf("enqueue %s email: %w", emailType, err)
	}
	n.logger.Debug("email queued",
		zap.String("email_type", emailType),
		zap.String("log_id", entry.ID.String()),
	)
	return nil
}
