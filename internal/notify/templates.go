package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type template struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

func newTemplate(name, subject, html, text string) template {
	return template{
		subject: texttemplate.Must(texttemplate.New(name + "_subject").Parse(subject)),
		html:    htmltemplate.Must(htmltemplate.New(name + "_html").Parse(layoutHTML(html))),
		text:    texttemplate.Must(texttemplate.New(name + "_text").Parse(text)),
	}
}

func (t template) render(data interface{}) (Message, error) {
	var subj, html, text bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Message{}, err
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Message{}, err
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: strings.TrimSpace(subj.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

func layoutHTML(body string) string {
	return `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222;max-width:600px;margin:0 auto">` +
		body +
		`<p style="color:#888;font-size:12px">{{.AppName}}</p></body></html>`
}

type passwordResetData struct {
	AppName   string
	Name      string
	ResetURL  string
	ExpiresIn int
}

type organizerRequestData struct {
	AppName     string
	AdminName   string
	Requester   string
	Email       string
	ApprovalURL string
}

type organizerDecisionData struct {
	AppName   string
	Name      string
	Approved  bool
	AdminName string
	LoginURL  string
}

type orgInvitationData struct {
	AppName      string
	InviterName  string
	Organization string
	Role         string
	ActionURL    string
	ExpiresAt    string
}

type eventInvitationData struct {
	AppName      string
	GuestName    string
	InviterName  string
	Title        string
	Description  string
	Date         string
	Time         string
	Location     string
	Organization string
	RSVPURL      string
}

var (
	tplPasswordReset = newTemplate("password_reset",
		`Reset your {{.AppName}} password`,
		`<h2>Password reset</h2><p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for {{.ExpiresIn}} minutes.</p>
<p><a href="{{.ResetURL}}">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`,
		`Hi {{.Name}},

We received a request to reset your password. The link below is valid for {{.ExpiresIn}} minutes.

{{.ResetURL}}

If you did not request this, you can ignore this email.`)

	tplOrganizerRequest = newTemplate("organizer_request",
		`New organizer request from {{.Requester}}`,
		`<h2>Organizer request</h2><p>Hi {{.AdminName}},</p>
<p>{{.Requester}} ({{.Email}}) registered and asked for organizer access.</p>
<p><a href="{{.ApprovalURL}}">Review pending requests</a></p>`,
		`Hi {{.AdminName}},

{{.Requester}} ({{.Email}}) registered and asked for organizer access.

Review pending requests: {{.ApprovalURL}}`)

	tplOrganizerDecision = newTemplate("organizer_decision",
		`Your organizer request was {{if .Approved}}approved{{else}}declined{{end}}`,
		`<p>Hi {{.Name}},</p>
{{if .Approved}}<p>{{.AdminName}} approved your organizer request. You can now create an organization and manage events.</p>
{{else}}<p>{{.AdminName}} declined your organizer request. Your account stays active as a team member.</p>{{end}}
<p><a href="{{.LoginURL}}">Sign in</a></p>`,
		`Hi {{.Name}},

{{if .Approved}}{{.AdminName}} approved your organizer request. You can now create an organization and manage events.{{else}}{{.AdminName}} declined your organizer request. Your account stays active as a team member.{{end}}

Sign in: {{.LoginURL}}`)

	tplOrgInvitation = newTemplate("org_invitation",
		`{{.InviterName}} invited you to join {{.Organization}}`,
		`<h2>You're invited</h2>
<p>{{.InviterName}} invited you to join <strong>{{.Organization}}</strong> as {{.Role}}.</p>
<p>Sign in and accept the invitation before {{.ExpiresAt}}.</p>
<p><a href="{{.ActionURL}}">Open invitations</a></p>`,
		`{{.InviterName}} invited you to join {{.Organization}} as {{.Role}}.

Sign in and accept the invitation before {{.ExpiresAt}}:
{{.ActionURL}}`)

	tplOrgRegistrationInvite = newTemplate("org_registration_invitation",
		`Join {{.Organization}} on {{.AppName}}`,
		`<h2>You're invited</h2>
<p>{{.InviterName}} invited you to join <strong>{{.Organization}}</strong> as {{.Role}}.</p>
<p>Create an account with this email address, then accept the invitation before {{.ExpiresAt}}.</p>
<p><a href="{{.ActionURL}}">Create your account</a></p>`,
		`{{.InviterName}} invited you to join {{.Organization}} as {{.Role}}.

Create an account with this email address, then accept the invitation before {{.ExpiresAt}}:
{{.ActionURL}}`)

	tplEventInvitation = newTemplate("event_invitation",
		`You're invited: {{.Title}}`,
		`<h2>{{.Title}}</h2><p>Hi {{.GuestName}},</p>
<p>{{.InviterName}} from {{.Organization}} invited you to this event.</p>
<ul><li>Date: {{.Date}}</li><li>Time: {{.Time}}</li><li>Location: {{.Location}}</li></ul>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p><a href="{{.RSVPURL}}">Respond to the invitation</a></p>`,
		`Hi {{.GuestName}},

{{.InviterName}} from {{.Organization}} invited you to {{.Title}}.

Date: {{.Date}}
Time: {{.Time}}
Location: {{.Location}}
{{if .Description}}
{{.Description}}
{{end}}
Respond here: {{.RSVPURL}}`)
)
