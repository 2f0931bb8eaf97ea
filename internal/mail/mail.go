// Package mail renders and delivers the platform's notification emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// Kind labels a message for metrics and relays.
type Kind string

const (
	KindVerification Kind = "verification"
	KindSelfInvite   Kind = "self_invite"
	KindAssessor     Kind = "assessor_invite"
	KindInvite       Kind = "invite"
	KindReminder     Kind = "reminder"
)

type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

var bodies = template.Must(template.New("mail").Parse(`
{{- define "verification" -}}
Use this verification code to log in to your Modern360 account:

    {{.Code}}

Enter the code here: {{.VerifyURL}}

Or log in instantly with this link: {{.DirectURL}}

The code expires in {{.TTL}}. If you did not request it, ignore this email.
{{- end}}

{{- define "self_invite" -}}
Hello {{.AssesseeName}},

You have been asked to complete a self-assessment for "{{.Title}}".
{{- if .Deadline}}
Please respond by {{.Deadline}}.
{{- end}}

Start here: {{.Link}}
{{- end}}

{{- define "assessor_invite" -}}
Hello,

You have been asked to assess {{.AssesseeName}} in "{{.Title}}".
{{- if .Deadline}}
Please respond by {{.Deadline}}.
{{- end}}

Your answers are collected through this personal link: {{.Link}}
{{- end}}

{{- define "invite" -}}
Hello,

You have been invited to complete the assessment "{{.Title}}".
{{- if .Deadline}}
Please respond by {{.Deadline}}.
{{- end}}

Start the assessment: {{.Link}}
{{- end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

// Verification builds the login code email.
func Verification(to, code, verifyURL, directURL string, ttl time.Duration) (Message, error) {
	body, err := render("verification", map[string]any{
		"Code": code, "VerifyURL": verifyURL, "DirectURL": directURL, "TTL": ttl.String(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindVerification, To: to, Subject: "Your Modern360 Login Code", Body: body}, nil
}

// Invite describes one invitation email.
type Invite struct {
	To           string
	Title        string
	AssesseeName string
	Link         string
	Deadline     *time.Time
	// Self marks the assessee's own self-assessment link.
	Self bool
	// Adhoc marks a link that is not tied to a roster row.
	Adhoc bool
}

func (in Invite) kindAndSubject() (Kind, string) {
	switch {
	case in.Adhoc || in.AssesseeName == "":
		return KindInvite, "You have been invited to complete: " + in.Title
	case in.Self:
		return KindSelfInvite, "Complete Your Self-Assessment - " + in.Title
	default:
		return KindAssessor, fmt.Sprintf("Assess %s - %s", in.AssesseeName, in.Title)
	}
}

// Invitation builds the first email for an invitation.
func Invitation(in Invite) (Message, error) {
	kind, subject := in.kindAndSubject()
	data := map[string]any{"Title": in.Title, "AssesseeName": in.AssesseeName, "Link": in.Link, "Deadline": ""}
	if in.Deadline != nil {
		data["Deadline"] = in.Deadline.Format("2006-01-02 15:04")
	}
	body, err := render(string(kind), data)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, To: in.To, Subject: subject, Body: body}, nil
}

// Reminder re-sends an invitation with a reminder subject.
func Reminder(in Invite) (Message, error) {
	msg, err := Invitation(in)
	if err != nil {
		return Message{}, err
	}
	msg.Kind = KindReminder
	msg.Subject = "Reminder: " + msg.Subject
	return msg, nil
}
