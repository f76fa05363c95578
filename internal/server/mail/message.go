// Package mail renders account emails from embedded templates and delivers
// them in the background so request flows never wait on SMTP.
package mail

import (
	"context"

	"github.com/dmitrijs2005/flasky/internal/server/models"
)

// Template ids.
const (
	TemplateConfirm       = "auth/email/confirm"
	TemplateResetPassword = "auth/email/reset_password"
	TemplateChangeEmail   = "auth/email/change_email"
	TemplateNewUser       = "mail/new_user"
)

// Data is what every template is executed with.
type Data struct {
	User  *models.User
	Token string
	URL   string
}

// Message is a queued email before rendering.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     Data
}

// Envelope is a rendered email ready for a Sender.
type Envelope struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}
