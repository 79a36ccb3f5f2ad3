// Package mailer composes schedule messages and delivers them over SMTP.
package mailer

import (
	"context"

	"github.com/nhle/mail-scheduler/internal/model"
)

// Attachment is a resolved file payload.
type Attachment struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Message is a fully formed outgoing email.
type Message struct {
	Subject    string
	From       string
	To         []string
	Body       string
	Attachment *Attachment
}

// Transport delivers a message using profile's server and credentials.
// Implementations must give up when ctx is done.
type Transport interface {
	Send(ctx context.Context, profile model.SMTPProfile, msg Message) error
}
