package email

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecipient is returned for a request without recipients.
var ErrNoRecipient = errors.New("email has no recipient")

// SendRequest contains the data needed to send an email via an external provider.
type SendRequest struct {
	To      []string // Recipient email addresses
	From    string   // Sender address; empty uses the sender's default
	Subject string
	HTML    string
	ReplyTo string
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
