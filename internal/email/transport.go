package email

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecipient indicates a message without a recipient address.
var ErrNoRecipient = errors.New("email must have a recipient")

// Transport opens authenticated sessions against an email provider.
// This abstraction allows swapping providers (SMTP, Gmail, etc.)
// without changing the dispatch logic.
type Transport interface {
	// Open establishes and authenticates a new session.
	// Credential failures wrap model.ErrAuthentication.
	Open(ctx context.Context) (Session, error)
	// Verify checks that the configured credentials are accepted.
	Verify(ctx context.Context) error
}

// Session sends messages over one authenticated connection.
// A session is used for a single recipient and then closed.
type Session interface {
	// Send delivers msg. Failures wrap model.ErrSend, or
	// model.ErrAuthentication when the provider rejects the credentials.
	Send(ctx context.Context, msg Message) error
	// ArchiveSent stores a copy of a message previously passed to Send.
	// Failures wrap model.ErrArchive.
	ArchiveSent(ctx context.Context, msg Message) error
	Close() error
}

// Message represents an email message to be sent.
type Message struct {
	ID          string            // Message-ID without angle brackets
	From        string            // sender address
	FromName    string            // sender display name
	To          string            // recipient email address
	ToName      string            // recipient display name
	Subject     string            // email subject
	HTMLBody    string            // HTML email body
	TextBody    string            // plain-text fallback body
	Date        time.Time         // zero means the time of sending
	Headers     map[string]string // extra headers
	Attachments []Attachment
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
