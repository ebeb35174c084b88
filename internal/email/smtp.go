package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/model"
)

// Ensure SMTPTransport implements Transport
var _ Transport = (*SMTPTransport)(nil)

// SMTPTransport submits messages over SMTP and optionally stores a sent
// copy over IMAP with the same credentials.
type SMTPTransport struct {
	smtp    config.SMTPConfig
	imap    config.IMAPConfig
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	archive func(ctx context.Context, raw []byte) error
	now     func() time.Time
}

// NewSMTPTransport creates a new SMTPTransport.
func NewSMTPTransport(smtpCfg config.SMTPConfig, imapCfg config.IMAPConfig) *SMTPTransport {
	t := &SMTPTransport{
		smtp: smtpCfg,
		imap: imapCfg,
		now:  time.Now,
	}
	dialer := &net.Dialer{Timeout: smtpCfg.Timeout}
	t.dial = dialer.DialContext
	t.archive = t.appendToSent
	return t
}

// Open connects, upgrades to TLS when configured and authenticates.
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	conn, err := t.dial(ctx, "tcp", t.smtp.Addr())
	if err != nil {
		return nil, fmt.Errorf("smtp: failed to connect: %w: %w", model.ErrSend, err)
	}
	if t.smtp.Timeout > 0 {
		_ = conn.SetDeadline(t.now().Add(t.smtp.Timeout))
	}

	c, err := smtp.NewClient(conn, t.smtp.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: handshake failed: %w: %w", model.ErrSend, err)
	}

	if t.smtp.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			_ = c.Close()
			return nil, fmt.Errorf("smtp: server does not support STARTTLS: %w", model.ErrSend)
		}
		if err := c.StartTLS(&tls.Config{ServerName: t.smtp.Host}); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("smtp: STARTTLS failed: %w: %w", model.ErrSend, err)
		}
	}

	if t.smtp.Username != "" {
		auth := smtp.PlainAuth("", t.smtp.Username, t.smtp.Password, t.smtp.Host)
		if err := c.Auth(auth); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("smtp: login rejected: %w: %w", model.ErrAuthentication, err)
		}
	}

	return &smtpSession{transport: t, client: c}, nil
}

// Verify opens and closes a session to check the credentials.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	s, err := t.Open(ctx)
	if err != nil {
		return err
	}
	return s.Close()
}

// defaultArchiveTimeout bounds IMAP archiving when no SMTP timeout is set.
const defaultArchiveTimeout = 30 * time.Second

// archiveTimeout bounds the IMAP dial, greeting and each command.
func (t *SMTPTransport) archiveTimeout() time.Duration {
	if t.smtp.Timeout > 0 {
		return t.smtp.Timeout
	}
	return defaultArchiveTimeout
}

// appendToSent stores raw in the configured sent mailbox.
func (t *SMTPTransport) appendToSent(ctx context.Context, raw []byte) error {
	timeout := t.archiveTimeout()
	dialer := &net.Dialer{Timeout: timeout}
	c, err := imapclient.DialWithDialerTLS(dialer, t.imap.Addr(), &tls.Config{ServerName: t.imap.Host})
	if err != nil {
		return fmt.Errorf("imap: failed to connect: %w", err)
	}
	defer func() { _ = c.Logout() }()

	c.Timeout = timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		c.Timeout = time.Until(deadline)
	}

	if err := c.Login(t.smtp.Username, t.smtp.Password); err != nil {
		return fmt.Errorf("imap: login rejected: %w", err)
	}

	if err := c.Append(t.imap.SentMailbox, []string{imap.SeenFlag}, t.now(), bytes.NewBuffer(raw)); err != nil {
		return fmt.Errorf("imap: append to %s failed: %w", t.imap.SentMailbox, err)
	}
	return nil
}

type smtpSession struct {
	transport *SMTPTransport
	client    *smtp.Client
	sentID    string
	sentRaw   []byte
}

// Send delivers msg to its single recipient.
func (s *smtpSession) Send(ctx context.Context, msg Message) error {
	raw, err := BuildMIME(msg, s.transport.now())
	if err != nil {
		return fmt.Errorf("smtp: %w: %w", model.ErrSend, err)
	}

	if err := s.client.Mail(msg.From); err != nil {
		return classifySMTP("MAIL FROM", err)
	}
	if err := s.client.Rcpt(msg.To); err != nil {
		return classifySMTP("RCPT TO", err)
	}
	w, err := s.client.Data()
	if err != nil {
		return classifySMTP("DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return classifySMTP("DATA", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP("DATA", err)
	}

	s.sentID = msg.ID
	s.sentRaw = raw
	return nil
}

// ArchiveSent appends the exact bytes that were sent to the IMAP sent mailbox.
func (s *smtpSession) ArchiveSent(ctx context.Context, msg Message) error {
	if !s.transport.imap.Enabled {
		return nil
	}

	raw := s.sentRaw
	if raw == nil || s.sentID != msg.ID {
		var err error
		raw, err = BuildMIME(msg, s.transport.now())
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrArchive, err)
		}
	}

	if err := s.transport.archive(ctx, raw); err != nil {
		return fmt.Errorf("%w: %w", model.ErrArchive, err)
	}
	return nil
}

// Close ends the SMTP session.
func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}

// classifySMTP maps SMTP replies to the campaign error taxonomy.
// 530, 534 and 535 are authentication replies; anything else fails
// only the current recipient.
func classifySMTP(stage string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return fmt.Errorf("smtp: %s: %w: %w", stage, model.ErrAuthentication, err)
		}
	}
	return fmt.Errorf("smtp: %s: %w: %w", stage, model.ErrSend, err)
}
