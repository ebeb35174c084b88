package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/model"
)

// Ensure GmailTransport implements Transport
var _ Transport = (*GmailTransport)(nil)

// GmailTransport implements Transport using the Gmail API.
// Gmail stores sent messages itself; ArchiveSent optionally applies a label.
type GmailTransport struct {
	service      *gmail.Service
	tokens       oauth2.TokenSource
	archiveLabel string
	now          func() time.Time
}

// NewGmailTransport creates a new GmailTransport.
// It accepts a service account credentials JSON with domain-wide delegation,
// or OAuth2 client credentials with a refresh token for the sender mailbox.
func NewGmailTransport(ctx context.Context, cfg config.GmailConfig) (*GmailTransport, error) {
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}

	scopes := []string{gmail.GmailSendScope}
	if cfg.ArchiveLabel != "" {
		scopes = append(scopes, gmail.GmailModifyScope)
	}

	var tokens oauth2.TokenSource
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), scopes...)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// For service account with domain-wide delegation, impersonate the sender
		jwtConfig.Subject = cfg.SenderAddress
		tokens = jwtConfig.TokenSource(ctx)
	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		}
		tokens = oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, fmt.Errorf("gmail: credentials JSON or refresh token is required")
	}

	return newGmailTransport(ctx, oauth2.NewClient(ctx, tokens), tokens, cfg.ArchiveLabel)
}

func newGmailTransport(ctx context.Context, client *http.Client, tokens oauth2.TokenSource, archiveLabel string, opts ...option.ClientOption) (*GmailTransport, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &GmailTransport{
		service:      svc,
		tokens:       tokens,
		archiveLabel: archiveLabel,
		now:          time.Now,
	}, nil
}

// Open returns a session bound to the shared API client.
func (g *GmailTransport) Open(ctx context.Context) (Session, error) {
	return &gmailSession{transport: g}, nil
}

// Verify fetches an access token to check the credentials.
func (g *GmailTransport) Verify(ctx context.Context) error {
	if g.tokens == nil {
		return nil
	}
	if _, err := g.tokens.Token(); err != nil {
		return fmt.Errorf("gmail: %w: %w", model.ErrAuthentication, err)
	}
	return nil
}

type gmailSession struct {
	transport *GmailTransport
	sentID    string
}

// Send sends an email via the Gmail API.
func (s *gmailSession) Send(ctx context.Context, msg Message) error {
	raw, err := BuildMIME(msg, s.transport.now())
	if err != nil {
		return fmt.Errorf("gmail: %w: %w", model.ErrSend, err)
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	sent, err := s.transport.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
	if err != nil {
		return classifyGmail("failed to send email", err, model.ErrSend)
	}

	s.sentID = sent.Id
	return nil
}

// ArchiveSent labels the sent message when an archive label is configured.
func (s *gmailSession) ArchiveSent(ctx context.Context, msg Message) error {
	if s.transport.archiveLabel == "" {
		return nil
	}
	if s.sentID == "" {
		return fmt.Errorf("gmail: no sent message to label: %w", model.ErrArchive)
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{s.transport.archiveLabel}}
	if _, err := s.transport.service.Users.Messages.Modify("me", s.sentID, req).Context(ctx).Do(); err != nil {
		return classifyGmail("failed to label sent email", err, model.ErrArchive)
	}
	return nil
}

// Close is a no-op; the HTTP client is owned by the transport.
func (s *gmailSession) Close() error {
	return nil
}

// classifyGmail maps API and token errors to the campaign error taxonomy.
// Archive failures keep model.ErrArchive even when the credential was
// rejected, so callers still treat them as warnings.
func classifyGmail(msg string, err error, fallback error) error {
	if !isGmailAuthError(err) {
		return fmt.Errorf("gmail: %s: %w: %w", msg, fallback, err)
	}
	if fallback == model.ErrArchive {
		return fmt.Errorf("gmail: %s: %w: %w: %w", msg, model.ErrArchive, model.ErrAuthentication, err)
	}
	return fmt.Errorf("gmail: %s: %w: %w", msg, model.ErrAuthentication, err)
}

// gmailQuotaReasons are 403 reasons that mean the account is throttled,
// not that the credential lacks access.
var gmailQuotaReasons = map[string]bool{
	"userRateLimitExceeded":   true,
	"rateLimitExceeded":       true,
	"dailyLimitExceeded":      true,
	"quotaExceeded":           true,
	"limitExceeded":           true,
	"concurrentLimitExceeded": true,
}

func isGmailAuthError(err error) bool {
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return true
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if gmailQuotaReasons[item.Reason] {
				return false
			}
		}
		return true
	}
	return false
}
