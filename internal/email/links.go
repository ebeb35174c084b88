package email

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mailrun/mailrun/internal/config"
)

// ErrInvalidLinkToken indicates a tracking or unsubscribe token that
// failed verification.
var ErrInvalidLinkToken = errors.New("invalid link token")

// LinkBuilder builds open-tracking, click-tracking and unsubscribe URLs.
// With a signing key the recipient address travels as a signed token
// instead of a plain query parameter. Click tracking needs a signing key:
// each wrapped link carries a token bound to its target URL.
type LinkBuilder struct {
	baseURL        string
	unsubscribeURL string
	key            []byte
	ttl            time.Duration
	now            func() time.Time
}

// NewLinkBuilder creates a LinkBuilder from tracking configuration.
func NewLinkBuilder(cfg config.TrackingConfig) *LinkBuilder {
	return &LinkBuilder{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		unsubscribeURL: cfg.UnsubscribeURL,
		key:            []byte(cfg.SigningKey),
		ttl:            cfg.LinkTTL,
		now:            time.Now,
	}
}

// linkClaims identify the recipient and, for click links, the target.
type linkClaims struct {
	URL string `json:"url,omitempty"`
	jwt.RegisteredClaims
}

// Links holds the per-recipient link parameters.
type Links struct {
	builder *LinkBuilder
	email   string
	params  url.Values
}

// For returns the links for one recipient.
func (b *LinkBuilder) For(email string) (Links, error) {
	params := url.Values{}
	if len(b.key) == 0 {
		params.Set("email", email)
		return Links{builder: b, email: email, params: params}, nil
	}

	token, err := b.sign(email, "")
	if err != nil {
		return Links{}, err
	}
	params.Set("t", token)
	return Links{builder: b, email: email, params: params}, nil
}

// Click wraps target in a click-tracking redirect. Without a tracking
// base URL or a signing key the target is returned unchanged.
func (l Links) Click(target string) string {
	if l.builder == nil || l.builder.baseURL == "" || len(l.builder.key) == 0 {
		return target
	}
	token, err := l.builder.sign(l.email, target)
	if err != nil {
		return target
	}
	q := url.Values{}
	q.Set("t", token)
	q.Set("url", target)
	return l.builder.baseURL + "/track/click?" + q.Encode()
}

// OpenPixel returns the open-tracking pixel URL, or "" when tracking is off.
func (l Links) OpenPixel() string {
	if l.builder == nil || l.builder.baseURL == "" {
		return ""
	}
	return l.builder.baseURL + "/track/open?" + l.params.Encode()
}

// Unsubscribe returns the unsubscribe URL, or "" when none is configured.
func (l Links) Unsubscribe() string {
	if l.builder == nil || l.builder.unsubscribeURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(l.builder.unsubscribeURL, "?") {
		sep = "&"
	}
	return l.builder.unsubscribeURL + sep + l.params.Encode()
}

// ParseToken verifies a token produced by For and returns the recipient address.
func (b *LinkBuilder) ParseToken(token string) (string, error) {
	claims, err := b.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ClickTarget verifies a click-tracking request and returns the recipient
// and the target it was signed for. The url parameter must match the
// signed target exactly.
func (b *LinkBuilder) ClickTarget(q url.Values) (email, target string, err error) {
	claims, err := b.parse(q.Get("t"))
	if err != nil {
		return "", "", err
	}
	if claims.URL == "" || claims.URL != q.Get("url") {
		return "", "", fmt.Errorf("%w: target does not match the signed link", ErrInvalidLinkToken)
	}
	return claims.Subject, claims.URL, nil
}

func (b *LinkBuilder) parse(token string) (*linkClaims, error) {
	if len(b.key) == 0 {
		return nil, fmt.Errorf("%w: signing is disabled", ErrInvalidLinkToken)
	}

	claims := &linkClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return b.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkToken, err)
	}
	return claims, nil
}

// Recipient returns the address a tracking or unsubscribe request was
// issued for. With a signing key only a valid "t" token is accepted.
func (b *LinkBuilder) Recipient(q url.Values) (string, error) {
	if len(b.key) > 0 {
		return b.ParseToken(q.Get("t"))
	}
	if e := strings.TrimSpace(q.Get("email")); e != "" {
		return e, nil
	}
	return "", fmt.Errorf("%w: missing recipient", ErrInvalidLinkToken)
}

func (b *LinkBuilder) sign(email, target string) (string, error) {
	now := b.now()
	claims := linkClaims{
		URL: target,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if b.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(b.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign link token: %w", err)
	}
	return signed, nil
}
