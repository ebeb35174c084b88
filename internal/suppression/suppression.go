// Package suppression keeps the addresses that asked to receive no more
// campaign mail.
package suppression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailrun/mailrun/internal/model"
)

// Entry is one unsubscribed address.
type Entry struct {
	Email  string    `json:"email"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// List is a set of unsubscribed addresses. Add is idempotent and keeps the
// first entry for an address. Addresses compare case-insensitively.
type List interface {
	Add(ctx context.Context, email, source string) error
	Contains(ctx context.Context, email string) (bool, error)
	Entries(ctx context.Context) ([]Entry, error)
}

// Normalize returns the comparison form of an address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validate(email string) (string, error) {
	e := Normalize(email)
	if e == "" || !strings.Contains(e, "@") {
		return "", fmt.Errorf("%w: invalid email address %q", model.ErrValidation, email)
	}
	return e, nil
}

// Filter drops suppressed recipients and returns the rest in order
// together with the dropped addresses.
func Filter(ctx context.Context, list List, recipients []model.Recipient) ([]model.Recipient, []string, error) {
	kept := make([]model.Recipient, 0, len(recipients))
	var dropped []string
	for _, r := range recipients {
		found, err := list.Contains(ctx, r.Email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check suppression list: %w", err)
		}
		if found {
			dropped = append(dropped, r.Email)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped, nil
}
