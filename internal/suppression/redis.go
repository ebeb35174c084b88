package suppression

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisList stores entries in one hash keyed by address.
type RedisList struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

// NewRedisList creates a list under prefix+"unsubscribed".
func NewRedisList(client redis.UniversalClient, prefix string) *RedisList {
	return &RedisList{client: client, key: prefix + "unsubscribed", now: time.Now}
}

func (l *RedisList) Add(ctx context.Context, email, source string) error {
	e, err := validate(email)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Entry{Email: e, Source: source, At: l.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode suppression entry: %w", err)
	}
	if err := l.client.HSetNX(ctx, l.key, e, data).Err(); err != nil {
		return fmt.Errorf("failed to add %s to suppression list: %w", e, err)
	}
	return nil
}

func (l *RedisList) Contains(ctx context.Context, email string) (bool, error) {
	found, err := l.client.HExists(ctx, l.key, Normalize(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query suppression list: %w", err)
	}
	return found, nil
}

// Entries returns every entry ordered by address.
func (l *RedisList) Entries(ctx context.Context) ([]Entry, error) {
	raw, err := l.client.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read suppression list: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for email, v := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			e = Entry{Email: email}
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}
