// Package checkpoint persists the resume state of campaign runs.
package checkpoint

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/mailrun/mailrun/internal/model"
)

// Store persists campaign checkpoints keyed by campaign ID.
// Implementations must make Save atomic: a reader never observes a
// partially written checkpoint.
type Store interface {
	// Save creates or replaces the checkpoint for cp.CampaignID.
	Save(ctx context.Context, cp *model.Checkpoint) error
	// Load returns the checkpoint for id, or model.ErrNotFound.
	Load(ctx context.Context, id string) (*model.Checkpoint, error)
	// Latest returns the most recent campaign ID, or model.ErrNotFound.
	Latest(ctx context.Context) (string, error)
	// List returns all stored campaign IDs, oldest first.
	List(ctx context.Context) ([]string, error)
	// Delete removes the checkpoint for id, or returns model.ErrNotFound.
	Delete(ctx context.Context, id string) error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateID rejects IDs that cannot safely be used as file names or keys.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || !validID.MatchString(id) {
		return fmt.Errorf("%w: invalid campaign id %q", model.ErrValidation, id)
	}
	return nil
}

// New builds the checkpoint of c with the outcomes recorded so far.
func New(c *model.Campaign, report []model.Outcome, now time.Time) *model.Checkpoint {
	return &model.Checkpoint{
		CampaignID: c.ID,
		Name:       c.Name,
		Subject:    c.Subject,
		Sender:     c.Sender,
		Recipients: c.Recipients,
		Cursor:     c.Cursor,
		Report:     slices.Clone(report),
		SavedAt:    now.UTC(),
	}
}

// Campaign restores the campaign described by cp.
// The returned campaign is not started yet; its cursor is cp.Cursor.
func Campaign(cp *model.Checkpoint) *model.Campaign {
	created, err := time.ParseInLocation(model.CampaignIDLayout, cp.CampaignID, time.Local)
	if err != nil {
		created = cp.SavedAt
	}
	cursor := min(max(cp.Cursor, 0), len(cp.Recipients))
	return &model.Campaign{
		ID:         cp.CampaignID,
		Name:       cp.Name,
		Subject:    cp.Subject,
		Sender:     cp.Sender,
		Recipients: slices.Clone(cp.Recipients),
		Cursor:     cursor,
		State:      model.CampaignNotStarted,
		CreatedAt:  created,
	}
}

func validateCheckpoint(cp *model.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", model.ErrValidation)
	}
	if err := ValidateID(cp.CampaignID); err != nil {
		return err
	}
	if cp.Cursor < 0 || cp.Cursor > len(cp.Recipients) {
		return fmt.Errorf("%w: cursor %d out of range [0, %d]", model.ErrValidation, cp.Cursor, len(cp.Recipients))
	}
	return nil
}
