package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/logger"
)

// Retention decides which checkpoints survive a prune.
type Retention struct {
	// PruneCompleted removes checkpoints whose campaign covered every recipient.
	PruneCompleted bool
	// MaxSnapshots keeps at most this many of the newest checkpoints; 0 keeps all.
	MaxSnapshots int
}

// RetentionFromConfig reads the retention policy from the checkpoint section.
func RetentionFromConfig(cfg config.CheckpointConfig) Retention {
	return Retention{PruneCompleted: cfg.PruneCompleted, MaxSnapshots: cfg.MaxSnapshots}
}

// Prune applies r to the store and returns the removed campaign IDs.
// Suspended campaigns are only removed by the MaxSnapshots cap.
func Prune(ctx context.Context, store Store, r Retention, log *logger.Logger) ([]string, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	doomed := make(map[string]bool)
	if r.MaxSnapshots > 0 && len(ids) > r.MaxSnapshots {
		for _, id := range ids[:len(ids)-r.MaxSnapshots] {
			doomed[id] = true
		}
	}
	if r.PruneCompleted {
		for _, id := range ids {
			if doomed[id] {
				continue
			}
			cp, err := store.Load(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("campaign_id", id).Msg("skipping unreadable checkpoint")
				continue
			}
			if cp.IsComplete() {
				doomed[id] = true
			}
		}
	}

	var removed []string
	var errs []error
	for _, id := range ids {
		if !doomed[id] {
			continue
		}
		if err := store.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint %s: %w", id, err))
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		log.Info().Strs("campaign_ids", removed).Msg("pruned checkpoints")
	}
	return removed, errors.Join(errs...)
}
