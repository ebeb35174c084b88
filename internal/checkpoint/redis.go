package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mailrun/mailrun/internal/model"
)

// RedisStore keeps each checkpoint under its own key and indexes campaign
// IDs in a sorted set. All members share score 0, so the set orders them
// lexicographically, which for campaign IDs is chronological.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using keys under prefix, e.g. "mailrun:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "checkpoint:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "checkpoints"
}

// Save writes the document and its index entry in one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, cp *model.Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(cp.CampaignID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: cp.CampaignID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.CampaignID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*model.Checkpoint, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

func (s *RedisStore) Latest(ctx context.Context) (string, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no checkpoints: %w", model.ErrNotFound)
	}
	return ids[0], nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
	}
	return nil
}
