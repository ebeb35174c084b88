package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mailrun/mailrun/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	campaign_id TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	cursor      INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	saved_at    INTEGER NOT NULL
)`

// SQLiteStore keeps checkpoints in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the checkpoints table if it does not exist.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the checkpoint row; SQLite applies the statement atomically.
func (s *SQLiteStore) Save(ctx context.Context, cp *model.Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (campaign_id, payload, cursor, total, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET
			payload = excluded.payload,
			cursor = excluded.cursor,
			total = excluded.total,
			saved_at = excluded.saved_at`,
		cp.CampaignID, string(data), cp.Cursor, len(cp.Recipients), cp.SavedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.CampaignID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM checkpoints WHERE campaign_id = ?`, id,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

func (s *SQLiteStore) Latest(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT campaign_id FROM checkpoints ORDER BY campaign_id DESC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no checkpoints: %w", model.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read latest checkpoint: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT campaign_id FROM checkpoints ORDER BY campaign_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE campaign_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("checkpoint %s: %w", id, model.ErrNotFound)
	}
	return nil
}
