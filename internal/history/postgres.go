package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mailrun/mailrun/internal/database"
	"github.com/mailrun/mailrun/internal/model"
)

// PostgresLog stores summaries in the campaign_history table.
type PostgresLog struct {
	db *database.Postgres
}

// NewPostgresLog creates a log over an open connection; the table comes
// from the migrations in migrations/.
func NewPostgresLog(db *database.Postgres) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts the summary; a second summary for the same campaign
// replaces the first.
func (l *PostgresLog) Append(ctx context.Context, s model.CampaignSummary) error {
	query := `
		INSERT INTO campaign_history (campaign_id, name, subject, total, delivered, failed, state, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id) DO UPDATE SET
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			total = EXCLUDED.total,
			delivered = EXCLUDED.delivered,
			failed = EXCLUDED.failed,
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at
	`

	_, err := l.db.ExecContext(ctx, query,
		s.CampaignID, s.Name, s.Subject, s.Total, s.Delivered, s.Failed, string(s.State), s.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert campaign summary: %w", model.ErrPersistence, err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context) ([]model.CampaignSummary, error) {
	query := `
		SELECT campaign_id, name, subject, total, delivered, failed, state, finished_at
		FROM campaign_history
		ORDER BY campaign_id
	`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign history: %w", err)
	}
	defer rows.Close()

	var out []model.CampaignSummary
	for rows.Next() {
		var s model.CampaignSummary
		var state string
		var finished sql.NullTime
		if err := rows.Scan(&s.CampaignID, &s.Name, &s.Subject, &s.Total, &s.Delivered, &s.Failed, &state, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan campaign summary: %w", err)
		}
		s.State = model.CampaignState(state)
		if finished.Valid {
			s.FinishedAt = finished.Time.In(time.UTC)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
