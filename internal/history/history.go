// Package history records one summary per finished campaign.
package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mailrun/mailrun/internal/model"
)

// Log stores campaign summaries.
type Log interface {
	Append(ctx context.Context, s model.CampaignSummary) error
	// List returns summaries in the order they were appended.
	List(ctx context.Context) ([]model.CampaignSummary, error)
}

// Columns is the tabular layout shared by the sheet and row parsers.
var Columns = []string{"timestamp", "campaign_name", "subject", "total", "delivered", "failed", "state", "finished_at"}

// MultiLog appends to every log and reads from the first one.
type MultiLog struct {
	logs []Log
}

// NewMultiLog combines logs; at least one is required.
func NewMultiLog(logs ...Log) (*MultiLog, error) {
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: at least one history backend is required", model.ErrValidation)
	}
	return &MultiLog{logs: logs}, nil
}

// Append writes s to every log, even when an earlier one fails.
func (m *MultiLog) Append(ctx context.Context, s model.CampaignSummary) error {
	var errs []error
	for _, l := range m.logs {
		if err := l.Append(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLog) List(ctx context.Context) ([]model.CampaignSummary, error) {
	return m.logs[0].List(ctx)
}

func summaryRow(s model.CampaignSummary) []any {
	finished := ""
	if !s.FinishedAt.IsZero() {
		finished = s.FinishedAt.UTC().Format(time.RFC3339)
	}
	return []any{s.CampaignID, s.Name, s.Subject, s.Total, s.Delivered, s.Failed, string(s.State), finished}
}

// parseRow reads a row laid out as Columns. Rows written before the state
// and finished_at columns existed have only the first six cells.
func parseRow(row []any) (model.CampaignSummary, error) {
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}
	number := func(i int) (int, error) {
		v := cell(i)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", Columns[i], err)
		}
		return n, nil
	}

	s := model.CampaignSummary{
		CampaignID: cell(0),
		Name:       cell(1),
		Subject:    cell(2),
		State:      model.CampaignState(cell(6)),
	}
	if s.CampaignID == "" {
		return s, fmt.Errorf("%w: row without timestamp", model.ErrValidation)
	}

	var err error
	if s.Total, err = number(3); err != nil {
		return s, err
	}
	if s.Delivered, err = number(4); err != nil {
		return s, err
	}
	if s.Failed, err = number(5); err != nil {
		return s, err
	}
	if v := cell(7); v != "" {
		if s.FinishedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return s, fmt.Errorf("column finished_at: %w", err)
		}
	}
	if s.State == "" {
		s.State = model.CampaignCompleted
	}
	return s, nil
}
