package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/model"
)

func sampleSummary(id string) model.CampaignSummary {
	return model.CampaignSummary{
		CampaignID: id,
		Name:       "Spring Expo",
		Subject:    "You're invited",
		Total:      3,
		Delivered:  2,
		Failed:     1,
		State:      model.CampaignCompleted,
		FinishedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFileLog_AppendAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewFileLog(filepath.Join(t.TempDir(), "campaigns.json"))

	all, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, l.Append(ctx, sampleSummary("2024-05-01_09-30-00")))
	require.NoError(t, l.Append(ctx, sampleSummary("2024-05-02_09-30-00")))

	all, err = l.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2024-05-01_09-30-00", all[0].CampaignID)
	assert.Equal(t, sampleSummary("2024-05-02_09-30-00"), all[1])
}

func TestFileLog_UsesSnakeCaseKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "campaigns.json")
	require.NoError(t, NewFileLog(path).Append(context.Background(), sampleSummary("2024-05-01_09-30-00")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp": "2024-05-01_09-30-00"`)
	assert.Contains(t, string(data), `"campaign_name": "Spring Expo"`)
}

func TestFileLog_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "campaigns.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileLog(path).List(context.Background())
	require.Error(t, err)
}

type brokenLog struct{}

func (brokenLog) Append(ctx context.Context, s model.CampaignSummary) error {
	return errors.Join(model.ErrPersistence, errors.New("quota exceeded"))
}

func (brokenLog) List(ctx context.Context) ([]model.CampaignSummary, error) {
	return nil, errors.New("unreachable")
}

func TestMultiLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := NewFileLog(filepath.Join(t.TempDir(), "a.json"))
	secondary := NewFileLog(filepath.Join(t.TempDir(), "b.json"))

	m, err := NewMultiLog(primary, brokenLog{}, secondary)
	require.NoError(t, err)

	err = m.Append(ctx, sampleSummary("2024-05-01_09-30-00"))
	require.ErrorIs(t, err, model.ErrPersistence)

	// The failing backend does not stop the others.
	for _, l := range []Log{primary, secondary} {
		all, err := l.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	}

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNewMultiLog_RequiresABackend(t *testing.T) {
	t.Parallel()

	_, err := NewMultiLog()
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestParseRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     []any
		want    model.CampaignSummary
		wantErr bool
	}{
		{
			name: "full row",
			row:  summaryRow(sampleSummary("2024-05-01_09-30-00")),
			want: sampleSummary("2024-05-01_09-30-00"),
		},
		{
			name: "legacy six columns with numbers from the sheets api",
			row:  []any{"2024-05-01_09-30-00", "Expo", "Hi", float64(10), float64(9), float64(1)},
			want: model.CampaignSummary{
				CampaignID: "2024-05-01_09-30-00", Name: "Expo", Subject: "Hi",
				Total: 10, Delivered: 9, Failed: 1, State: model.CampaignCompleted,
			},
		},
		{name: "missing timestamp", row: []any{"", "Expo"}, wantErr: true},
		{name: "bad number", row: []any{"2024-05-01_09-30-00", "Expo", "Hi", "many"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseRow(tt.row)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
