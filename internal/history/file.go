package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/mailrun/mailrun/internal/fsutil"
	"github.com/mailrun/mailrun/internal/model"
)

// FileLog keeps summaries as a JSON array in a single file.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog creates a log backed by path. The file is created on first append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (l *FileLog) Append(ctx context.Context, s model.CampaignSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.read()
	if err != nil {
		return err
	}
	all = append(all, s)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := fsutil.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

func (l *FileLog) List(ctx context.Context) ([]model.CampaignSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *FileLog) read() ([]model.CampaignSummary, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var all []model.CampaignSummary
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", l.path, err)
	}
	return all, nil
}
