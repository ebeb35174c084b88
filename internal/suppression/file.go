package suppression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/mailrun/mailrun/internal/fsutil"
	"github.com/mailrun/mailrun/internal/model"
)

// FileList keeps entries as a JSON array in a single file.
type FileList struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileList creates a list backed by path. The file is created on first add.
func NewFileList(path string) *FileList {
	return &FileList{path: path, now: time.Now}
}

func (l *FileList) Add(ctx context.Context, email, source string) error {
	e, err := validate(email)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.read()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(all, func(x Entry) bool { return x.Email == e }) {
		return nil
	}
	all = append(all, Entry{Email: e, Source: source, At: l.now().UTC()})

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode suppression list: %w", err)
	}
	if err := fsutil.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}

func (l *FileList) Contains(ctx context.Context, email string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.read()
	if err != nil {
		return false, err
	}
	e := Normalize(email)
	return slices.ContainsFunc(all, func(x Entry) bool { return x.Email == e }), nil
}

func (l *FileList) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *FileList) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read suppression list: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var all []Entry
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to decode suppression list %s: %w", l.path, err)
	}
	return all, nil
}
