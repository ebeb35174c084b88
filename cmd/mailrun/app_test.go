package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/dispatch"
	"github.com/mailrun/mailrun/internal/history"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/suppression"
)

func testApp(t *testing.T, yaml string) *app {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	a := &app{cfg: cfg, log: logger.Nop()}
	t.Cleanup(a.close)
	return a
}

func TestPacingFlags_OverrideOnlyChanged(t *testing.T) {
	t.Parallel()

	var p pacingFlags
	cmd := &cobra.Command{Use: "send"}
	p.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--mode", "sequential", "--min-delay", "2s"}))

	got := p.apply(cmd, config.PacingConfig{
		Mode:     "concurrent",
		Workers:  10,
		MinDelay: 5 * time.Second,
		MaxDelay: 12 * time.Second,
	})

	assert.Equal(t, dispatch.ModeSequential, got.Mode)
	assert.Equal(t, 10, got.Workers)
	assert.Equal(t, 2*time.Second, got.MinDelay)
	assert.Equal(t, 12*time.Second, got.MaxDelay)
}

func TestApp_CheckpointStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		a := testApp(t, "checkpoint:\n  backend: file\n  dir: "+filepath.Join(dir, "resume")+"\n")
		store, err := a.checkpointStore(ctx)
		require.NoError(t, err)
		assert.IsType(t, &checkpoint.FileStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		a := testApp(t, "checkpoint:\n  backend: sqlite\nsqlite:\n  path: "+filepath.Join(dir, "mailrun.db")+"\n")
		store, err := a.checkpointStore(ctx)
		require.NoError(t, err)
		assert.IsType(t, &checkpoint.SQLiteStore{}, store)
		assert.Len(t, a.closers, 1)
	})

	t.Run("unknown", func(t *testing.T) {
		a := testApp(t, "checkpoint:\n  backend: etcd\n")
		_, err := a.checkpointStore(ctx)
		require.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestApp_HistoryLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a := testApp(t, "history:\n  file: "+filepath.Join(t.TempDir(), "campaigns.json")+"\n")
	hist, err := a.historyLog(ctx)
	require.NoError(t, err)
	assert.IsType(t, &history.FileLog{}, hist)

	a.cfg.History.Backends = []string{"file", "file"}
	hist, err = a.historyLog(ctx)
	require.NoError(t, err)
	assert.IsType(t, &history.MultiLog{}, hist)

	a.cfg.History.Backends = []string{"mongo"}
	_, err = a.historyLog(ctx)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestApp_Sender(t *testing.T) {
	t.Parallel()

	a := testApp(t, "smtp:\n  username: mike@example.com\n  from_name: Mike\n")
	from, name := a.sender()
	assert.Equal(t, "mike@example.com", from)
	assert.Equal(t, "Mike", name)

	a.cfg.Transport.Provider = "gmail"
	a.cfg.Gmail.SenderAddress = "events@example.com"
	a.cfg.Gmail.SenderName = "Events"
	from, name = a.sender()
	assert.Equal(t, "events@example.com", from)
	assert.Equal(t, "Events", name)
}

func TestApp_UnknownTransport(t *testing.T) {
	t.Parallel()

	a := testApp(t, "transport:\n  provider: pigeon\n")
	_, err := a.transport(context.Background())
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestPreviewCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("smtp:\n  username: mike@example.com\n"), 0o600))
	configPath = path
	t.Cleanup(func() { configPath = "" })

	cmd := newPreviewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--name", "Ana Lima", "--subject", "Join us", "--text"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Subject: Join us")
	assert.Contains(t, out.String(), "Dear Ana Lima,")
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	c := &model.Campaign{ID: "2024-05-01_09-30-00"}
	res := &service.Result{
		State:    model.CampaignSuspended,
		Snapshot: dispatch.Snapshot{Total: 3, Delivered: 1},
		Duration: 4 * time.Second,
	}

	var out bytes.Buffer
	printResult(&out, c, res)

	assert.Contains(t, out.String(), "Campaign 2024-05-01_09-30-00 suspended")
	assert.Contains(t, out.String(), "1 delivered, 0 failed, 2 pending")
	assert.Contains(t, out.String(), "mailrun resume 2024-05-01_09-30-00")
}

func TestApp_SuppressionList(t *testing.T) {
	t.Parallel()

	a := testApp(t, "suppression:\n  file: "+filepath.Join(t.TempDir(), "unsubscribed.json")+"\n")
	list, err := a.suppressionList()
	require.NoError(t, err)
	assert.IsType(t, &suppression.FileList{}, list)

	a.cfg.Suppression.Backend = "ldap"
	_, err = a.suppressionList()
	require.ErrorIs(t, err, model.ErrValidation)
}
