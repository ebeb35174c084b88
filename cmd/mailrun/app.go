package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/database"
	"github.com/mailrun/mailrun/internal/dispatch"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/history"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
	"github.com/mailrun/mailrun/internal/report"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/suppression"
)

// app wires configuration into the campaign components. Database
// connections are opened on first use and closed by close.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	rdb     *database.Redis
	closers []func() error
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return &app{cfg: cfg, log: logger.New(cfg.Log.Level, cfg.Log.Format)}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
	a.rdb = nil
}

func (a *app) redis() (*database.Redis, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := database.NewRedis(a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

// sender returns the From address and display name for the configured provider.
func (a *app) sender() (string, string) {
	if a.cfg.Transport.Provider == "gmail" {
		return a.cfg.Gmail.SenderAddress, a.cfg.Gmail.SenderName
	}
	return a.cfg.SMTP.Sender(), a.cfg.SMTP.FromName
}

func (a *app) transport(ctx context.Context) (email.Transport, error) {
	switch a.cfg.Transport.Provider {
	case "", "smtp":
		return email.NewSMTPTransport(a.cfg.SMTP, a.cfg.IMAP), nil
	case "gmail":
		return email.NewGmailTransport(ctx, a.cfg.Gmail)
	default:
		return nil, fmt.Errorf("%w: unknown transport provider %q", model.ErrValidation, a.cfg.Transport.Provider)
	}
}

func (a *app) renderer() (*email.Renderer, error) {
	var fsys fs.FS = email.DefaultTemplates()
	if a.cfg.Template.Dir != "" {
		fsys = os.DirFS(a.cfg.Template.Dir)
	}
	_, fromName := a.sender()
	return email.NewRenderer(fsys, email.RendererConfig{
		Body:     a.cfg.Template.Body,
		Layout:   a.cfg.Template.Layout,
		FromName: fromName,
	}, email.NewLinkBuilder(a.cfg.Tracking))
}

func (a *app) checkpointStore(ctx context.Context) (checkpoint.Store, error) {
	switch a.cfg.Checkpoint.Backend {
	case "", "file":
		return checkpoint.NewFileStore(a.cfg.Checkpoint.Dir)
	case "redis":
		rdb, err := a.redis()
		if err != nil {
			return nil, err
		}
		return checkpoint.NewRedisStore(rdb.Client, rdb.KeyPrefix), nil
	case "sqlite":
		db, err := database.NewSQLite(a.cfg.SQLite)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return checkpoint.NewSQLiteStore(ctx, db.DB)
	default:
		return nil, fmt.Errorf("%w: unknown checkpoint backend %q", model.ErrValidation, a.cfg.Checkpoint.Backend)
	}
}

func (a *app) historyLog(ctx context.Context) (history.Log, error) {
	backends := a.cfg.History.Backends
	if len(backends) == 0 {
		backends = []string{"file"}
	}

	logs := make([]history.Log, 0, len(backends))
	for _, name := range backends {
		switch strings.TrimSpace(name) {
		case "file":
			logs = append(logs, history.NewFileLog(a.cfg.History.File))
		case "sheets":
			l, err := history.NewSheetsLog(ctx, a.cfg.Sheets, a.log)
			if err != nil {
				return nil, err
			}
			logs = append(logs, l)
		case "postgres":
			db, err := database.NewPostgres(a.cfg.Database)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, db.Close)
			logs = append(logs, history.NewPostgresLog(db))
		default:
			return nil, fmt.Errorf("%w: unknown history backend %q", model.ErrValidation, name)
		}
	}
	if len(logs) == 1 {
		return logs[0], nil
	}
	return history.NewMultiLog(logs...)
}

func (a *app) suppressionList() (suppression.List, error) {
	switch a.cfg.Suppression.Backend {
	case "", "file":
		return suppression.NewFileList(a.cfg.Suppression.File), nil
	case "redis":
		rdb, err := a.redis()
		if err != nil {
			return nil, err
		}
		return suppression.NewRedisList(rdb.Client, rdb.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: unknown suppression backend %q", model.ErrValidation, a.cfg.Suppression.Backend)
	}
}

// campaignService builds the full send pipeline with the given pacing.
func (a *app) campaignService(ctx context.Context, pacing dispatch.Pacing) (*service.CampaignService, error) {
	transport, err := a.transport(ctx)
	if err != nil {
		return nil, err
	}
	renderer, err := a.renderer()
	if err != nil {
		return nil, err
	}
	store, err := a.checkpointStore(ctx)
	if err != nil {
		return nil, err
	}
	hist, err := a.historyLog(ctx)
	if err != nil {
		return nil, err
	}

	scheduler, err := dispatch.NewScheduler(transport, renderer, store, pacing,
		dispatch.WithLogger(a.log.WithComponent("dispatch")),
	)
	if err != nil {
		return nil, err
	}

	opts := service.CampaignOptions{
		ReportDir: a.cfg.Report.Dir,
		Retention: checkpoint.RetentionFromConfig(a.cfg.Checkpoint),
	}
	if opts.Suppression, err = a.suppressionList(); err != nil {
		return nil, err
	}
	if a.cfg.S3.Enabled {
		uploader, err := report.NewS3Uploader(a.cfg.S3)
		if err != nil {
			return nil, err
		}
		opts.Uploader = uploader
	}
	if a.cfg.Report.EmailTo != "" {
		from, fromName := a.sender()
		opts.Mailer = report.NewMailer(transport, from, fromName, a.cfg.Report.EmailTo)
	}

	return service.NewCampaignService(scheduler, store, hist, opts, a.log), nil
}

// readOnlyService builds a service for commands that never send mail.
func (a *app) readOnlyService(ctx context.Context) (*service.CampaignService, error) {
	pacing := dispatch.Pacing{Mode: dispatch.ModeConcurrent, Workers: 1}
	store, err := a.checkpointStore(ctx)
	if err != nil {
		return nil, err
	}
	hist, err := a.historyLog(ctx)
	if err != nil {
		return nil, err
	}
	scheduler, err := dispatch.NewScheduler(nil, nil, store, pacing)
	if err != nil {
		return nil, err
	}
	opts := service.CampaignOptions{Retention: checkpoint.RetentionFromConfig(a.cfg.Checkpoint)}
	return service.NewCampaignService(scheduler, store, hist, opts, a.log), nil
}
