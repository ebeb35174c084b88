package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/dispatch"
	"github.com/mailrun/mailrun/internal/history"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
	"github.com/mailrun/mailrun/internal/recipient"
	"github.com/mailrun/mailrun/internal/report"
	"github.com/mailrun/mailrun/internal/suppression"
)

// Campaign service errors
var (
	ErrCampaignExists  = errors.New("campaign already exists")
	ErrCampaignRunning = errors.New("campaign is already running")
)

// ReportUploader stores an encoded delivery report and returns where it went.
type ReportUploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (string, error)
}

// ReportMailer sends an encoded delivery report to the campaign owner.
type ReportMailer interface {
	Send(ctx context.Context, summary model.CampaignSummary, fileName string, data []byte) error
}

// CampaignOptions holds the optional collaborators of CampaignService.
type CampaignOptions struct {
	// ReportDir receives the CSV delivery report; empty skips the file.
	ReportDir string
	Retention checkpoint.Retention
	Uploader  ReportUploader
	Mailer    ReportMailer

	// Suppression removes unsubscribed addresses from new campaigns.
	Suppression suppression.List
}

// CampaignService drives campaign sessions through their lifecycle:
// not_started, running, then completed, suspended or aborted.
type CampaignService struct {
	scheduler *dispatch.Scheduler
	store     checkpoint.Store
	history   history.Log
	opts      CampaignOptions
	log       *logger.Logger
	now       func() time.Time
}

// NewCampaignService creates a new CampaignService
func NewCampaignService(
	scheduler *dispatch.Scheduler,
	store checkpoint.Store,
	hist history.Log,
	opts CampaignOptions,
	log *logger.Logger,
) *CampaignService {
	return &CampaignService{
		scheduler: scheduler,
		store:     store,
		history:   hist,
		opts:      opts,
		log:       log.WithComponent("campaign_service"),
		now:       time.Now,
	}
}

// Session is one campaign together with its running tally.
type Session struct {
	Campaign   *model.Campaign
	Aggregator *dispatch.Aggregator

	mu sync.Mutex
}

// State returns the lifecycle state of the session.
func (s *Session) State() model.CampaignState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Campaign.State
}

func (s *Session) setState(state model.CampaignState) {
	s.mu.Lock()
	s.Campaign.State = state
	s.mu.Unlock()
}

// Result describes a finished Run.
type Result struct {
	State    model.CampaignState
	Snapshot dispatch.Snapshot
	// Summary is set for terminal states only.
	Summary    *model.CampaignSummary
	ReportPath string
	ReportURI  string
	Duration   time.Duration
}

// Start creates a new campaign and saves its initial checkpoint.
// Recipients are de-duplicated by address, first occurrence wins, and
// addresses on the suppression list are left out.
func (s *CampaignService) Start(ctx context.Context, name, subject, sender string, recipients []model.Recipient) (*Session, error) {
	subject = strings.TrimSpace(subject)
	sender = strings.TrimSpace(sender)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", model.ErrValidation)
	}
	if sender == "" {
		return nil, fmt.Errorf("%w: sender is required", model.ErrValidation)
	}
	unique := recipient.Dedupe(recipients)
	if dropped := len(recipients) - len(unique); dropped > 0 {
		s.log.Info().Int("dropped", dropped).Msg("ignored duplicate or blank recipients")
	}
	if s.opts.Suppression != nil && len(unique) > 0 {
		kept, suppressed, err := suppression.Filter(ctx, s.opts.Suppression, unique)
		if err != nil {
			return nil, err
		}
		if len(suppressed) > 0 {
			s.log.Info().Int("suppressed", len(suppressed)).Msg("skipped unsubscribed recipients")
		}
		unique = kept
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: recipient list is empty", model.ErrValidation)
	}

	created := s.now()
	c := &model.Campaign{
		ID:         model.NewCampaignID(created),
		Name:       strings.TrimSpace(name),
		Subject:    subject,
		Sender:     sender,
		Recipients: unique,
		State:      model.CampaignNotStarted,
		CreatedAt:  created,
	}

	if _, err := s.store.Load(ctx, c.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCampaignExists, c.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if err := s.store.Save(ctx, checkpoint.New(c, nil, created)); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	s.log.Info().
		Str("campaign_id", c.ID).
		Str("name", c.Name).
		Int("recipients", c.Total()).
		Msg("campaign created")

	return &Session{Campaign: c, Aggregator: dispatch.NewAggregator(c.Total(), nil)}, nil
}

// Resume restores the campaign saved under id. The campaign keeps its ID
// and continues at the saved cursor. A campaign whose checkpoint covers
// every recipient is returned as completed.
func (s *CampaignService) Resume(ctx context.Context, id string) (*Session, error) {
	cp, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	c := checkpoint.Campaign(cp)
	prior := cp.Report
	if len(prior) > c.Cursor {
		prior = prior[:c.Cursor]
	}
	if c.IsDone() {
		c.State = model.CampaignCompleted
	}

	s.log.Info().
		Str("campaign_id", c.ID).
		Int("cursor", c.Cursor).
		Int("total", c.Total()).
		Msg("campaign restored from checkpoint")

	return &Session{Campaign: c, Aggregator: dispatch.NewAggregator(c.Total(), prior)}, nil
}

// LatestID returns the ID of the most recent checkpoint.
func (s *CampaignService) LatestID(ctx context.Context) (string, error) {
	return s.store.Latest(ctx)
}

// Run sends the session's remaining recipients.
//
// A run stopped by ctx leaves the session suspended and writes nothing but
// checkpoints. Completed and aborted runs append a summary to the history
// log and export the delivery report. The returned error wraps
// model.ErrAuthentication, ctx.Err() or model.ErrPersistence as applicable.
func (s *CampaignService) Run(ctx context.Context, sess *Session, progress dispatch.ProgressFunc) (*Result, error) {
	c := sess.Campaign
	log := s.log.WithCampaignID(c.ID)

	sess.mu.Lock()
	switch c.State {
	case model.CampaignRunning:
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCampaignRunning, c.ID)
	case model.CampaignCompleted:
		sess.mu.Unlock()
		log.Info().Msg("campaign already completed")
		return &Result{State: model.CampaignCompleted, Snapshot: sess.Aggregator.Snapshot()}, nil
	}
	c.State = model.CampaignRunning
	sess.mu.Unlock()

	started := s.now()
	runErr := s.scheduler.Run(ctx, c, sess.Aggregator, progress)

	state := finalState(c, runErr)
	sess.setState(state)

	res := &Result{
		State:    state,
		Snapshot: sess.Aggregator.Snapshot(),
		Duration: s.now().Sub(started),
	}
	log.CampaignFinished(string(state), res.Snapshot.Total, res.Snapshot.Delivered, res.Snapshot.Failed, res.Duration)

	if !state.IsTerminal() {
		log.Warn().Int("cursor", c.Cursor).Msg("campaign suspended, resume it to send the rest")
		return res, runErr
	}

	finalizeErr := s.finalize(context.WithoutCancel(ctx), sess, res)
	return res, errors.Join(runErr, finalizeErr)
}

func finalState(c *model.Campaign, runErr error) model.CampaignState {
	switch {
	case errors.Is(runErr, model.ErrAuthentication):
		return model.CampaignAborted
	case c.IsDone():
		return model.CampaignCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return model.CampaignSuspended
	default:
		// pre-flight failures other than rejected credentials
		return model.CampaignAborted
	}
}

// finalize records a terminal run. Only the history append can fail it;
// report delivery problems are logged.
func (s *CampaignService) finalize(ctx context.Context, sess *Session, res *Result) error {
	c := sess.Campaign
	log := s.log.WithCampaignID(c.ID)

	summary := model.CampaignSummary{
		CampaignID: c.ID,
		Name:       c.Name,
		Subject:    c.Subject,
		Total:      c.Total(),
		Delivered:  res.Snapshot.Delivered,
		Failed:     res.Snapshot.Failed,
		State:      res.State,
		FinishedAt: s.now().UTC(),
	}
	res.Summary = &summary

	var errs []error
	if err := s.history.Append(ctx, summary); err != nil {
		log.Error().Err(err).Msg("failed to record campaign summary")
		errs = append(errs, err)
	}

	s.exportReport(ctx, summary, res)

	if _, err := checkpoint.Prune(ctx, s.store, s.opts.Retention, s.log); err != nil {
		log.Warn().Err(err).Msg("failed to prune checkpoints")
	}
	return errors.Join(errs...)
}

func (s *CampaignService) exportReport(ctx context.Context, summary model.CampaignSummary, res *Result) {
	log := s.log.WithCampaignID(summary.CampaignID)

	data, err := report.Encode(res.Snapshot.Report)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode delivery report")
		return
	}
	fileName := report.FileName(summary.Name, summary.CampaignID)

	if s.opts.ReportDir != "" {
		path, err := report.Save(s.opts.ReportDir, fileName, data)
		if err != nil {
			log.Error().Err(err).Msg("failed to save delivery report")
		} else {
			res.ReportPath = path
			log.Info().Str("path", path).Msg("delivery report saved")
		}
	}

	if s.opts.Uploader != nil {
		uri, err := s.opts.Uploader.Upload(ctx, fileName, data)
		if err != nil {
			log.Error().Err(err).Msg("failed to upload delivery report")
		} else {
			res.ReportURI = uri
			log.Info().Str("uri", uri).Msg("delivery report uploaded")
		}
	}

	if s.opts.Mailer != nil {
		if err := s.opts.Mailer.Send(ctx, summary, fileName, data); err != nil {
			log.Error().Err(err).Msg("failed to email delivery report")
		} else {
			log.Info().Msg("delivery report emailed")
		}
	}
}

// History returns the summaries of finished campaigns.
func (s *CampaignService) History(ctx context.Context) ([]model.CampaignSummary, error) {
	return s.history.List(ctx)
}

// CheckpointInfo describes one stored checkpoint.
type CheckpointInfo struct {
	CampaignID string
	Name       string
	Subject    string
	Cursor     int
	Total      int
	SavedAt    time.Time
}

// Complete reports whether every recipient has an outcome.
func (i CheckpointInfo) Complete() bool {
	return i.Cursor >= i.Total
}

// Checkpoints lists stored checkpoints, oldest first.
// Unreadable checkpoints are logged and skipped.
func (s *CampaignService) Checkpoints(ctx context.Context) ([]CheckpointInfo, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CheckpointInfo, 0, len(ids))
	for _, id := range ids {
		cp, err := s.store.Load(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("campaign_id", id).Msg("skipping unreadable checkpoint")
			continue
		}
		out = append(out, CheckpointInfo{
			CampaignID: cp.CampaignID,
			Name:       cp.Name,
			Subject:    cp.Subject,
			Cursor:     cp.Cursor,
			Total:      len(cp.Recipients),
			SavedAt:    cp.SavedAt,
		})
	}
	return out, nil
}

// Prune applies the retention policy and returns the removed IDs.
func (s *CampaignService) Prune(ctx context.Context) ([]string, error) {
	return checkpoint.Prune(ctx, s.store, s.opts.Retention, s.log)
}
