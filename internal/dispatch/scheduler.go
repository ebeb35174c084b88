// Package dispatch sends a campaign to its recipients and keeps the
// resume cursor and the delivery report consistent while doing so.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
)

// Renderer builds the message for one recipient.
type Renderer interface {
	Render(rcpt model.Recipient, subject, sender string) (email.Message, error)
}

// Progress is reported after each recipient joins the recorded prefix.
type Progress struct {
	Completed int // recipients with a recorded outcome, including earlier runs
	Total     int
	Email     string
	Status    model.DeliveryStatus
	Elapsed   time.Duration // since this run started
	Remaining time.Duration // estimate from the average time per recipient of this run
}

// ProgressFunc receives progress updates in submission order, one call at a
// time. It runs outside the scheduler's bookkeeping lock, so a slow callback
// delays later progress updates but not sends or checkpoints.
type ProgressFunc func(Progress)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep replaces the pause used between sequential sends.
// sleep must return early with ctx.Err() when ctx is cancelled.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithRand replaces the random source used for sequential delays.
func WithRand(randN func(n int64) int64) Option {
	return func(s *Scheduler) { s.randN = randN }
}

// Scheduler drives the per-recipient pipeline for a campaign:
// render, send, archive, record, checkpoint.
type Scheduler struct {
	transport email.Transport
	renderer  Renderer
	store     checkpoint.Store
	pacing    Pacing
	log       *logger.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randN     func(n int64) int64
}

// NewScheduler creates a scheduler. The pacing policy is validated here so
// a bad configuration fails before any campaign state changes.
func NewScheduler(transport email.Transport, renderer Renderer, store checkpoint.Store, pacing Pacing, opts ...Option) (*Scheduler, error) {
	if err := pacing.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		transport: transport,
		renderer:  renderer,
		store:     store,
		pacing:    pacing,
		log:       logger.Nop(),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pacing returns the scheduling policy.
func (s *Scheduler) Pacing() Pacing {
	return s.pacing
}

// Run sends the campaign to every recipient at or after c.Cursor.
//
// Outcomes reach agg in submission order and c.Cursor only advances over
// recipients whose outcome is recorded; a checkpoint is saved each time it
// advances. Cancelling ctx stops new submissions while sends already in
// flight finish and are recorded; Run then returns an error wrapping
// ctx.Err(). A rejected credential stops the run with an error wrapping
// model.ErrAuthentication. Checkpoint failures do not stop the run and are
// returned at the end wrapped in model.ErrPersistence.
func (s *Scheduler) Run(ctx context.Context, c *model.Campaign, agg *Aggregator, progress ProgressFunc) error {
	log := s.log.WithCampaignID(c.ID)

	if c.IsDone() {
		log.Info().Int("total", c.Total()).Msg("nothing left to send")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("campaign %s interrupted before sending: %w", c.ID, err)
	}
	if err := s.transport.Verify(ctx); err != nil {
		log.Error().Err(err).Msg("transport pre-flight check failed")
		return fmt.Errorf("pre-flight check: %w", err)
	}

	r := &run{
		s:           s,
		c:           c,
		agg:         agg,
		progress:    progress,
		log:         log,
		sendCtx:     context.WithoutCancel(ctx),
		started:     s.now(),
		startCursor: c.Cursor,
		ledger:      newLedger(c.Cursor, c.Total()),
		saved:       c.Cursor,
	}

	log.Info().
		Int("total", c.Total()).
		Int("cursor", c.Cursor).
		Str("pacing", s.pacing.String()).
		Msg("dispatch started")

	if s.pacing.Mode == ModeSequential {
		r.sequential(ctx)
	} else {
		r.concurrent(ctx)
	}

	return r.result(ctx)
}

// run is the state of one Scheduler.Run call.
type run struct {
	s        *Scheduler
	c        *model.Campaign
	agg      *Aggregator
	progress ProgressFunc
	log      *logger.Logger
	// sendCtx outlives cancellation of the caller's context so in-flight
	// sends and checkpoint writes complete.
	sendCtx     context.Context
	started     time.Time
	startCursor int

	// mu guards ledger, c.Cursor and the abort fields. It is never held
	// across network or disk I/O.
	mu      sync.Mutex
	ledger  *ledger
	aborted bool
	authErr error

	// pending holds progress updates not yet handed to progress; guarded
	// by mu. progressMu is held by the one goroutine draining it.
	pending    []Progress
	progressMu sync.Mutex

	// persistMu serializes checkpoint writes; saved only grows.
	persistMu   sync.Mutex
	saved       int
	persistErrs []error
}

func (r *run) concurrent(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(r.s.pacing.Workers)

	for i := r.startCursor; i < r.c.Total(); i++ {
		if r.halted(ctx) {
			break
		}
		// Go blocks while all workers are busy, so the stop conditions
		// are checked again once the goroutine starts.
		g.Go(func() error {
			if r.halted(ctx) {
				return nil
			}
			r.process(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) sequential(ctx context.Context) {
	total := r.c.Total()
	for i := r.startCursor; i < total; i++ {
		if r.halted(ctx) {
			return
		}
		r.process(i)

		if i+1 < total && !r.isAborted() {
			if err := r.s.sleep(ctx, r.s.pacing.Delay(r.s.randN)); err != nil {
				return
			}
		}
	}
}

func (r *run) halted(ctx context.Context) bool {
	return ctx.Err() != nil || r.isAborted()
}

func (r *run) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func (r *run) process(i int) {
	rcpt := r.c.Recipients[i]
	outcome, err := r.deliver(i, rcpt)
	if err != nil {
		r.abort(rcpt, err)
		return
	}
	r.complete(outcome)
}

// deliver runs the pipeline for one recipient on its own session. The
// returned error is non-nil only for authentication failures, which leave
// the recipient without an outcome.
func (r *run) deliver(i int, rcpt model.Recipient) (model.Outcome, error) {
	msg, err := r.s.renderer.Render(rcpt, r.c.Subject, r.c.Sender)
	if err != nil {
		return model.Failed(i, rcpt.Email, err), nil
	}

	sess, err := r.s.transport.Open(r.sendCtx)
	if err != nil {
		if errors.Is(err, model.ErrAuthentication) {
			return model.Outcome{}, err
		}
		return model.Failed(i, rcpt.Email, err), nil
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.log.Debug().Err(err).Str("email", rcpt.Email).Msg("failed to close transport session")
		}
	}()

	if err := sess.Send(r.sendCtx, msg); err != nil {
		if errors.Is(err, model.ErrAuthentication) {
			return model.Outcome{}, err
		}
		r.log.Warn().Err(err).Str("email", rcpt.Email).Msg("send failed")
		return model.Failed(i, rcpt.Email, err), nil
	}

	if err := sess.ArchiveSent(r.sendCtx, msg); err != nil {
		r.log.Warn().Err(err).Str("email", rcpt.Email).Msg("delivered but not archived")
		return model.DeliveredWithWarning(i, rcpt.Email, err), nil
	}
	return model.Delivered(i, rcpt.Email), nil
}

func (r *run) abort(rcpt model.Recipient, err error) {
	r.mu.Lock()
	first := !r.aborted
	if first {
		r.aborted = true
		r.authErr = fmt.Errorf("recipient %s: %w", rcpt.Email, err)
	}
	r.mu.Unlock()

	if first {
		r.log.Error().Err(err).Str("email", rcpt.Email).Msg("transport rejected credentials, aborting run")
	}
}

// complete records o and, when the recorded prefix grows, flushes it to
// the aggregator, persists a checkpoint at the new cursor and reports
// progress.
func (r *run) complete(o model.Outcome) {
	r.mu.Lock()
	flushed := r.ledger.fill(o)
	if len(flushed) == 0 {
		r.mu.Unlock()
		return
	}
	for _, f := range flushed {
		r.agg.Record(f)
	}
	r.c.Cursor = r.ledger.cursor()
	cp := checkpoint.New(r.c, r.agg.Snapshot().Report, r.s.now())
	r.queueProgress(flushed)
	r.mu.Unlock()

	r.persist(cp)
	r.emit()
}

// queueProgress must be called with r.mu held.
func (r *run) queueProgress(flushed []model.Outcome) {
	if r.progress == nil {
		return
	}
	total := r.c.Total()
	elapsed := r.s.now().Sub(r.started)
	for _, o := range flushed {
		completed := o.Index + 1
		var remaining time.Duration
		if done := completed - r.startCursor; done > 0 {
			remaining = elapsed / time.Duration(done) * time.Duration(total-completed)
		}
		r.pending = append(r.pending, Progress{
			Completed: completed,
			Total:     total,
			Email:     o.Email,
			Status:    o.Status,
			Elapsed:   elapsed,
			Remaining: remaining,
		})
	}
}

// emit hands queued updates to the progress callback. Only one goroutine
// drains at a time; the others leave their updates for it and return.
func (r *run) emit() {
	if r.progress == nil {
		return
	}
	for {
		if !r.progressMu.TryLock() {
			return
		}
		for {
			r.mu.Lock()
			batch := r.pending
			r.pending = nil
			r.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, p := range batch {
				r.progress(p)
			}
		}
		r.progressMu.Unlock()

		// Updates queued after the last drain but before Unlock were left
		// by a goroutine whose TryLock failed.
		r.mu.Lock()
		more := len(r.pending) > 0
		r.mu.Unlock()
		if !more {
			return
		}
	}
}

func (r *run) persist(cp *model.Checkpoint) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if cp.Cursor <= r.saved {
		return
	}
	if err := r.s.store.Save(r.sendCtx, cp); err != nil {
		r.log.Error().Err(err).Int("cursor", cp.Cursor).Msg("failed to save checkpoint")
		r.persistErrs = append(r.persistErrs, err)
		return
	}
	r.saved = cp.Cursor
}

func (r *run) result(ctx context.Context) error {
	r.mu.Lock()
	authErr := r.authErr
	held := r.ledger.held()
	cursor := r.c.Cursor
	r.mu.Unlock()

	r.persistMu.Lock()
	persistErrs := r.persistErrs
	r.persistMu.Unlock()

	if held > 0 {
		r.log.Warn().
			Int("cursor", cursor).
			Int("held", held).
			Msg("outcomes recorded after an unfinished recipient will be resent on resume")
	}

	var errs []error
	switch {
	case authErr != nil:
		errs = append(errs, authErr)
	case cursor < r.c.Total() && ctx.Err() != nil:
		errs = append(errs, fmt.Errorf("campaign %s interrupted at %d/%d: %w", r.c.ID, cursor, r.c.Total(), ctx.Err()))
	}
	if len(persistErrs) > 0 {
		errs = append(errs, fmt.Errorf("%w: %w", model.ErrPersistence, errors.Join(persistErrs...)))
	}
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
