package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/dispatch"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/history"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
	"github.com/mailrun/mailrun/internal/suppression"
)

// memTransport delivers into memory and fails per address on demand.
type memTransport struct {
	verifyErr error
	sendErr   map[string]error

	mu   sync.Mutex
	sent []string
}

func (m *memTransport) Open(ctx context.Context) (email.Session, error) {
	return &memSession{m: m}, nil
}

func (m *memTransport) Verify(ctx context.Context) error { return m.verifyErr }

func (m *memTransport) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type memSession struct{ m *memTransport }

func (s *memSession) Send(ctx context.Context, msg email.Message) error {
	if err := s.m.sendErr[msg.To]; err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.sent = append(s.m.sent, msg.To)
	return nil
}

func (s *memSession) ArchiveSent(ctx context.Context, msg email.Message) error { return nil }

func (s *memSession) Close() error { return nil }

type plainRenderer struct{}

func (plainRenderer) Render(rcpt model.Recipient, subject, sender string) (email.Message, error) {
	return email.Message{From: sender, To: rcpt.Email, Subject: subject, TextBody: "hi " + rcpt.FullName}, nil
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, summary model.CampaignSummary, fileName string, data []byte) error {
	args := m.Called(ctx, summary, fileName, data)
	return args.Error(0)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc       *CampaignService
	store     *checkpoint.MemoryStore
	history   *history.FileLog
	transport *memTransport
	reportDir string
}

func newFixture(t *testing.T, tr *memTransport, pacing dispatch.Pacing, opts CampaignOptions, schedOpts ...dispatch.Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	store := checkpoint.NewMemoryStore()
	hist := history.NewFileLog(filepath.Join(dir, "campaigns.json"))

	schedOpts = append([]dispatch.Option{dispatch.WithSleep(func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	})}, schedOpts...)
	scheduler, err := dispatch.NewScheduler(tr, plainRenderer{}, store, pacing, schedOpts...)
	require.NoError(t, err)

	if opts.ReportDir == "" {
		opts.ReportDir = filepath.Join(dir, "campaign_results")
	}
	svc := NewCampaignService(scheduler, store, hist, opts, logger.Nop())

	// Distinct campaign IDs for campaigns started in the same test.
	clock := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{svc: svc, store: store, history: hist, transport: tr, reportDir: opts.ReportDir}
}

func people(emails ...string) []model.Recipient {
	out := make([]model.Recipient, len(emails))
	for i, e := range emails {
		out[i] = model.Recipient{Email: e, FullName: fmt.Sprintf("Person %d", i)}
	}
	return out
}

var fourWorkers = dispatch.Pacing{Mode: dispatch.ModeConcurrent, Workers: 4}

func TestStart_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{})
	ctx := context.Background()

	tests := []struct {
		name       string
		subject    string
		sender     string
		recipients []model.Recipient
	}{
		{"missing subject", " ", "team@x.com", people("a@x.com")},
		{"missing sender", "Hello", "", people("a@x.com")},
		{"no recipients", "Hello", "team@x.com", nil},
		{"only blank recipients", "Hello", "team@x.com", []model.Recipient{{Email: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Start(ctx, "Expo", tt.subject, tt.sender, tt.recipients)
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}

	ids, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "failed starts leave no checkpoint")
}

func TestStart_SavesInitialCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Spring Expo", "Hello", "team@x.com", people("a@x.com", "b@x.com", "a@x.com"))
	require.NoError(t, err)

	c := sess.Campaign
	assert.Equal(t, "2024-05-01_09-30-01", c.ID)
	assert.Equal(t, model.CampaignNotStarted, sess.State())
	assert.Equal(t, 2, c.Total(), "duplicates are dropped")
	assert.Zero(t, c.Cursor)

	cp, err := f.store.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, cp.Cursor)
	assert.Equal(t, "Spring Expo", cp.Name)
}

func TestStart_SkipsUnsubscribed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	list := suppression.NewFileList(filepath.Join(t.TempDir(), "unsubscribed.json"))
	require.NoError(t, list.Add(ctx, "b@x.com", "link"))

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{Suppression: list})

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("a@x.com", "B@x.com", "c@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", sess.Campaign.Recipients[0].Email)
	assert.Equal(t, "c@x.com", sess.Campaign.Recipients[1].Email)
	assert.Equal(t, 2, sess.Campaign.Total())

	_, err = f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("b@x.com"))
	require.ErrorIs(t, err, model.ErrValidation, "every recipient unsubscribed")
}

func TestRun_CompletesAndFinalizes(t *testing.T) {
	t.Parallel()

	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(s model.CampaignSummary) bool {
		return s.Delivered == 2 && s.Failed == 1 && s.State == model.CampaignCompleted
	}), "report_Spring_Expo_2024-05-01_09-30-01.csv", mock.Anything).Return(nil).Once()

	uploader := &mockUploader{}
	uploader.On("Upload", mock.Anything, "report_Spring_Expo_2024-05-01_09-30-01.csv", mock.Anything).
		Return("s3://reports/report_Spring_Expo_2024-05-01_09-30-01.csv", nil).Once()

	tr := &memTransport{sendErr: map[string]error{"b@x.com": fmt.Errorf("%w: 550 no such user", model.ErrSend)}}
	f := newFixture(t, tr, fourWorkers, CampaignOptions{Mailer: mailer, Uploader: uploader})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Spring Expo", "Hello", "team@x.com", people("a@x.com", "b@x.com", "c@x.com"))
	require.NoError(t, err)

	var progress []dispatch.Progress
	var mu sync.Mutex
	res, err := f.svc.Run(ctx, sess, func(p dispatch.Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, model.CampaignCompleted, res.State)
	assert.Equal(t, model.CampaignCompleted, sess.State())
	assert.Equal(t, 2, res.Snapshot.Delivered)
	assert.Equal(t, 1, res.Snapshot.Failed)
	assert.Len(t, progress, 3)

	require.NotNil(t, res.Summary)
	assert.Equal(t, sess.Campaign.ID, res.Summary.CampaignID)

	all, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 3, all[0].Total)

	data, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "email,status\na@x.com,Delivered\nb@x.com,Failed: send failed: 550 no such user\nc@x.com,Delivered\n", string(data))
	assert.Equal(t, "s3://reports/report_Spring_Expo_2024-05-01_09-30-01.csv", res.ReportURI)

	mailer.AssertExpectations(t)
	uploader.AssertExpectations(t)
}

func TestRun_ReportDeliveryFailuresDoNotFailTheRun(t *testing.T) {
	t.Parallel()

	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{Mailer: mailer})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("a@x.com"))
	require.NoError(t, err)

	res, err := f.svc.Run(ctx, sess, nil)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, res.State)
	mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestRun_AuthFailureAbortsAndRecordsSummary(t *testing.T) {
	t.Parallel()

	tr := &memTransport{verifyErr: errors.Join(model.ErrAuthentication, errors.New("535 bad credentials"))}
	f := newFixture(t, tr, fourWorkers, CampaignOptions{})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("a@x.com", "b@x.com"))
	require.NoError(t, err)

	res, err := f.svc.Run(ctx, sess, nil)
	require.ErrorIs(t, err, model.ErrAuthentication)
	assert.Equal(t, model.CampaignAborted, res.State)
	assert.Zero(t, res.Snapshot.Delivered)
	assert.Zero(t, res.Snapshot.Failed)
	assert.Empty(t, tr.sentTo())

	cp, err := f.store.Load(ctx, sess.Campaign.ID)
	require.NoError(t, err)
	assert.Zero(t, cp.Cursor)

	all, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.CampaignAborted, all[0].State)
}

func TestRun_InterruptThenResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pauses := 0
	interruptAfterTwo := dispatch.WithSleep(func(ctx context.Context, d time.Duration) error {
		pauses++
		if pauses == 2 {
			cancel()
		}
		return ctx.Err()
	})

	first := &memTransport{}
	f := newFixture(t, first, dispatch.Pacing{Mode: dispatch.ModeSequential}, CampaignOptions{}, interruptAfterTwo)

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people(emails...))
	require.NoError(t, err)

	res, err := f.svc.Run(runCtx, sess, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.CampaignSuspended, res.State)
	assert.Nil(t, res.Summary)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, first.sentTo())

	all, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "suspended runs write no summary")

	// A fresh process resumes from the same store.
	second := &memTransport{}
	scheduler, err := dispatch.NewScheduler(second, plainRenderer{}, f.store, fourWorkers)
	require.NoError(t, err)
	resumedSvc := NewCampaignService(scheduler, f.store, f.history, CampaignOptions{ReportDir: f.reportDir}, logger.Nop())

	latest, err := resumedSvc.LatestID(ctx)
	require.NoError(t, err)
	require.Equal(t, sess.Campaign.ID, latest)

	resumed, err := resumedSvc.Resume(ctx, latest)
	require.NoError(t, err)
	assert.Equal(t, sess.Campaign.ID, resumed.Campaign.ID)
	assert.Equal(t, 2, resumed.Campaign.Cursor)

	res, err = resumedSvc.Run(ctx, resumed, nil)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, res.State)
	assert.ElementsMatch(t, []string{"c@x.com", "d@x.com", "e@x.com"}, second.sentTo())

	require.Len(t, res.Snapshot.Report, 5)
	for i, o := range res.Snapshot.Report {
		assert.Equal(t, emails[i], o.Email)
	}
	assert.Equal(t, 5, res.Summary.Delivered)

	all, err = f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sess.Campaign.ID, all[0].CampaignID)
}

func TestResume_CompletedCampaignSendsNothing(t *testing.T) {
	t.Parallel()

	tr := &memTransport{}
	f := newFixture(t, tr, fourWorkers, CampaignOptions{})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("a@x.com", "b@x.com"))
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, sess, nil)
	require.NoError(t, err)

	again, err := f.svc.Resume(ctx, sess.Campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, again.State())

	res, err := f.svc.Run(ctx, again, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Snapshot.Delivered)
	assert.Len(t, tr.sentTo(), 2, "no recipient is sent twice")

	all, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResume_UnknownCampaign(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{})
	_, err := f.svc.Resume(context.Background(), "2020-01-01_00-00-00")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRun_PrunesCompletedCheckpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{
		Retention: checkpoint.Retention{PruneCompleted: true},
	})
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "Expo", "Hello", "team@x.com", people("a@x.com"))
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, sess, nil)
	require.NoError(t, err)

	_, err = f.store.Load(ctx, sess.Campaign.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCheckpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &memTransport{}, fourWorkers, CampaignOptions{})
	ctx := context.Background()

	done, err := f.svc.Start(ctx, "Done", "Hello", "team@x.com", people("a@x.com"))
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, done, nil)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, "Pending", "Hello", "team@x.com", people("a@x.com", "b@x.com"))
	require.NoError(t, err)

	infos, err := f.svc.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "Done", infos[0].Name)
	assert.True(t, infos[0].Complete())
	assert.Equal(t, "Pending", infos[1].Name)
	assert.False(t, infos[1].Complete())
	assert.Equal(t, 2, infos[1].Total)
}
