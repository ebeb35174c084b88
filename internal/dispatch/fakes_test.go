package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mailrun/mailrun/internal/checkpoint"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/model"
)

// fakeTransport records sends and fails on demand per recipient address.
// The maps and funcs are configured before the run and only read afterwards.
type fakeTransport struct {
	verifyErr  error
	openErr    error
	sendErr    map[string]error
	archiveErr map[string]error
	gates      map[string]chan struct{}
	sendDelay  func(to string) time.Duration

	mu       sync.Mutex
	sent     []string
	archived []string
	verified int
	opened   int
	closed   int
}

func (f *fakeTransport) Open(ctx context.Context) (email.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{f: f}, nil
}

func (f *fakeTransport) Verify(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified++
	return f.verifyErr
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) counts() (verified, opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified, f.opened, f.closed
}

type fakeSession struct {
	f *fakeTransport
}

func (s *fakeSession) Send(ctx context.Context, msg email.Message) error {
	if gate := s.f.gates[msg.To]; gate != nil {
		<-gate
	}
	if s.f.sendDelay != nil {
		time.Sleep(s.f.sendDelay(msg.To))
	}
	if err := s.f.sendErr[msg.To]; err != nil {
		return err
	}
	s.f.mu.Lock()
	s.f.sent = append(s.f.sent, msg.To)
	s.f.mu.Unlock()
	return nil
}

func (s *fakeSession) ArchiveSent(ctx context.Context, msg email.Message) error {
	if err := s.f.archiveErr[msg.To]; err != nil {
		return err
	}
	s.f.mu.Lock()
	s.f.archived = append(s.f.archived, msg.To)
	s.f.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

type stubRenderer struct {
	failFor string
}

func (r stubRenderer) Render(rcpt model.Recipient, subject, sender string) (email.Message, error) {
	if rcpt.Email == r.failFor {
		return email.Message{}, errors.New("template exploded")
	}
	return email.Message{From: sender, To: rcpt.Email, ToName: rcpt.FullName, Subject: subject}, nil
}

// failingStore accepts loads but rejects every save.
type failingStore struct {
	*checkpoint.MemoryStore
}

func (s failingStore) Save(ctx context.Context, cp *model.Checkpoint) error {
	return errors.New("disk full")
}

func newCampaign(emails ...string) *model.Campaign {
	recipients := make([]model.Recipient, len(emails))
	for i, e := range emails {
		recipients[i] = model.Recipient{Email: e, FullName: fmt.Sprintf("Person %d", i)}
	}
	return &model.Campaign{
		ID:         "2024-05-01_09-30-00",
		Name:       "Launch",
		Subject:    "Hello",
		Sender:     "team@x.com",
		Recipients: recipients,
		State:      model.CampaignRunning,
	}
}

func numberedEmails(n int) []string {
	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("user%02d@x.com", i)
	}
	return emails
}
