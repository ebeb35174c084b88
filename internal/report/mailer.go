package report

import (
	"context"
	"fmt"
	"time"

	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/model"
)

// Mailer sends a finished campaign's report as an email attachment.
type Mailer struct {
	transport email.Transport
	from      string
	fromName  string
	to        string
	now       func() time.Time
}

// NewMailer creates a mailer that sends from one address to another.
func NewMailer(transport email.Transport, from, fromName, to string) *Mailer {
	return &Mailer{transport: transport, from: from, fromName: fromName, to: to, now: time.Now}
}

// Send delivers the encoded report over a fresh transport session.
func (m *Mailer) Send(ctx context.Context, summary model.CampaignSummary, fileName string, data []byte) error {
	subject := "Delivery Report for Email Campaign"
	if summary.Name != "" {
		subject += ": " + summary.Name
	}

	body := fmt.Sprintf(
		"Please find the attached delivery report for the recent email campaign.\n\n"+
			"Campaign: %s\nSubject: %s\nStatus: %s\nTotal: %d\nDelivered: %d\nFailed: %d\n",
		summary.Label(), summary.Subject, summary.State, summary.Total, summary.Delivered, summary.Failed,
	)

	msg := email.Message{
		ID:       email.NewMessageID(m.from),
		From:     m.from,
		FromName: m.fromName,
		To:       m.to,
		Subject:  subject,
		TextBody: body,
		Date:     m.now(),
		Attachments: []email.Attachment{{
			Filename:    fileName,
			ContentType: ContentType,
			Content:     data,
		}},
	}

	sess, err := m.transport.Open(ctx)
	if err != nil {
		return fmt.Errorf("report mail: %w", err)
	}
	defer sess.Close()

	if err := sess.Send(ctx, msg); err != nil {
		return fmt.Errorf("report mail: %w", err)
	}
	return nil
}
