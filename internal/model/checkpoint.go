package model

import "time"

// Checkpoint is the durable resume state of a campaign.
// Recipients always holds the full original list; Report holds the
// outcomes for indices below Cursor in submission order.
type Checkpoint struct {
	CampaignID string      `json:"campaignId"`
	Name       string      `json:"name,omitempty"`
	Subject    string      `json:"subject"`
	Sender     string      `json:"sender,omitempty"`
	Recipients []Recipient `json:"recipients"`
	Cursor     int         `json:"cursor"`
	Report     []Outcome   `json:"report,omitempty"`
	SavedAt    time.Time   `json:"savedAt"`
}

// IsComplete reports whether the checkpoint covers every recipient.
func (c *Checkpoint) IsComplete() bool {
	return c.Cursor >= len(c.Recipients)
}
