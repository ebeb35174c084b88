package model

import "time"

// CampaignIDLayout formats campaign start times into campaign IDs.
// IDs sort lexicographically in creation order.
const CampaignIDLayout = "2006-01-02_15-04-05"

// CampaignState is the lifecycle state of a campaign run
type CampaignState string

// Campaign states
const (
	CampaignNotStarted CampaignState = "not_started"
	CampaignRunning    CampaignState = "running"
	CampaignCompleted  CampaignState = "completed"
	CampaignSuspended  CampaignState = "suspended"
	CampaignAborted    CampaignState = "aborted"
)

// IsTerminal reports whether the state ends the campaign for history purposes.
func (s CampaignState) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignAborted
}

// Campaign is one execution of sending a templated message to a recipient list.
// Cursor counts the recipients whose outcome has been durably recorded;
// recipients below the cursor are never resent under the same ID.
type Campaign struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Subject    string        `json:"subject"`
	Sender     string        `json:"sender"`
	Recipients []Recipient   `json:"recipients"`
	Cursor     int           `json:"cursor"`
	State      CampaignState `json:"state"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// NewCampaignID derives a campaign ID from its start time.
func NewCampaignID(t time.Time) string {
	return t.Format(CampaignIDLayout)
}

// Total returns the number of recipients in the campaign.
func (c *Campaign) Total() int {
	return len(c.Recipients)
}

// Remaining returns how many recipients have no recorded outcome yet.
func (c *Campaign) Remaining() int {
	return len(c.Recipients) - c.Cursor
}

// IsDone reports whether every recipient has a recorded outcome.
func (c *Campaign) IsDone() bool {
	return c.Cursor >= len(c.Recipients)
}
