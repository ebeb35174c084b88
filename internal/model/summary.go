package model

import "time"

// CampaignSummary is the history record written when a campaign reaches
// a terminal state.
type CampaignSummary struct {
	CampaignID string        `json:"timestamp"`
	Name       string        `json:"campaign_name"`
	Subject    string        `json:"subject"`
	Total      int           `json:"total"`
	Delivered  int           `json:"delivered"`
	Failed     int           `json:"failed"`
	State      CampaignState `json:"state"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Label returns the display label used when listing past campaigns.
func (s CampaignSummary) Label() string {
	if s.Name == "" {
		return s.CampaignID
	}
	return s.Name + " " + s.CampaignID
}
