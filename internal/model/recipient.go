package model

// Recipient is one normalized row of a campaign's recipient list.
type Recipient struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}
