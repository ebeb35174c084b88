package model

import "fmt"

// DeliveryStatus classifies the terminal result for one recipient
type DeliveryStatus string

// Delivery statuses
const (
	StatusDelivered            DeliveryStatus = "delivered"
	StatusDeliveredWithWarning DeliveryStatus = "delivered_with_warning"
	StatusFailed               DeliveryStatus = "failed"
)

// Outcome is the result of processing the recipient at Index.
type Outcome struct {
	Index  int            `json:"index"`
	Email  string         `json:"email"`
	Status DeliveryStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// Delivered builds a clean delivery outcome.
func Delivered(index int, email string) Outcome {
	return Outcome{Index: index, Email: email, Status: StatusDelivered}
}

// DeliveredWithWarning builds a delivery outcome whose follow-up step failed.
func DeliveredWithWarning(index int, email string, reason error) Outcome {
	return Outcome{Index: index, Email: email, Status: StatusDeliveredWithWarning, Reason: errText(reason)}
}

// Failed builds a failed delivery outcome.
func Failed(index int, email string, reason error) Outcome {
	return Outcome{Index: index, Email: email, Status: StatusFailed, Reason: errText(reason)}
}

// IsDelivered reports whether the message reached the transport.
// Warnings still count as delivered.
func (o Outcome) IsDelivered() bool {
	return o.Status == StatusDelivered || o.Status == StatusDeliveredWithWarning
}

// Describe renders the outcome the way delivery reports show it.
func (o Outcome) Describe() string {
	switch o.Status {
	case StatusDelivered:
		return "Delivered"
	case StatusDeliveredWithWarning:
		return fmt.Sprintf("Delivered (failed to save to Sent: %s)", o.Reason)
	case StatusFailed:
		return fmt.Sprintf("Failed: %s", o.Reason)
	default:
		return string(o.Status)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
