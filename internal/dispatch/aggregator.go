package dispatch

import (
	"slices"
	"sync"

	"github.com/mailrun/mailrun/internal/model"
)

// Snapshot is a point-in-time copy of the aggregated outcomes.
type Snapshot struct {
	Total     int
	Delivered int
	Failed    int
	// Report lists outcomes in submission order.
	Report []model.Outcome
}

// Pending returns how many recipients have no recorded outcome.
func (s Snapshot) Pending() int {
	return s.Total - s.Delivered - s.Failed
}

// Aggregator counts outcomes and keeps the delivery report.
// It is safe for concurrent use and can be read while a run is in progress.
type Aggregator struct {
	mu        sync.Mutex
	total     int
	delivered int
	failed    int
	report    []model.Outcome
}

// NewAggregator creates an aggregator for total recipients, seeded with
// the outcomes recorded by earlier runs of the same campaign.
func NewAggregator(total int, prior []model.Outcome) *Aggregator {
	a := &Aggregator{total: total, report: make([]model.Outcome, 0, total)}
	for _, o := range prior {
		a.record(o)
	}
	return a
}

// Record adds one outcome.
func (a *Aggregator) Record(o model.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record(o)
}

func (a *Aggregator) record(o model.Outcome) {
	if o.IsDelivered() {
		a.delivered++
	} else {
		a.failed++
	}
	a.report = append(a.report, o)
}

// Snapshot returns the current counters and a copy of the report.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Total:     a.total,
		Delivered: a.delivered,
		Failed:    a.failed,
		Report:    slices.Clone(a.report),
	}
}
