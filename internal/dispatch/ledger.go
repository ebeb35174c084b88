package dispatch

import "github.com/mailrun/mailrun/internal/model"

// ledger holds outcomes by submission index until every earlier index is
// also filled. next is the length of the filled prefix and doubles as the
// campaign cursor. Not safe for concurrent use.
type ledger struct {
	slots []*model.Outcome
	next  int
}

func newLedger(start, total int) *ledger {
	return &ledger{slots: make([]*model.Outcome, total), next: start}
}

// fill stores o at its index and returns the outcomes that became part of
// the contiguous prefix, in index order.
func (l *ledger) fill(o model.Outcome) []model.Outcome {
	if o.Index < l.next || o.Index >= len(l.slots) || l.slots[o.Index] != nil {
		return nil
	}
	l.slots[o.Index] = &o

	var flushed []model.Outcome
	for l.next < len(l.slots) && l.slots[l.next] != nil {
		flushed = append(flushed, *l.slots[l.next])
		l.slots[l.next] = nil
		l.next++
	}
	return flushed
}

// cursor returns the length of the filled prefix.
func (l *ledger) cursor() int {
	return l.next
}

// held returns how many outcomes wait behind a gap.
func (l *ledger) held() int {
	n := 0
	for _, s := range l.slots[l.next:] {
		if s != nil {
			n++
		}
	}
	return n
}
