package dispatch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/model"
)

func TestAggregator_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(100, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%10 == 0 {
				agg.Record(model.Failed(i, "x@x.com", errors.New("boom")))
				return
			}
			agg.Record(model.Delivered(i, "x@x.com"))
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, 90, snap.Delivered)
	assert.Equal(t, 10, snap.Failed)
	assert.Equal(t, snap.Total, snap.Delivered+snap.Failed)
	assert.Zero(t, snap.Pending())
	assert.Len(t, snap.Report, 100)
}

func TestAggregator_SeededWithPriorOutcomes(t *testing.T) {
	t.Parallel()

	prior := []model.Outcome{
		model.Delivered(0, "a@x.com"),
		model.DeliveredWithWarning(1, "b@x.com", errors.New("no sent folder")),
		model.Failed(2, "c@x.com", errors.New("550")),
	}
	agg := NewAggregator(5, prior)
	agg.Record(model.Delivered(3, "d@x.com"))

	snap := agg.Snapshot()
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 3, snap.Delivered)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Pending())
	require.Len(t, snap.Report, 4)
	assert.Equal(t, "d@x.com", snap.Report[3].Email)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(2, nil)
	agg.Record(model.Delivered(0, "a@x.com"))

	snap := agg.Snapshot()
	snap.Report[0].Email = "changed@x.com"
	agg.Record(model.Delivered(1, "b@x.com"))

	again := agg.Snapshot()
	assert.Equal(t, "a@x.com", again.Report[0].Email)
	assert.Len(t, snap.Report, 1)
}
