package providerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderPrefersFewerErrors(t *testing.T) {
	p := New("ethereum", 1, []string{"a", "b", "c"})
	p.records[1].markFailure("boom")
	p.records[1].markFailure("boom again")

	order := p.order()
	require.Len(t, order, 3)
	assert.NotEqual(t, 1, order[0], "endpoint with two errors should not be tried first")
}

func TestOrderRotatesAfterLastIndex(t *testing.T) {
	p := New("ethereum", 1, []string{"a", "b", "c"})
	p.lastIndex = 0

	order := p.order()
	assert.Equal(t, 1, order[0])
}

func TestStatsSortedByTotalThenSuccessRate(t *testing.T) {
	p := New("ethereum", 1, []string{"a", "b"})
	p.records[0].markSuccess(10 * time.Millisecond)
	p.records[0].markFailure("x")

	p.records[1].markSuccess(5 * time.Millisecond)
	p.records[1].markSuccess(5 * time.Millisecond)

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "b", stats[0].URL, "b ties a on total calls and has the higher success rate, so it should sort first")
	assert.Equal(t, 2, stats[0].Total)
	assert.Equal(t, 100.0, stats[0].SuccessRate)
}

func TestAcquireNoProviders(t *testing.T) {
	p := New("ethereum", 1, nil)
	_, _, err := p.Acquire(context.Background(), time.Second, false, false)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestRotateClearsSticky(t *testing.T) {
	p := New("ethereum", 1, []string{"a"})
	p.sticky = &stickyClient{index: 0, url: "a"}
	p.Rotate()
	assert.Nil(t, p.sticky)
}

func TestObserveUpdatesMatchingRecord(t *testing.T) {
	p := New("ethereum", 1, []string{"a", "b"})
	p.Observe("b", 3*time.Millisecond, nil)
	success, errs, lastSuccess, _, _ := p.records[1].snapshot()
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, errs)
	assert.False(t, lastSuccess.IsZero())
}

func TestObserveSuccessCountsTowardStats(t *testing.T) {
	p := New("ethereum", 1, []string{"a", "b"})
	p.Observe("b", 3*time.Millisecond, nil)
	p.Observe("b", 4*time.Millisecond, nil)
	p.Observe("b", 0, assert.AnError)

	var stat Stat
	for _, s := range p.Stats() {
		if s.URL == "b" {
			stat = s
		}
	}
	assert.Equal(t, 2, stat.Success)
	assert.Equal(t, 1, stat.Errors)
	assert.Equal(t, 3, stat.Total)
	assert.InDelta(t, 66.67, stat.SuccessRate, 0.01)
}
