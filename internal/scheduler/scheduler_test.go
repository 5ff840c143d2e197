package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsInitialPassByDefault(t *testing.T) {
	var count int32
	s := New("test", time.Hour, false, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestSchedulerSkipsInitialPassWhenConfigured(t *testing.T) {
	var count int32
	s := New("test", time.Hour, true, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestSchedulerTicksRepeatedly(t *testing.T) {
	var count int32
	s := New("test", 10*time.Millisecond, true, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestDailySchedulerNextRunInSameDay(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	d := NewDaily("daily", 0, 5, nil)
	d.now = func() time.Time { return fixed }

	wait := d.nextRunIn()
	assert.Equal(t, 5*time.Minute, wait)
}

func TestDailySchedulerNextRunRollsToTomorrow(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 0, 10, 0, 0, time.UTC)
	d := NewDaily("daily", 0, 5, nil)
	d.now = func() time.Time { return fixed }

	wait := d.nextRunIn()
	assert.Equal(t, 23*time.Hour+55*time.Minute, wait)
}
