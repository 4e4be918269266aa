package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls   atomic.Int64
	lastAge atomic.Int64
}

func (c *countingCleaner) CleanupOlderThan(_ context.Context, age time.Duration) (int, error) {
	c.calls.Add(1)
	c.lastAge.Store(int64(age))
	return 1, nil
}

func TestServiceSweepsImmediatelyAndStops(t *testing.T) {
	cleaner := &countingCleaner{}
	svc := NewService(cleaner, 24*time.Hour, time.Hour)

	svc.Start(context.Background())
	require.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond, "first sweep should run on start")
	svc.Stop()

	assert.Equal(t, int64(24*time.Hour), cleaner.lastAge.Load())
}

func TestServiceSweepsPeriodically(t *testing.T) {
	cleaner := &countingCleaner{}
	svc := NewService(cleaner, time.Hour, 20*time.Millisecond)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	svc := NewService(&countingCleaner{}, time.Hour, time.Hour)
	svc.Stop() // no panic, no block
}

func TestStartTwiceIsIdempotent(t *testing.T) {
	cleaner := &countingCleaner{}
	svc := NewService(cleaner, time.Hour, time.Hour)

	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
}
