package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/testutil"
)

func TestGetStatsSamplesOnDemand(t *testing.T) {
	m := NewMemoryMonitor(time.Hour, logging.Discard())

	stats := m.GetStats()
	assert.False(t, stats.SampledAt.IsZero())
	assert.Positive(t, stats.GoroutineCount)
	assert.GreaterOrEqual(t, stats.SysMB, stats.AllocMB)

	// A fresh sample is reused.
	assert.Equal(t, stats.SampledAt, m.GetStats().SampledAt)
}

func TestGetStatsResamplesWhenStale(t *testing.T) {
	m := NewMemoryMonitor(time.Nanosecond, nil)

	first := m.GetStats()
	time.Sleep(time.Millisecond)

	assert.True(t, m.GetStats().SampledAt.After(first.SampledAt))
}

func TestStartSamplesInBackground(t *testing.T) {
	m := NewMemoryMonitor(time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()

		return !m.stats.SampledAt.IsZero()
	}, time.Second, 5*time.Millisecond)
}

func TestGetStatsConcurrent(t *testing.T) {
	m := NewMemoryMonitor(time.Nanosecond, logging.Discard())

	testutil.RunConcurrent(t, 8, func(int) {
		_ = m.GetStats()
	})
}
