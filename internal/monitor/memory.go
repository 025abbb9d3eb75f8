// Package monitor samples process runtime statistics for the health endpoint.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/kyleking/lyre/internal/logging"
)

// MemoryStats is one runtime sample
type MemoryStats struct {
	AllocMB        float64   `json:"alloc_mb"`
	SysMB          float64   `json:"sys_mb"`
	NumGC          uint32    `json:"num_gc"`
	GoroutineCount int       `json:"goroutines"`
	Uptime         string    `json:"uptime"`
	SampledAt      time.Time `json:"sampled_at"`
}

// MemoryMonitor keeps the latest runtime sample. Samples are taken on a
// ticker after Start, or on demand when none is fresh enough.
type MemoryMonitor struct {
	mu      sync.RWMutex
	stats   MemoryStats
	started time.Time
	maxAge  time.Duration
	logger  *logging.Logger
}

// NewMemoryMonitor creates a monitor whose samples go stale after maxAge
func NewMemoryMonitor(maxAge time.Duration, logger *logging.Logger) *MemoryMonitor {
	return &MemoryMonitor{
		started: time.Now(),
		maxAge:  maxAge,
		logger:  logger.Component("monitor"),
	}
}

// Start samples every interval until ctx is done
func (m *MemoryMonitor) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := m.sample()
				m.logger.WithFields(map[string]any{
					"alloc_mb":   stats.AllocMB,
					"goroutines": stats.GoroutineCount,
				}).Debug("Runtime sample")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetStats returns the latest sample, taking a new one when it is stale
func (m *MemoryMonitor) GetStats() MemoryStats {
	m.mu.RLock()
	stats := m.stats
	m.mu.RUnlock()

	if stats.SampledAt.IsZero() || time.Since(stats.SampledAt) > m.maxAge {
		return m.sample()
	}

	return stats
}

func (m *MemoryMonitor) sample() MemoryStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	now := time.Now()
	stats := MemoryStats{
		AllocMB:        float64(memStats.Alloc) / 1024 / 1024,
		SysMB:          float64(memStats.Sys) / 1024 / 1024,
		NumGC:          memStats.NumGC,
		GoroutineCount: runtime.NumGoroutine(),
		Uptime:         now.Sub(m.started).Round(time.Second).String(),
		SampledAt:      now,
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()

	return stats
}
