package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jonwraymond/cachepipe/cache"
)

// MemoryCheckerConfig configures the memory backend checker.
type MemoryCheckerConfig struct {
	// MaxEntries is the expected upper bound on stored entries.
	// Default: 100000
	MaxEntries int

	// WarningThreshold is the fraction of MaxEntries that degrades the result.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fraction of MaxEntries that makes it unhealthy.
	// Default: 0.95
	CriticalThreshold float64
}

// MemoryChecker reports how full an in-process cache.MemoryBackend is,
// with process heap statistics as details.
type MemoryChecker struct {
	backend *cache.MemoryBackend
	config  MemoryCheckerConfig
}

// NewMemoryChecker creates a checker for backend.
func NewMemoryChecker(backend *cache.MemoryBackend, config MemoryCheckerConfig) *MemoryChecker {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 100000
	}
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &MemoryChecker{backend: backend, config: config}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Check compares the entry count with MaxEntries.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	entries := m.backend.Len()
	ratio := float64(entries) / float64(m.config.MaxEntries)
	details := map[string]any{
		"entries":       entries,
		"max_entries":   m.config.MaxEntries,
		"usage_percent": ratio * 100,
		"heap_alloc":    stats.HeapAlloc,
		"heap_objects":  stats.HeapObjects,
		"num_gc":        stats.NumGC,
	}

	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("memory cache nearly full: %.1f%%", ratio*100), ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded(fmt.Sprintf("memory cache filling: %.1f%%", ratio*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("memory cache at %.1f%%", ratio*100)).WithDetails(details)
	}
}
