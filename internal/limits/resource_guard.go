// Package limits carries the process's admission-control layer: a
// token-bucket connection rate limiter and a goroutine/memory resource
// guard, both consulted by the TCP listener actor before it hands an
// accepted fd to its notifier.
package limits

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
)

// ResourceGuard enforces a hard goroutine ceiling and a memory-fraction
// ceiling, rejecting admission once either is exceeded. The goroutine count
// is read on every Admit call; RSS is sampled on an interval by Run.
type ResourceGuard struct {
	maxGoroutines int
	maxRSSBytes   int64 // 0 = unknown/unbounded, never rejects on memory
	logger        zerolog.Logger

	currentRSS atomic.Int64
}

// NewResourceGuard builds a guard that rejects admission above maxGoroutines
// live goroutines or above rssFraction of the cgroup memory limit (if one
// was detected; 0 limit disables the memory check).
func NewResourceGuard(maxGoroutines int, rssFraction float64, logger zerolog.Logger) *ResourceGuard {
	limitBytes, err := obs.MemoryLimit()
	if err != nil || limitBytes == 0 {
		logger.Info().Msg("no cgroup memory limit detected; resource guard will not reject on RSS")
		limitBytes = 0
	}

	var maxRSS int64
	if limitBytes > 0 {
		maxRSS = int64(float64(limitBytes) * rssFraction)
	}

	return &ResourceGuard{
		maxGoroutines: maxGoroutines,
		maxRSSBytes:   maxRSS,
		logger:        logger,
	}
}

// Admit reports whether a new connection may be accepted under the current
// sampled resource state.
func (rg *ResourceGuard) Admit() (ok bool, reason string) {
	goros := runtime.NumGoroutine()
	if goros > rg.maxGoroutines {
		obs.ResourceGuardRejections.Inc()
		return false, "goroutine ceiling exceeded"
	}
	if rg.maxRSSBytes > 0 {
		if rss := rg.currentRSS.Load(); rss > rg.maxRSSBytes {
			obs.ResourceGuardRejections.Inc()
			return false, "memory ceiling exceeded"
		}
	}
	return true, ""
}

// Sample refreshes the guard's view of process RSS.
func (rg *ResourceGuard) Sample() {
	rss, err := obs.SampleRSS()
	if err != nil {
		rg.logger.Debug().Err(err).Msg("resource guard: RSS sample failed")
		return
	}
	rg.currentRSS.Store(rss)
}

// Run samples resource state on interval until ctx is cancelled.
func (rg *ResourceGuard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rg.Sample()
		case <-ctx.Done():
			return
		}
	}
}
