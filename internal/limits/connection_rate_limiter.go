package limits

import (
	"sync"
	"time"

	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectionRateLimiter gates TCP accepts with two token buckets: a per-IP
// bucket (stops a single address from flooding the listener) and a global
// bucket (stops distributed floods). Consulted by the listener actor before
// it hands an accepted fd to its notifier.
type ConnectionRateLimiter struct {
	ipLimiters map[string]*ipLimiterEntry
	ipMu       sync.RWMutex
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	globalLimiter *rate.Limiter
	globalBurst   int
	globalRate    float64

	logger zerolog.Logger

	listenerLabel string
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectionRateLimiterConfig configures a ConnectionRateLimiter.
type ConnectionRateLimiterConfig struct {
	IPBurst int
	IPRate  float64
	IPTTL   time.Duration

	GlobalBurst int
	GlobalRate  float64

	// ListenerLabel tags the rejected-connection metric so multiple
	// listeners' rejection counts stay distinguishable.
	ListenerLabel string

	Logger zerolog.Logger
}

// NewConnectionRateLimiter builds a limiter with the given configuration,
// applying the teacher's defaults (10 burst / 1 per sec per IP, 300 burst /
// 50 per sec globally) for zero-valued fields.
func NewConnectionRateLimiter(cfg ConnectionRateLimiterConfig) *ConnectionRateLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}
	if cfg.ListenerLabel == "" {
		cfg.ListenerLabel = "default"
	}

	limiter := &ConnectionRateLimiter{
		ipLimiters:    make(map[string]*ipLimiterEntry),
		ipBurst:       cfg.IPBurst,
		ipRate:        cfg.IPRate,
		ipTTL:         cfg.IPTTL,
		globalLimiter: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		globalBurst:   cfg.GlobalBurst,
		globalRate:    cfg.GlobalRate,
		logger:        cfg.Logger.With().Str("component", "connection_rate_limiter").Logger(),
		listenerLabel: cfg.ListenerLabel,
		stopCleanup:   make(chan struct{}),
	}

	limiter.cleanupTicker = time.NewTicker(time.Minute)
	go limiter.cleanupLoop()

	return limiter
}

// Allow reports whether a connection attempt from ip should be accepted,
// checking the global bucket first (cheap, no map lookup) then the per-IP
// bucket.
func (crl *ConnectionRateLimiter) Allow(ip string) bool {
	if !crl.globalLimiter.Allow() {
		obs.ListenerRejected.WithLabelValues(crl.listenerLabel, "global_rate").Inc()
		return false
	}

	if !crl.getIPLimiter(ip).Allow() {
		obs.ListenerRejected.WithLabelValues(crl.listenerLabel, "per_ip_rate").Inc()
		return false
	}

	return true
}

func (crl *ConnectionRateLimiter) getIPLimiter(ip string) *rate.Limiter {
	crl.ipMu.RLock()
	entry, exists := crl.ipLimiters[ip]
	crl.ipMu.RUnlock()
	if exists {
		crl.ipMu.Lock()
		entry.lastAccess = time.Now()
		crl.ipMu.Unlock()
		return entry.limiter
	}

	crl.ipMu.Lock()
	defer crl.ipMu.Unlock()
	if entry, exists = crl.ipLimiters[ip]; exists {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(crl.ipRate), crl.ipBurst)
	crl.ipLimiters[ip] = &ipLimiterEntry{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (crl *ConnectionRateLimiter) cleanupLoop() {
	for {
		select {
		case <-crl.cleanupTicker.C:
			crl.cleanup()
		case <-crl.stopCleanup:
			crl.cleanupTicker.Stop()
			return
		}
	}
}

func (crl *ConnectionRateLimiter) cleanup() {
	crl.ipMu.Lock()
	defer crl.ipMu.Unlock()
	now := time.Now()
	for ip, entry := range crl.ipLimiters {
		if now.Sub(entry.lastAccess) > crl.ipTTL {
			delete(crl.ipLimiters, ip)
		}
	}
}

// Stop ends the background cleanup goroutine. Call during shutdown.
func (crl *ConnectionRateLimiter) Stop() {
	close(crl.stopCleanup)
}
