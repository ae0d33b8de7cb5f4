package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRateLimiter_Allow_NeverAdmitsMoreThanGlobalBurst(t *testing.T) {
	// Scenario 7: GlobalBurst=2, GlobalRate=0 (replaced by the 50/s default,
	// which refills far less than a token across five back-to-back calls),
	// 5 attempts from distinct IPs so the per-IP bucket never becomes the
	// limiting factor.
	// Expect exactly 2 admitted, 3 rejected.
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst:     10,
		IPRate:      10,
		GlobalBurst: 2,
		GlobalRate:  0,
		Logger:      testLogger(),
	})
	defer crl.Stop()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	var admitted int
	for _, ip := range ips {
		if crl.Allow(ip) {
			admitted++
		}
	}

	assert.Equal(t, 2, admitted)
}

func TestConnectionRateLimiter_Allow_PerIPBucketLimitsASingleAddress(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst:     2,
		IPRate:      0,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      testLogger(),
	})
	defer crl.Stop()

	assert.True(t, crl.Allow("1.2.3.4"))
	assert.True(t, crl.Allow("1.2.3.4"))
	assert.False(t, crl.Allow("1.2.3.4"), "third attempt from the same IP should exceed its burst")

	// A different IP has its own bucket and is unaffected.
	assert.True(t, crl.Allow("5.6.7.8"))
}

func TestConnectionRateLimiter_Allow_AppliesDefaultsForZeroFields(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{Logger: testLogger()})
	defer crl.Stop()

	assert.Equal(t, 10, crl.ipBurst)
	assert.Equal(t, 1.0, crl.ipRate)
	assert.Equal(t, 5*time.Minute, crl.ipTTL)
	assert.Equal(t, 300, crl.globalBurst)
	assert.Equal(t, 50.0, crl.globalRate)
	assert.Equal(t, "default", crl.listenerLabel)
}

func TestConnectionRateLimiter_Cleanup_EvictsEntriesPastTTL(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst:     5,
		IPRate:      5,
		IPTTL:       time.Millisecond,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      testLogger(),
	})
	defer crl.Stop()

	require.True(t, crl.Allow("9.9.9.9"))
	crl.ipMu.RLock()
	_, exists := crl.ipLimiters["9.9.9.9"]
	crl.ipMu.RUnlock()
	require.True(t, exists)

	time.Sleep(5 * time.Millisecond)
	crl.cleanup()

	crl.ipMu.RLock()
	_, exists = crl.ipLimiters["9.9.9.9"]
	crl.ipMu.RUnlock()
	assert.False(t, exists)
}
