package toolhttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(60, 3) // one token per second, bucket of 3
	defer rl.Stop()

	caller := "192.168.1.1"

	// The full burst is available immediately
	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow(caller)
		assert.True(t, ok, "Request %d should be allowed", i+1)
	}

	ok, retryAfter := rl.Allow(caller)
	assert.False(t, ok, "4th request should be denied")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Second)
}

func TestRateLimiterMultipleCallers(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		ok, _ := rl.Allow("a")
		assert.True(t, ok)
		ok, _ = rl.Allow("b")
		assert.True(t, ok)
	}

	// Both callers are limited independently
	ok, _ := rl.Allow("a")
	assert.False(t, ok)
	ok, _ = rl.Allow("b")
	assert.False(t, ok)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterDeniedRequestsDoNotConsume(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = rl.Allow("a")
		assert.False(t, ok)
	}

	_, retryAfter := rl.Allow("a")
	assert.LessOrEqual(t, retryAfter, time.Second, "canceled reservations are returned to the bucket")
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("old")
	rl.Allow("new")

	rl.mu.Lock()
	rl.callers["old"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	assert.Equal(t, 1, rl.Len())
	rl.mu.Lock()
	_, kept := rl.callers["new"]
	rl.mu.Unlock()
	assert.True(t, kept)
}

func TestRateLimiterStopTwice(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
