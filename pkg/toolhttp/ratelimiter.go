package toolhttp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-caller token bucket.
type RateLimiter struct {
	mu              sync.Mutex
	callers         map[string]*callerLimiter
	perCaller       rate.Limit
	burst           int
	idleTTL         time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per caller.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		callers:         make(map[string]*callerLimiter),
		perCaller:       rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:           burst,
		idleTTL:         10 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.startCleanup()

	return rl
}

// Allow reports whether caller may proceed. When it may not, the returned
// duration is how long until a token is available.
func (rl *RateLimiter) Allow(caller string) (bool, time.Duration) {
	rl.mu.Lock()
	state, ok := rl.callers[caller]
	if !ok {
		state = &callerLimiter{limiter: rate.NewLimiter(rl.perCaller, rl.burst)}
		rl.callers[caller] = state
	}
	state.lastSeen = time.Now()
	rl.mu.Unlock()

	reservation := state.limiter.Reserve()
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked callers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.callers)
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets callers idle for longer than idleTTL.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for caller, state := range rl.callers {
		if now.Sub(state.lastSeen) > rl.idleTTL {
			delete(rl.callers, caller)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
