package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket that also counts rejected events, so a caller can
// decide when a sender has misbehaved for long enough to be cut off.
type Limiter struct {
	bucket     *rate.Limiter
	violations int
	mu         sync.Mutex
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.bucket.AllowN(time.Now(), n) {
		return true
	}
	l.violations++
	return false
}

// Rejections since creation
func (l *Limiter) Violations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations
}

type ClientLimiters struct {
	limiters        map[string]*Limiter
	perSecond       float64
	burst           int
	mu              sync.RWMutex
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewClientLimiters(perSecond float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:        make(map[string]*Limiter),
		perSecond:       perSecond,
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

func (cl *ClientLimiters) Get(peerID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[peerID]
	cl.mu.RUnlock()

	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[peerID]; ok {
		return limiter
	}

	limiter = NewLimiter(cl.perSecond, cl.burst)
	cl.limiters[peerID] = limiter
	return limiter
}

func (cl *ClientLimiters) Remove(peerID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, peerID)
}

func (cl *ClientLimiters) Len() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() {
		close(cl.stop)
	})
}

func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if len(cl.limiters) > 10000 {
				cl.limiters = make(map[string]*Limiter)
			}
			cl.mu.Unlock()
		}
	}
}
