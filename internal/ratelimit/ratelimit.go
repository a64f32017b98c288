// Package ratelimit bounds how fast a single client may send.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/manpreetbhatti/codetogether/internal/cmap"
)

// Limiter is a token bucket that also counts rejected events.
type Limiter struct {
	limiter    *rate.Limiter
	violations atomic.Int64
	lastSeen   atomic.Int64
}

// NewLimiter allows perSecond events on average with bursts of up to burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	l := &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
	l.lastSeen.Store(time.Now().UnixNano())
	return l
}

// Allow reports whether one event may happen now.
func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// AllowAt reports whether one event may happen at now.
func (l *Limiter) AllowAt(now time.Time) bool {
	l.lastSeen.Store(now.UnixNano())
	if l.limiter.AllowN(now, 1) {
		return true
	}
	l.violations.Add(1)
	return false
}

// Violations returns how many events were rejected so far.
func (l *Limiter) Violations() int64 {
	return l.violations.Load()
}

func (l *Limiter) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, l.lastSeen.Load()))
}

// ClientLimiters hands out one Limiter per client key and forgets limiters
// that have been idle for a while.
type ClientLimiters struct {
	limiters  *cmap.Map[*Limiter]
	perSecond float64
	burst     int

	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewClientLimiters creates a ClientLimiters and starts its cleanup loop.
func NewClientLimiters(perSecond float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:    cmap.New[*Limiter](),
		perSecond:   perSecond,
		burst:       burst,
		idleTimeout: 5 * time.Minute,
		stop:        make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

// Get returns the limiter of key, creating it on first use.
func (cl *ClientLimiters) Get(key string) *Limiter {
	return cl.limiters.Upsert(key, func(cur *Limiter, exists bool) *Limiter {
		if exists {
			return cur
		}
		return NewLimiter(cl.perSecond, cl.burst)
	})
}

// Remove forgets the limiter of key.
func (cl *ClientLimiters) Remove(key string) {
	cl.limiters.Delete(key, func(*Limiter, bool) bool { return true })
}

// Len returns the number of tracked clients.
func (cl *ClientLimiters) Len() int {
	return cl.limiters.Len()
}

// Stop ends the cleanup loop.
func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() {
		close(cl.stop)
	})
}

func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case now := <-ticker.C:
			cl.Prune(now, cl.idleTimeout)
		}
	}
}

// Prune drops limiters unused for at least idle.
func (cl *ClientLimiters) Prune(now time.Time, idle time.Duration) {
	for _, key := range cl.limiters.Keys() {
		cl.limiters.Delete(key, func(l *Limiter, _ bool) bool {
			return l.idleSince(now) >= idle
		})
	}
}
