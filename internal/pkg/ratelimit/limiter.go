package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// DefaultSweepThreshold is the record count above which stale records are swept.
	DefaultSweepThreshold = 10000
	// DefaultSweepInterval is the minimum time between two sweeps.
	DefaultSweepInterval = time.Minute
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RetryAfterSeconds returns ResetIn rounded up to whole seconds, at least 1.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.ResetIn.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Checker is what request guards depend on.
type Checker interface {
	Check(ctx context.Context, identifier string, limit int, window time.Duration) Decision
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithStore replaces the default MemoryStore.
func WithStore(store Store) Option {
	return func(l *Limiter) {
		if store != nil {
			l.store = store
		}
	}
}

// WithSweepThreshold sets the record count that triggers a sweep.
func WithSweepThreshold(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.sweepThreshold = n
		}
	}
}

// WithSweepInterval sets the minimum time between sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.sweepInterval = d
		}
	}
}

// Limiter is an in-process fixed-window counter keyed by identifier.
// Counts are per process: N instances allow up to N times the limit.
type Limiter struct {
	mu             sync.Mutex
	store          Store
	now            Clock
	sweepThreshold int
	sweepInterval  time.Duration
	lastSweep      time.Time
}

// NewLimiter constructs a limiter backed by a MemoryStore.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		store:          NewMemoryStore(),
		now:            time.Now,
		sweepThreshold: DefaultSweepThreshold,
		sweepInterval:  DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Check counts one request for identifier. A denied request does not
// increment the counter. A non-positive limit or window disables limiting.
func (l *Limiter) Check(_ context.Context, identifier string, limit int, window time.Duration) Decision {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.store.Get(identifier)

	if !ok || rec.ResetAt.Before(now) {
		l.store.Set(identifier, Record{Count: 1, ResetAt: now.Add(window), Window: window})
		l.maybeSweepLocked(now, window)
		return Decision{Allowed: true, Remaining: limit - 1, ResetIn: window}
	}

	if rec.Count >= limit {
		return Decision{Allowed: false, Remaining: 0, ResetIn: rec.ResetAt.Sub(now)}
	}

	rec.Count++
	l.store.Set(identifier, rec)
	l.maybeSweepLocked(now, window)
	return Decision{Allowed: true, Remaining: limit - rec.Count, ResetIn: rec.ResetAt.Sub(now)}
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Len()
}

// Reset clears all tracked state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store.Reset()
	l.lastSweep = l.now()
}

// maybeSweepLocked prunes stale records once the store is over the
// threshold. Short windows go stale faster than the sweep interval, so
// a sweep is also due once twice the current window has elapsed.
func (l *Limiter) maybeSweepLocked(now time.Time, window time.Duration) {
	if l.store.Len() <= l.sweepThreshold {
		return
	}
	elapsed := now.Sub(l.lastSweep)
	if elapsed < l.sweepInterval && elapsed < 2*window {
		return
	}
	l.store.Sweep(now)
	l.lastSweep = now
}
