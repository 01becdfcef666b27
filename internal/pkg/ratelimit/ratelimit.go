// Package ratelimit implements fixed-window request counting per subject
// (merchant ID or client IP). Counters live in a CounterStore so production
// uses Redis while tests run against the in-memory store.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/cache"
)

// Result carries the admission decision plus the header values the API
// exposes on every rate-limited route.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore atomically increments a window counter for a key. The first
// increment of a window arms its expiry; the returned ttl is the remaining
// window lifetime.
type CounterStore interface {
	Incr(key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter is a fixed-window rate limiter for one subject class.
type Limiter struct {
	name   string
	limit  int
	window time.Duration
	store  CounterStore
	now    func() time.Time
}

// New creates a limiter allowing limit requests per window. The name
// namespaces counter keys so independent limiters never collide.
func New(name string, limit int, window time.Duration, store CounterStore) *Limiter {
	return &Limiter{
		name:   name,
		limit:  limit,
		window: window,
		store:  store,
		now:    time.Now,
	}
}

// SetClock overrides the time source used to compute ResetAt. Pair it with
// the store's clock so the reset timestamp matches the window end.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Limit returns the configured request ceiling per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// CheckAndIncrement counts the request against the subject's current window
// and decides admission. The counter is bumped even for rejected requests;
// the window simply runs out.
func (l *Limiter) CheckAndIncrement(subjectID string) (Result, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", l.name, subjectID)
	count, ttl, err := l.store.Incr(key, l.window)
	if err != nil {
		return Result{}, err
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// RedisStore counts windows in Redis via the cache package.
type RedisStore struct{}

func (RedisStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	return cache.IncrWithWindow(key, window)
}

// MemoryStore is a mutex-guarded in-process counter store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count int64
	endAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.endAt) {
		w = &memoryWindow{endAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.endAt.Sub(now), nil
}
