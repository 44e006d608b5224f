package rate

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// DefaultTrackedKeys bounds how many keys a local limiter remembers.
const DefaultTrackedKeys = 4096

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

// LocalLimiter is an in memory Limiter with an independent token bucket per
// key. Buckets for the least recently seen keys are forgotten once more than
// the tracked key count are in use, which resets their allowance.
type LocalLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets *lru.Cache
}

// NewLocalRateLimiter returns a LocalLimiter allowing limit operations per
// second for each key, tracking up to DefaultTrackedKeys keys.
func NewLocalRateLimiter(limit rate.Limit) *LocalLimiter {
	return NewBoundedLocalRateLimiter(limit, DefaultTrackedKeys)
}

// NewBoundedLocalRateLimiter is NewLocalRateLimiter with an explicit bound on
// tracked keys. Limits below one per second still allow a single operation up
// front.
func NewBoundedLocalRateLimiter(limit rate.Limit, trackedKeys int) *LocalLimiter {
	if trackedKeys < 1 {
		trackedKeys = 1
	}
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}

	// lru.New only fails for a non-positive size
	buckets, _ := lru.New(trackedKeys)
	return &LocalLimiter{
		limit:   limit,
		burst:   burst,
		buckets: buckets,
	}
}

// Allow implements Limiter.Allow.
func (l *LocalLimiter) Allow(key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.buckets.Get(key); ok {
		return existing.(*rate.Limiter)
	}

	bucket := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Add(key, bucket)
	return bucket
}
