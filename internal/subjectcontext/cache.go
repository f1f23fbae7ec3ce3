package subjectcontext

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL = 6 * time.Hour
	keyPrefix  = "ariss:context:"
)

// Cache is satisfied by clients.ValkeyClient and MemoryCache.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cached memoizes a Provider per subject. Cache failures fall through to the
// wrapped provider; provider errors are never cached.
type Cached struct {
	inner Provider
	cache Cache
	ttl   time.Duration
}

func NewCached(inner Provider, cache Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}
}

func (c *Cached) GetContext(ctx context.Context, subject string) (string, error) {
	key := cacheKey(subject)

	value, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("[ContextCache] Cache read failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
	if found {
		return value, nil
	}

	value, err = c.inner.GetContext(ctx, subject)
	if err != nil {
		return "", err
	}
	if err := c.cache.SetWithTTL(ctx, key, value, c.ttl); err != nil {
		slog.Warn("[ContextCache] Cache write failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
	return value, nil
}

func cacheKey(subject string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(subject))
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process Cache for single-instance deployments.
type MemoryCache struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache(clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{clock: clock, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}
