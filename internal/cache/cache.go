package cache

import (
	"sync"
	"time"
)

// Observer receives cache events. Implementations must be safe for concurrent use.
type Observer interface {
	Hit()
	Miss()
	// Expired is called with the number of entries dropped because their TTL
	// passed; swept is false when the drop happened lazily inside Get.
	Expired(n int, swept bool)
}

type noopObserver struct{}

func (noopObserver) Hit()              {}
func (noopObserver) Miss()             {}
func (noopObserver) Expired(int, bool) {}

// Config controls a TTL instance. The zero value is usable.
type Config struct {
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// Observer defaults to a no-op.
	Observer Observer
}

// TTL is a concurrency-safe map from K to V where each entry may carry an
// absolute expiry. An entry without expiry lives until removed or cleared.
type TTL[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]

	now func() time.Time
	obs Observer
}

type entry[V any] struct {
	val V
	exp time.Time // zero => never expires
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.exp.IsZero() && !now.Before(e.exp)
}

func New[K comparable, V any](cfg Config) *TTL[K, V] {
	t := &TTL[K, V]{
		data: make(map[K]entry[V]),
		now:  cfg.Now,
		obs:  cfg.Observer,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.obs == nil {
		t.obs = noopObserver{}
	}
	return t
}

// Set inserts or fully replaces the entry for k. ttl <= 0 means no expiry.
func (t *TTL[K, V]) Set(k K, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = t.now().Add(ttl)
	}
	t.mu.Lock()
	t.data[k] = entry[V]{val: v, exp: exp}
	t.mu.Unlock()
}

// Get returns the value and true if found and not expired; otherwise zero value and false.
// An expired entry is deleted as a side effect.
func (t *TTL[K, V]) Get(k K) (V, bool) {
	var zero V
	now := t.now()

	t.mu.RLock()
	e, ok := t.data[k]
	t.mu.RUnlock()
	if !ok {
		t.obs.Miss()
		return zero, false
	}
	if !e.expired(now) {
		t.obs.Hit()
		return e.val, true
	}

	// Re-check under the write lock: a concurrent Set may have replaced the entry.
	t.mu.Lock()
	e, ok = t.data[k]
	if ok && !e.expired(now) {
		t.mu.Unlock()
		t.obs.Hit()
		return e.val, true
	}
	if ok {
		delete(t.data, k)
	}
	t.mu.Unlock()
	if ok {
		t.obs.Expired(1, false)
	}
	t.obs.Miss()
	return zero, false
}

// Remove deletes k; it is a no-op when k is absent.
func (t *TTL[K, V]) Remove(k K) {
	t.mu.Lock()
	delete(t.data, k)
	t.mu.Unlock()
}

func (t *TTL[K, V]) Clear() {
	t.mu.Lock()
	t.data = make(map[K]entry[V])
	t.mu.Unlock()
}

// Keys returns a snapshot of the stored keys, including expired ones that were
// not yet reclaimed. Order is unspecified.
func (t *TTL[K, V]) Keys() []K {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]K, 0, len(t.data))
	for k := range t.data {
		out = append(out, k)
	}
	return out
}

// Len includes expired entries that were not yet reclaimed.
func (t *TTL[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// SweepExpired removes every entry whose expiry has passed and returns how many
// were removed. Entries without expiry are never touched.
func (t *TTL[K, V]) SweepExpired() int {
	t.mu.Lock()
	// Read the clock under the lock so a Set that lands just before the sweep
	// is judged against the same instant as the removal.
	now := t.now()
	removed := 0
	for k, e := range t.data {
		if e.expired(now) {
			delete(t.data, k)
			removed++
		}
	}
	t.mu.Unlock()
	if removed > 0 {
		t.obs.Expired(removed, true)
	}
	return removed
}
