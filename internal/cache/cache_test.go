package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	hits, misses, lazy, swept atomic.Int64
}

func (o *countingObserver) Hit()  { o.hits.Add(1) }
func (o *countingObserver) Miss() { o.misses.Add(1) }
func (o *countingObserver) Expired(n int, swept bool) {
	if swept {
		o.swept.Add(int64(n))
	} else {
		o.lazy.Add(int64(n))
	}
}

type CacheTestSuite struct {
	suite.Suite

	clock *fakeClock
	obs   *countingObserver
	c     *TTL[string, string]
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.obs = &countingObserver{}
	s.c = New[string, string](Config{Now: s.clock.Now, Observer: s.obs})
}

func (s *CacheTestSuite) TestSetGetExpires() {
	s.c.Set("key1", "value1", 200*time.Millisecond)
	v, ok := s.c.Get("key1")
	s.True(ok)
	s.Equal("value1", v)

	s.clock.Advance(250 * time.Millisecond)
	v, ok = s.c.Get("key1")
	s.False(ok)
	s.Equal("", v)
	// Expired read removes the entry.
	s.Empty(s.c.Keys())
	s.EqualValues(1, s.obs.lazy.Load())
}

func (s *CacheTestSuite) TestNoTTLPersists() {
	s.c.Set("forever", "v", 0)
	s.clock.Advance(24 * 365 * time.Hour)
	v, ok := s.c.Get("forever")
	s.True(ok)
	s.Equal("v", v)

	s.Zero(s.c.SweepExpired())
	v, ok = s.c.Get("forever")
	s.True(ok)
	s.Equal("v", v)
}

func (s *CacheTestSuite) TestOverwriteReplacesValueAndExpiry() {
	s.c.Set("k", "v1", time.Second)
	s.c.Set("k", "v2", time.Minute)

	s.clock.Advance(2 * time.Second)
	v, ok := s.c.Get("k")
	s.True(ok)
	s.Equal("v2", v)

	s.clock.Advance(time.Minute)
	_, ok = s.c.Get("k")
	s.False(ok)
}

func (s *CacheTestSuite) TestOverwriteDropsExpiry() {
	s.c.Set("k", "v1", time.Second)
	s.c.Set("k", "v2", 0)
	s.clock.Advance(time.Hour)
	v, ok := s.c.Get("k")
	s.True(ok)
	s.Equal("v2", v)
}

func (s *CacheTestSuite) TestRemoveAndClear() {
	s.c.Set("a", "1", 0)
	s.c.Set("b", "2", time.Minute)
	s.c.Remove("a")
	s.c.Remove("missing")
	_, ok := s.c.Get("a")
	s.False(ok)
	s.Equal([]string{"b"}, s.c.Keys())

	s.c.Clear()
	s.Empty(s.c.Keys())
	s.Zero(s.c.Len())
}

func (s *CacheTestSuite) TestKeysIncludeExpired() {
	s.c.Set("stale", "x", time.Second)
	s.c.Set("fresh", "y", time.Hour)
	s.clock.Advance(2 * time.Second)

	keys := s.c.Keys()
	sort.Strings(keys)
	s.Equal([]string{"fresh", "stale"}, keys)
}

func (s *CacheTestSuite) TestSweepRemovesExactlyExpired() {
	for _, k := range []string{"e1", "e2", "e3"} {
		s.c.Set(k, "old-"+k, time.Second)
	}
	s.c.Set("future", "f", time.Hour)
	s.c.Set("never", "n", 0)
	s.clock.Advance(5 * time.Second)

	s.Equal(3, s.c.SweepExpired())
	s.Len(s.c.Keys(), 2)
	s.EqualValues(3, s.obs.swept.Load())

	v, ok := s.c.Get("future")
	s.True(ok)
	s.Equal("f", v)
	v, ok = s.c.Get("never")
	s.True(ok)
	s.Equal("n", v)
}

func (s *CacheTestSuite) TestSweepKeepsReSetEntry() {
	s.c.Set("k", "old", time.Second)
	s.clock.Advance(2 * time.Second)
	s.c.Set("k", "new", time.Minute)

	s.Zero(s.c.SweepExpired())
	v, ok := s.c.Get("k")
	s.True(ok)
	s.Equal("new", v)
}

func (s *CacheTestSuite) TestHitMissCounters() {
	s.c.Set("k", "v", 0)
	s.c.Get("k")
	s.c.Get("nope")
	s.EqualValues(1, s.obs.hits.Load())
	s.EqualValues(1, s.obs.misses.Load())
}

func (s *CacheTestSuite) TestConcurrentAccess() {
	c := New[int, int](Config{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(i, g, time.Millisecond)
				c.Get(i)
				if i%50 == 0 {
					c.SweepExpired()
					c.Remove(i)
				}
			}
		}(g)
	}
	wg.Wait()
	s.LessOrEqual(c.Len(), 500)
}
