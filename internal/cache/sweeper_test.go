package cache

import (
	"time"
)

func (s *CacheTestSuite) TestSweeperRemovesWithoutGet() {
	c := New[string, string](Config{})
	c.Set("ttl", "v", 20*time.Millisecond)
	c.Set("keep", "v", 0)

	sw := NewSweeper("test", c, 10*time.Millisecond)
	sw.Start()
	defer sw.Stop()

	s.Eventually(func() bool {
		return c.Len() == 1
	}, time.Second, 5*time.Millisecond)
	s.Equal([]string{"keep"}, c.Keys())
}

func (s *CacheTestSuite) TestSweeperStopIsIdempotent() {
	c := New[string, string](Config{})
	sw := NewSweeper("test", c, 5*time.Millisecond)
	sw.Stop()
	sw.Start()
	sw.Start()
	sw.Stop()
	sw.Stop()

	// Stopped sweeper leaves expired entries for lazy expiry.
	c.Set("k", "v", time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Equal(1, c.Len())
	_, ok := c.Get("k")
	s.False(ok)
}

func (s *CacheTestSuite) TestSweeperDisabledWithZeroInterval() {
	c := New[string, string](Config{})
	sw := NewSweeper("test", c, 0)
	sw.Start()
	sw.Stop()
	c.Set("k", "v", time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	s.Equal(1, c.Len())
}
