package entitlement

import (
	"entitled/internal/cache"
	"entitled/internal/types"
	"sync"
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

type UnitTestSuite struct {
	suite.Suite

	clock    *fakeClock
	cache    *cache.TTL[string, types.EntitlementSnapshot]
	resolver *Resolver
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	s.cache = cache.New[string, types.EntitlementSnapshot](cache.Config{Now: s.clock.Now})
	s.resolver = NewResolver(s.cache, Options{TTL: 60 * time.Second, Now: s.clock.Now})
}

func ptr[T any](v T) *T { return &v }
