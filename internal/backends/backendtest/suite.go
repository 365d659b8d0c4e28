// Package backendtest holds the behaviour every grant and promo backend must share.
// Backend packages run StoreSuite against their own stores; the remote ones only
// when the matching test endpoint is configured.
package backendtest

import (
	"context"
	"entitled/internal/ports"
	"entitled/internal/types"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite

	Grants ports.GrantStore
	// Promos is optional; backends without promo support leave it nil.
	Promos ports.PromoStore
}

func (s *StoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.Grants.ClearAll(ctx))
	if s.Promos != nil {
		s.Require().NoError(s.Promos.ClearAll(ctx))
	}
}

func (s *StoreSuite) TestUnknownUserIsEmpty() {
	g, err := s.Grants.LoadGrants(context.Background(), "nobody")
	s.NoError(err)
	s.True(g.IsEmpty())
}

func (s *StoreSuite) TestGrantRoundTrip() {
	ctx := context.Background()
	end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.Grants.PutSubscription(ctx, "u1", types.PaidSubscription{
		Status: types.SubscriptionStatusActive, PlanType: "annual", PeriodEnd: &end,
	}))
	s.Require().NoError(s.Grants.PutTrial(ctx, "u1", types.TrialGrant{TrialEnd: end}))
	s.Require().NoError(s.Grants.PutTemporaryGrant(ctx, "u1", types.TemporaryGrant{
		ExpiresAt: end, Reason: "support", GrantedBy: "ops",
	}))
	s.Require().NoError(s.Grants.SetAdmin(ctx, "u1", true))

	g, err := s.Grants.LoadGrants(ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotNil(g.Subscription)
	s.Equal(types.SubscriptionStatusActive, g.Subscription.Status)
	s.Equal("annual", g.Subscription.PlanType)
	s.True(end.Equal(*g.Subscription.PeriodEnd))
	s.Require().NotNil(g.Trial)
	s.True(end.Equal(g.Trial.TrialEnd))
	s.Require().NotNil(g.Temporary)
	s.Equal("support", g.Temporary.Reason)
	s.Equal("ops", g.Temporary.GrantedBy)
	s.NotNil(g.Admin)

	// Other users are untouched.
	other, err := s.Grants.LoadGrants(ctx, "u2")
	s.NoError(err)
	s.True(other.IsEmpty())
}

func (s *StoreSuite) TestPutOverwrites() {
	ctx := context.Background()
	s.Require().NoError(s.Grants.PutSubscription(ctx, "u1", types.PaidSubscription{Status: types.SubscriptionStatusActive, PlanType: "monthly"}))
	s.Require().NoError(s.Grants.PutSubscription(ctx, "u1", types.PaidSubscription{Status: types.SubscriptionStatusCanceled, PlanType: "monthly"}))

	g, err := s.Grants.LoadGrants(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCanceled, g.Subscription.Status)
	s.Nil(g.Subscription.PeriodEnd)
}

func (s *StoreSuite) TestDeleteAndUnsetAdmin() {
	ctx := context.Background()
	end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.Grants.PutTemporaryGrant(ctx, "u1", types.TemporaryGrant{ExpiresAt: end}))
	s.Require().NoError(s.Grants.SetAdmin(ctx, "u1", true))

	s.NoError(s.Grants.DeleteTemporaryGrant(ctx, "u1"))
	s.NoError(s.Grants.SetAdmin(ctx, "u1", false))
	// Both are no-ops the second time.
	s.NoError(s.Grants.DeleteTemporaryGrant(ctx, "u1"))
	s.NoError(s.Grants.SetAdmin(ctx, "u1", false))

	g, err := s.Grants.LoadGrants(ctx, "u1")
	s.NoError(err)
	s.True(g.IsEmpty())
}

func (s *StoreSuite) TestClearAll() {
	ctx := context.Background()
	s.Require().NoError(s.Grants.SetAdmin(ctx, "u1", true))
	s.Require().NoError(s.Grants.ClearAll(ctx))
	g, err := s.Grants.LoadGrants(ctx, "u1")
	s.NoError(err)
	s.True(g.IsEmpty())
}

func (s *StoreSuite) TestPromoLifecycle() {
	if s.Promos == nil {
		s.T().Skip("no promo store")
	}
	ctx := context.Background()
	until := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.Promos.PutPromo(ctx, types.PromoCode{Code: "SPRING", Description: "spring", GrantDays: 3, ValidUntil: &until}))
	s.Require().NoError(s.Promos.PutPromo(ctx, types.PromoCode{Code: "AUTUMN", GrantDays: 5}))

	p, err := s.Promos.GetPromo(ctx, "SPRING")
	s.Require().NoError(err)
	s.Equal("spring", p.Description)
	s.Equal(3, p.GrantDays)
	s.Require().NotNil(p.ValidUntil)
	s.True(until.Equal(*p.ValidUntil))

	codes, err := s.Promos.ListPromos(ctx)
	s.NoError(err)
	sort.Strings(codes)
	s.Equal([]string{"AUTUMN", "SPRING"}, codes)

	s.NoError(s.Promos.DeletePromo(ctx, "SPRING"))
	_, err = s.Promos.GetPromo(ctx, "SPRING")
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *StoreSuite) TestPromoRedeemLimits() {
	if s.Promos == nil {
		s.T().Skip("no promo store")
	}
	ctx := context.Background()
	s.Require().NoError(s.Promos.PutPromo(ctx, types.PromoCode{Code: "TWOUSES", GrantDays: 3, MaxRedemptions: 2}))

	s.NoError(s.Promos.Redeem(ctx, "TWOUSES", "a"))
	s.ErrorIs(s.Promos.Redeem(ctx, "TWOUSES", "a"), types.ErrPrecondition)
	s.NoError(s.Promos.Redeem(ctx, "TWOUSES", "b"))
	s.ErrorIs(s.Promos.Redeem(ctx, "TWOUSES", "c"), types.ErrPrecondition)
	s.ErrorIs(s.Promos.Redeem(ctx, "MISSING", "a"), types.ErrNotFound)

	p, err := s.Promos.GetPromo(ctx, "TWOUSES")
	s.Require().NoError(err)
	s.Equal(2, p.Redemptions)

	// Redefining a code keeps its redemptions.
	s.Require().NoError(s.Promos.PutPromo(ctx, types.PromoCode{Code: "TWOUSES", GrantDays: 7, MaxRedemptions: 3}))
	s.ErrorIs(s.Promos.Redeem(ctx, "TWOUSES", "a"), types.ErrPrecondition)
	s.NoError(s.Promos.Redeem(ctx, "TWOUSES", "c"))
	p, err = s.Promos.GetPromo(ctx, "TWOUSES")
	s.Require().NoError(err)
	s.Equal(3, p.Redemptions)
	s.Equal(7, p.GrantDays)
}

func (s *StoreSuite) TestPromoRedeemConcurrent() {
	if s.Promos == nil {
		s.T().Skip("no promo store")
	}
	ctx := context.Background()
	s.Require().NoError(s.Promos.PutPromo(ctx, types.PromoCode{Code: "SCARCE", GrantDays: 1, MaxRedemptions: 5}))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Promos.Redeem(ctx, "SCARCE", string(rune('a'+i))); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	s.Equal(5, ok)
}

func (s *StoreSuite) TestPutPromoValidates() {
	if s.Promos == nil {
		s.T().Skip("no promo store")
	}
	err := s.Promos.PutPromo(context.Background(), types.PromoCode{Code: "x", GrantDays: 1})
	s.ErrorIs(err, types.ErrInvalidPromo)
}
