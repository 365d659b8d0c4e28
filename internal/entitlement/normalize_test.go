package entitlement

import (
	"entitled/internal/types"
	"fmt"
	"time"
)

func (s *UnitTestSuite) TestNormalizeEmpty() {
	snap := Normalize(types.RawGrantData{}, s.clock.Now())
	s.Equal(types.EntitlementSnapshot{}, snap)
	s.False(snap.HasAccess)
	s.Nil(snap.SubscriptionTier)
	s.Nil(snap.SubscriptionEnd)
	s.Nil(snap.TrialEnd)
}

func (s *UnitTestSuite) TestNormalizeAccessIsOrOfGrants() {
	now := s.clock.Now()
	for mask := 0; mask < 16; mask++ {
		paid, admin, temp, trial := mask&1 != 0, mask&2 != 0, mask&4 != 0, mask&8 != 0

		raw := types.RawGrantData{}
		if paid {
			raw.Subscription = &types.PaidSubscription{Status: types.SubscriptionStatusActive, PlanType: "monthly"}
		} else {
			raw.Subscription = &types.PaidSubscription{Status: types.SubscriptionStatusCanceled, PlanType: "monthly"}
		}
		if admin {
			raw.Admin = &types.AdminFlag{}
		}
		if temp {
			raw.Temporary = &types.TemporaryGrant{ExpiresAt: now.Add(time.Hour)}
		} else {
			raw.Temporary = &types.TemporaryGrant{ExpiresAt: now.Add(-time.Hour)}
		}
		if trial {
			raw.Trial = &types.TrialGrant{TrialEnd: now.Add(24 * time.Hour)}
		} else {
			raw.Trial = &types.TrialGrant{TrialEnd: now.Add(-24 * time.Hour)}
		}

		snap := Normalize(raw, now)
		msg := fmt.Sprintf("paid=%v admin=%v temp=%v trial=%v", paid, admin, temp, trial)
		s.Equal(paid || admin || temp || trial, snap.HasAccess, msg)
		s.Equal(admin, snap.IsAdmin, msg)
		s.Equal(temp, snap.HasTempAccess, msg)
		s.Equal(trial, snap.HasTrialAccess, msg)
		s.Equal(snap.HasAccess, snap.IsAdmin || snap.HasTempAccess || snap.HasTrialAccess || paid, msg)
	}
}

func (s *UnitTestSuite) TestNormalizeInactiveSubscriptionIgnored() {
	end := s.clock.Now().Add(30 * 24 * time.Hour)
	snap := Normalize(types.RawGrantData{
		Subscription: &types.PaidSubscription{Status: "canceled", PlanType: "annual", PeriodEnd: &end},
	}, s.clock.Now())
	s.False(snap.HasAccess)
	s.Nil(snap.SubscriptionTier)
	s.Nil(snap.SubscriptionEnd)
}

func (s *UnitTestSuite) TestNormalizePaidTierWinsOverTemp() {
	now := s.clock.Now()
	periodEnd := now.Add(365 * 24 * time.Hour)
	snap := Normalize(types.RawGrantData{
		Subscription: &types.PaidSubscription{Status: types.SubscriptionStatusActive, PlanType: "annual", PeriodEnd: &periodEnd},
		Temporary:    &types.TemporaryGrant{ExpiresAt: now.Add(48 * time.Hour)},
	}, now)
	s.True(snap.HasAccess)
	s.True(snap.HasTempAccess)
	s.Require().NotNil(snap.SubscriptionTier)
	s.Equal("annual", *snap.SubscriptionTier)
	s.Equal(periodEnd, *snap.SubscriptionEnd)
}

func (s *UnitTestSuite) TestNormalizeTempProvidesEnd() {
	now := s.clock.Now()
	exp := now.Add(48 * time.Hour)
	snap := Normalize(types.RawGrantData{
		Temporary: &types.TemporaryGrant{ExpiresAt: exp},
	}, now)
	s.True(snap.HasAccess)
	s.Nil(snap.SubscriptionTier)
	s.Equal(exp, *snap.SubscriptionEnd)
}

func (s *UnitTestSuite) TestNormalizeExpiredTrialStillShowsEnd() {
	now := s.clock.Now()
	ended := now.Add(-time.Minute)
	snap := Normalize(types.RawGrantData{Trial: &types.TrialGrant{TrialEnd: ended}}, now)
	s.False(snap.HasAccess)
	s.False(snap.HasTrialAccess)
	s.Equal(ended, *snap.TrialEnd)
}

func (s *UnitTestSuite) TestNormalizeDoesNotAliasInput() {
	now := s.clock.Now()
	end := now.Add(time.Hour)
	raw := types.RawGrantData{Subscription: &types.PaidSubscription{Status: "active", PlanType: "monthly", PeriodEnd: &end}}
	snap := Normalize(raw, now)
	end = end.Add(time.Hour)
	raw.Subscription.PlanType = "annual"
	s.Equal(now.Add(time.Hour), *snap.SubscriptionEnd)
	s.Equal("monthly", *snap.SubscriptionTier)
}
