package entitlement

import (
	"entitled/internal/types"
	"time"
)

// Normalize folds the raw grants of one user into a single access decision.
// Access is the OR of an active paid subscription, the admin flag, an unexpired
// temporary grant and an unexpired trial. For display, the paid plan wins over a
// temporary grant.
func Normalize(raw types.RawGrantData, now time.Time) types.EntitlementSnapshot {
	sub := raw.Subscription
	paidActive := sub != nil && sub.Status == types.SubscriptionStatusActive
	trialActive := raw.Trial != nil && raw.Trial.TrialEnd.After(now)
	tempActive := raw.Temporary != nil && raw.Temporary.ExpiresAt.After(now)
	isAdmin := raw.Admin != nil

	snap := types.EntitlementSnapshot{
		HasAccess:      paidActive || isAdmin || tempActive || trialActive,
		IsAdmin:        isAdmin,
		HasTempAccess:  tempActive,
		HasTrialAccess: trialActive,
	}

	switch {
	case paidActive:
		tier := sub.PlanType
		snap.SubscriptionTier = &tier
		snap.SubscriptionEnd = copyTime(sub.PeriodEnd)
	case tempActive:
		snap.SubscriptionEnd = copyTime(&raw.Temporary.ExpiresAt)
	}
	if raw.Trial != nil {
		snap.TrialEnd = copyTime(&raw.Trial.TrialEnd)
	}
	return snap
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
