package types

import "time"

// EntitlementSnapshot is the normalized, cacheable access decision for one user.
// HasAccess == IsAdmin || HasTempAccess || HasTrialAccess || (active paid subscription).
type EntitlementSnapshot struct {
	HasAccess        bool       `json:"has_access"`
	IsAdmin          bool       `json:"is_admin"`
	HasTempAccess    bool       `json:"has_temp_access"`
	HasTrialAccess   bool       `json:"has_trial_access"`
	SubscriptionTier *string    `json:"subscription_tier"`
	SubscriptionEnd  *time.Time `json:"subscription_end"`
	TrialEnd         *time.Time `json:"trial_end"`
}
