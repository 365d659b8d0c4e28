package types

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
)

// RawGrantData is everything the grant source knows about one user. Each of the
// four grant kinds is independently present (non-nil) or absent.
type RawGrantData struct {
	Subscription *PaidSubscription `json:"subscription,omitempty" yaml:"subscription,omitempty"`
	Trial        *TrialGrant       `json:"trial,omitempty" yaml:"trial,omitempty"`
	Temporary    *TemporaryGrant   `json:"temporary,omitempty" yaml:"temporary,omitempty"`
	Admin        *AdminFlag        `json:"admin,omitempty" yaml:"admin,omitempty"`
}

// PaidSubscription is the authoritative paid subscription row for a user. Only
// Status == SubscriptionStatusActive grants access; any other status is ignored.
type PaidSubscription struct {
	Status    string     `json:"status" yaml:"status" dynamodbav:"status"`
	PlanType  string     `json:"plan_type" yaml:"plan_type" dynamodbav:"plan_type"`
	PeriodEnd *time.Time `json:"period_end,omitempty" yaml:"period_end,omitempty" dynamodbav:"period_end,omitempty"`
	// SourcePayload is the compressed provider event that produced this row, if any.
	SourcePayload string `json:"source_payload,omitempty" yaml:"-" dynamodbav:"source_payload,omitempty"`
}

type TrialGrant struct {
	TrialEnd time.Time `json:"trial_end" yaml:"trial_end" dynamodbav:"trial_end"`
}

// TemporaryGrant is access handed out by an admin or a redeemed promo code.
type TemporaryGrant struct {
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at" dynamodbav:"expires_at"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty" dynamodbav:"reason,omitempty"`
	GrantedBy string    `json:"granted_by,omitempty" yaml:"granted_by,omitempty" dynamodbav:"granted_by,omitempty"`
}

type AdminFlag struct{}

// IsEmpty reports whether no grant of any kind is present.
func (r RawGrantData) IsEmpty() bool {
	return r.Subscription == nil && r.Trial == nil && r.Temporary == nil && r.Admin == nil
}
