package types

import (
	"fmt"
	"strings"
	"time"
)

const PromoCodeMinLength = 4

// PromoCode grants GrantDays of temporary access when redeemed.
// MaxRedemptions of 0 means unlimited; each user may redeem a given code once.
// Redemptions is maintained by the store; do not set in callers.
type PromoCode struct {
	Code           string     `json:"code" yaml:"code" dynamodbav:"code"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty" dynamodbav:"description"`
	GrantDays      int        `json:"grant_days" yaml:"grant_days" dynamodbav:"grant_days"`
	MaxRedemptions int        `json:"max_redemptions" yaml:"max_redemptions" dynamodbav:"max_redemptions"`
	ValidUntil     *time.Time `json:"valid_until,omitempty" yaml:"valid_until,omitempty" dynamodbav:"valid_until,omitempty"`
	Disabled       bool       `json:"disabled" yaml:"disabled" dynamodbav:"disabled"`
	Redemptions    int        `json:"redemptions" yaml:"-" dynamodbav:"redemptions"`
}

// NormalizePromoCode upper-cases and trims a user-entered code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (p PromoCode) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(p.Code) < PromoCodeMinLength {
		return fmt.Errorf("code must be at least %d characters", PromoCodeMinLength)
	}
	if p.Code != NormalizePromoCode(p.Code) {
		return fmt.Errorf("code must be upper-case without surrounding spaces")
	}
	if p.GrantDays <= 0 {
		return fmt.Errorf("grant_days must be positive")
	}
	if p.MaxRedemptions < 0 {
		return fmt.Errorf("max_redemptions must be non-negative. 0 for no limit")
	}
	return nil
}

// Redeemable reports whether the code may still be redeemed at now, ignoring
// per-user and redemption-count limits which the store enforces atomically.
func (p PromoCode) Redeemable(now time.Time) bool {
	if p.Disabled {
		return false
	}
	if p.ValidUntil != nil && !now.Before(*p.ValidUntil) {
		return false
	}
	return true
}
