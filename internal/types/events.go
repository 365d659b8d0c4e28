package types

import "time"

type GrantKind string

const (
	GrantKindTemporary       GrantKind = "temporary_granted"
	GrantKindTemporaryRevoke GrantKind = "temporary_revoked"
	GrantKindTrial           GrantKind = "trial_started"
	GrantKindPromo           GrantKind = "promo_redeemed"
	GrantKindCheckout        GrantKind = "checkout_completed"
	GrantKindAdmin           GrantKind = "admin_changed"
)

// GrantEvent is published after any grant mutation so that every process holding
// an entitlement cache can drop its entry for UserID.
type GrantEvent struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Kind   GrantKind `json:"kind"`
	At     time.Time `json:"at"`
}
