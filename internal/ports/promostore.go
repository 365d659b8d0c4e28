package ports

import (
	"context"
	"entitled/internal/types"
)

// PromoStore holds promo code definitions and their redemptions.
type PromoStore interface {
	// GetPromo MUST return types.ErrNotFound if the code does not exist.
	GetPromo(ctx context.Context, code string) (types.PromoCode, error)

	ListPromos(ctx context.Context) ([]string, error)

	// PutPromo creates or replaces a definition; the redemption count is preserved.
	PutPromo(ctx context.Context, promo types.PromoCode) error

	DeletePromo(ctx context.Context, code string) error

	// Redeem atomically records that userID redeemed code.
	// MUST return types.ErrNotFound for an unknown code and types.ErrPrecondition
	// if the code is exhausted or the user already redeemed it.
	Redeem(ctx context.Context, code, userID string) error

	// ClearAll purges all promo codes. Used in tests only.
	ClearAll(ctx context.Context) error
}
