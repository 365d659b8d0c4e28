package ports

import (
	"context"
	"entitled/internal/types"
)

// GrantLoader answers "which grants does this user hold right now".
// An unknown user MUST yield an empty RawGrantData and a nil error; an error
// means the source could not be read.
type GrantLoader interface {
	LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error)
}

// GrantStore persists the four grant kinds per user.
// Callers that mutate grants MUST invalidate the user's cached entitlement afterwards.
type GrantStore interface {
	GrantLoader

	// PutSubscription replaces the user's paid subscription row.
	PutSubscription(ctx context.Context, userID string, sub types.PaidSubscription) error

	PutTrial(ctx context.Context, userID string, trial types.TrialGrant) error

	PutTemporaryGrant(ctx context.Context, userID string, grant types.TemporaryGrant) error

	// DeleteTemporaryGrant is a no-op when the user has none.
	DeleteTemporaryGrant(ctx context.Context, userID string) error

	SetAdmin(ctx context.Context, userID string, admin bool) error

	// ClearAll purges all grants. Used in tests only.
	ClearAll(ctx context.Context) error
}
