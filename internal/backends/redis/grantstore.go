package redis

import (
	"context"
	"entitled/internal/types"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	grantsKeyNameTemplate = "_entitled_grants_%s"

	fieldSubscription = "sub"
	fieldTrial        = "trial"
	fieldTemporary    = "temp"
	fieldAdmin        = "admin"
)

// GrantStore implements ports.GrantStore with one hash per user; each grant kind
// is a JSON-encoded field.
type GrantStore struct {
	cli *redis.Client
}

func NewGrantStore(cli *redis.Client) *GrantStore {
	return &GrantStore{cli: cli}
}

func (s *GrantStore) LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error) {
	out := s.cli.HGetAll(ctx, getGrantsKey(userID))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return types.RawGrantData{}, nil
		}
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, out.Err(), "load grants for %s", userID)
	}
	m := out.Val()
	var g types.RawGrantData
	if v, ok := m[fieldSubscription]; ok {
		g.Subscription = &types.PaidSubscription{}
		if err := json.Unmarshal([]byte(v), g.Subscription); err != nil {
			return types.RawGrantData{}, fmt.Errorf("invalid %s: %w", fieldSubscription, err)
		}
	}
	if v, ok := m[fieldTrial]; ok {
		g.Trial = &types.TrialGrant{}
		if err := json.Unmarshal([]byte(v), g.Trial); err != nil {
			return types.RawGrantData{}, fmt.Errorf("invalid %s: %w", fieldTrial, err)
		}
	}
	if v, ok := m[fieldTemporary]; ok {
		g.Temporary = &types.TemporaryGrant{}
		if err := json.Unmarshal([]byte(v), g.Temporary); err != nil {
			return types.RawGrantData{}, fmt.Errorf("invalid %s: %w", fieldTemporary, err)
		}
	}
	if _, ok := m[fieldAdmin]; ok {
		g.Admin = &types.AdminFlag{}
	}
	return g, nil
}

func (s *GrantStore) PutSubscription(ctx context.Context, userID string, sub types.PaidSubscription) error {
	return s.putField(ctx, userID, fieldSubscription, sub)
}

func (s *GrantStore) PutTrial(ctx context.Context, userID string, trial types.TrialGrant) error {
	return s.putField(ctx, userID, fieldTrial, trial)
}

func (s *GrantStore) PutTemporaryGrant(ctx context.Context, userID string, grant types.TemporaryGrant) error {
	return s.putField(ctx, userID, fieldTemporary, grant)
}

func (s *GrantStore) DeleteTemporaryGrant(ctx context.Context, userID string) error {
	return s.cli.HDel(ctx, getGrantsKey(userID), fieldTemporary).Err()
}

func (s *GrantStore) SetAdmin(ctx context.Context, userID string, admin bool) error {
	if !admin {
		return s.cli.HDel(ctx, getGrantsKey(userID), fieldAdmin).Err()
	}
	return s.cli.HSet(ctx, getGrantsKey(userID), fieldAdmin, "1").Err()
}

func (s *GrantStore) ClearAll(ctx context.Context) error {
	out := s.cli.Keys(ctx, getGrantsKey("*"))
	if out.Err() != nil {
		return out.Err()
	}
	keys := out.Val()
	if len(keys) == 0 {
		return nil
	}
	return s.cli.Del(ctx, keys...).Err()
}

func (s *GrantStore) putField(ctx context.Context, userID, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.cli.HSet(ctx, getGrantsKey(userID), field, string(b)).Err()
}

func getGrantsKey(userID string) string {
	return fmt.Sprintf(grantsKeyNameTemplate, userID)
}
