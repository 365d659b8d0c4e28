// Package memory holds process-local grant and promo stores for development and tests.
package memory

import (
	"context"
	"entitled/internal/types"
	"sync"
)

type GrantStore struct {
	mu     sync.RWMutex
	grants map[string]types.RawGrantData
}

func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[string]types.RawGrantData)}
}

func (s *GrantStore) LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGrants(s.grants[userID]), nil
}

func (s *GrantStore) PutSubscription(ctx context.Context, userID string, sub types.PaidSubscription) error {
	return s.update(userID, func(g *types.RawGrantData) {
		g.Subscription = &sub
	})
}

func (s *GrantStore) PutTrial(ctx context.Context, userID string, trial types.TrialGrant) error {
	return s.update(userID, func(g *types.RawGrantData) {
		g.Trial = &trial
	})
}

func (s *GrantStore) PutTemporaryGrant(ctx context.Context, userID string, grant types.TemporaryGrant) error {
	return s.update(userID, func(g *types.RawGrantData) {
		g.Temporary = &grant
	})
}

func (s *GrantStore) DeleteTemporaryGrant(ctx context.Context, userID string) error {
	return s.update(userID, func(g *types.RawGrantData) {
		g.Temporary = nil
	})
}

func (s *GrantStore) SetAdmin(ctx context.Context, userID string, admin bool) error {
	return s.update(userID, func(g *types.RawGrantData) {
		if admin {
			g.Admin = &types.AdminFlag{}
		} else {
			g.Admin = nil
		}
	})
}

func (s *GrantStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.grants = make(map[string]types.RawGrantData)
	s.mu.Unlock()
	return nil
}

func (s *GrantStore) update(userID string, fn func(g *types.RawGrantData)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := cloneGrants(s.grants[userID])
	fn(&g)
	if g.IsEmpty() {
		delete(s.grants, userID)
		return nil
	}
	s.grants[userID] = g
	return nil
}

func cloneGrants(g types.RawGrantData) types.RawGrantData {
	var out types.RawGrantData
	if g.Subscription != nil {
		sub := *g.Subscription
		if sub.PeriodEnd != nil {
			end := *sub.PeriodEnd
			sub.PeriodEnd = &end
		}
		out.Subscription = &sub
	}
	if g.Trial != nil {
		t := *g.Trial
		out.Trial = &t
	}
	if g.Temporary != nil {
		t := *g.Temporary
		out.Temporary = &t
	}
	if g.Admin != nil {
		out.Admin = &types.AdminFlag{}
	}
	return out
}
