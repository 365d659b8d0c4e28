package memory

import (
	"context"
	"entitled/internal/types"
	"sort"
	"sync"
)

type PromoStore struct {
	mu        sync.Mutex
	promos    map[string]types.PromoCode
	redeemers map[string]map[string]struct{}
}

func NewPromoStore() *PromoStore {
	return &PromoStore{
		promos:    make(map[string]types.PromoCode),
		redeemers: make(map[string]map[string]struct{}),
	}
}

func (s *PromoStore) GetPromo(ctx context.Context, code string) (types.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promos[code]
	if !ok {
		return types.PromoCode{}, types.ErrNotFound
	}
	p.Redemptions = len(s.redeemers[code])
	return p, nil
}

func (s *PromoStore) ListPromos(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.promos))
	for code := range s.promos {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *PromoStore) PutPromo(ctx context.Context, promo types.PromoCode) error {
	if err := promo.Validate(); err != nil {
		return types.Err(types.ErrInvalidPromo, err, "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	promo.Redemptions = 0
	s.promos[promo.Code] = promo
	return nil
}

func (s *PromoStore) DeletePromo(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.promos, code)
	delete(s.redeemers, code)
	return nil
}

func (s *PromoStore) Redeem(ctx context.Context, code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promos[code]
	if !ok {
		return types.ErrNotFound
	}
	users := s.redeemers[code]
	if users == nil {
		users = make(map[string]struct{})
		s.redeemers[code] = users
	}
	if _, done := users[userID]; done {
		return types.ErrPrecondition
	}
	if p.MaxRedemptions > 0 && len(users) >= p.MaxRedemptions {
		return types.ErrPrecondition
	}
	users[userID] = struct{}{}
	return nil
}

func (s *PromoStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos = make(map[string]types.PromoCode)
	s.redeemers = make(map[string]map[string]struct{})
	return nil
}
