package redis

import (
	"context"
	"entitled/internal/types"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	promoKeyNameTemplate     = "_entitled_promo_%s"
	redeemersKeyNameTemplate = "_entitled_promousers_%s"
)

// redeemScript records a redemption only if the code exists, the user has not
// redeemed it yet and the redemption cap (ARGV[2], 0 = none) is not reached.
var redeemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then return -2 end
local max = tonumber(ARGV[2])
if max > 0 and redis.call('SCARD', KEYS[2]) >= max then return -3 end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

type PromoStore struct {
	cli *redis.Client
}

func NewPromoStore(cli *redis.Client) *PromoStore {
	return &PromoStore{cli: cli}
}

func (s *PromoStore) GetPromo(ctx context.Context, code string) (types.PromoCode, error) {
	out := s.cli.Get(ctx, getPromoKey(code))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return types.PromoCode{}, types.ErrNotFound
		}
		return types.PromoCode{}, out.Err()
	}
	var p types.PromoCode
	if err := json.Unmarshal([]byte(out.Val()), &p); err != nil {
		return types.PromoCode{}, err
	}
	n, err := s.cli.SCard(ctx, getRedeemersKey(code)).Result()
	if err != nil {
		return types.PromoCode{}, err
	}
	p.Redemptions = int(n)
	return p, nil
}

func (s *PromoStore) ListPromos(ctx context.Context) ([]string, error) {
	out := s.cli.Keys(ctx, getPromoKey("*"))
	if out.Err() != nil {
		return nil, out.Err()
	}
	keys := out.Val()
	codes := make([]string, 0, len(keys))
	prefixLen := len(getPromoKey(""))
	for _, k := range keys {
		if len(k) > prefixLen {
			codes = append(codes, k[prefixLen:])
		}
	}
	return codes, nil
}

func (s *PromoStore) PutPromo(ctx context.Context, promo types.PromoCode) error {
	if err := promo.Validate(); err != nil {
		return types.Err(types.ErrInvalidPromo, err, "")
	}
	promo.Redemptions = 0
	out, err := json.Marshal(promo)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, getPromoKey(promo.Code), string(out), 0).Err()
}

func (s *PromoStore) DeletePromo(ctx context.Context, code string) error {
	return s.cli.Del(ctx, getPromoKey(code), getRedeemersKey(code)).Err()
}

func (s *PromoStore) Redeem(ctx context.Context, code, userID string) error {
	p, err := s.GetPromo(ctx, code)
	if err != nil {
		return err
	}
	res, err := redeemScript.Run(ctx, s.cli,
		[]string{getPromoKey(code), getRedeemersKey(code)},
		userID, p.MaxRedemptions,
	).Int()
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "redeem %s", code)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return types.ErrNotFound
	default:
		return types.ErrPrecondition
	}
}

func (s *PromoStore) ClearAll(ctx context.Context) error {
	for _, pattern := range []string{getPromoKey("*"), getRedeemersKey("*")} {
		out := s.cli.Keys(ctx, pattern)
		if out.Err() != nil {
			return out.Err()
		}
		if len(out.Val()) == 0 {
			continue
		}
		if err := s.cli.Del(ctx, out.Val()...).Err(); err != nil {
			log.WithError(err).Error("failed to clear promo keys")
			return err
		}
	}
	return nil
}

func getPromoKey(code string) string {
	return fmt.Sprintf(promoKeyNameTemplate, code)
}

func getRedeemersKey(code string) string {
	return fmt.Sprintf(redeemersKeyNameTemplate, code)
}
