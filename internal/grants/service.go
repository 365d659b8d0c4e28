// Package grants performs every mutation of a user's grants. Each successful write
// drops the user's cached entitlement and publishes a GrantEvent.
package grants

import (
	"context"
	"entitled/internal/metrics"
	"entitled/internal/ports"
	"entitled/internal/types"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	GrantedByPromo = "promo"
	reasonPromo    = "promo:"
)

// Invalidator drops any cached entitlement of a user.
type Invalidator interface {
	Invalidate(userID string)
}

type Options struct {
	Grants    ports.GrantStore
	Promos    ports.PromoStore
	Cache     Invalidator
	Publisher ports.Publisher
	// TopicArn receives GrantEvents. Events are not published when empty.
	TopicArn      string
	TrialDuration time.Duration
	Checkout      types.CheckoutMapping
	Now           func() time.Time
}

type Service struct {
	grants    ports.GrantStore
	promos    ports.PromoStore
	cache     Invalidator
	publisher ports.Publisher
	topicArn  string
	trial     time.Duration
	checkout  types.CheckoutMapping
	now       func() time.Time

	// locks orders temporary grant writes of one user. Writers in other
	// processes are not covered: across instances the last write wins.
	locks userLocks
}

func NewService(opts Options) *Service {
	s := &Service{
		grants:    opts.Grants,
		promos:    opts.Promos,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		topicArn:  opts.TopicArn,
		trial:     opts.TrialDuration,
		checkout:  opts.Checkout,
		now:       opts.Now,
	}
	if s.trial <= 0 {
		s.trial = types.DefaultTrialDays * 24 * time.Hour
	}
	if s.checkout == (types.CheckoutMapping{}) {
		s.checkout = types.DefaultCheckoutMapping()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) GrantTemporaryAccess(ctx context.Context, userID string, d time.Duration, reason, grantedBy string) (types.TemporaryGrant, error) {
	if userID == "" {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidRequest, nil, "user id is required")
	}
	if d <= 0 {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidRequest, nil, "duration must be positive, got %s", d)
	}
	g := types.TemporaryGrant{
		ExpiresAt: s.now().UTC().Add(d),
		Reason:    reason,
		GrantedBy: grantedBy,
	}
	unlock := s.locks.lock(userID)
	err := s.grants.PutTemporaryGrant(ctx, userID, g)
	unlock()
	if err != nil {
		return types.TemporaryGrant{}, types.Err(types.ErrDataStoreAccess, err, "grant temporary access to %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindTemporary)
	return g, nil
}

func (s *Service) RevokeTemporaryAccess(ctx context.Context, userID string) error {
	if userID == "" {
		return types.Err(types.ErrInvalidRequest, nil, "user id is required")
	}
	unlock := s.locks.lock(userID)
	err := s.grants.DeleteTemporaryGrant(ctx, userID)
	unlock()
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "revoke temporary access of %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindTemporaryRevoke)
	return nil
}

// StartTrial gives a user their one trial. Users who already had a trial, or who
// hold an active paid subscription, get ErrPrecondition.
func (s *Service) StartTrial(ctx context.Context, userID string) (types.TrialGrant, error) {
	if userID == "" {
		return types.TrialGrant{}, types.Err(types.ErrInvalidRequest, nil, "user id is required")
	}
	raw, err := s.grants.LoadGrants(ctx, userID)
	if err != nil {
		return types.TrialGrant{}, types.Err(types.ErrDataStoreAccess, err, "load grants of %s", userID)
	}
	if raw.Trial != nil {
		return types.TrialGrant{}, types.Err(types.ErrPrecondition, nil, "trial already used")
	}
	if raw.Subscription != nil && raw.Subscription.Status == types.SubscriptionStatusActive {
		return types.TrialGrant{}, types.Err(types.ErrPrecondition, nil, "subscription already active")
	}
	t := types.TrialGrant{TrialEnd: s.now().UTC().Add(s.trial)}
	if err := s.grants.PutTrial(ctx, userID, t); err != nil {
		return types.TrialGrant{}, types.Err(types.ErrDataStoreAccess, err, "start trial of %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindTrial)
	return t, nil
}

// RedeemPromo consumes one redemption of code and turns it into temporary access.
// An unexpired temporary grant is extended from its current expiry. Temporary
// grant writes of the same user in this process wait for the redemption.
func (s *Service) RedeemPromo(ctx context.Context, userID, code string) (types.TemporaryGrant, error) {
	if userID == "" {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidRequest, nil, "user id is required")
	}
	if s.promos == nil {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidBackend, nil, "no promo store")
	}
	code = types.NormalizePromoCode(code)
	if code == "" {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidPromo, nil, "code is required")
	}
	promo, err := s.promos.GetPromo(ctx, code)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.TemporaryGrant{}, err
		}
		return types.TemporaryGrant{}, types.Err(types.ErrDataStoreAccess, err, "get promo %s", code)
	}
	now := s.now().UTC()
	if !promo.Redeemable(now) {
		return types.TemporaryGrant{}, types.Err(types.ErrInvalidPromo, nil, "promo %s is disabled or expired", code)
	}

	unlock := s.locks.lock(userID)
	defer unlock()
	// Load first: a failed read must not cost the user their redemption.
	raw, err := s.grants.LoadGrants(ctx, userID)
	if err != nil {
		return types.TemporaryGrant{}, types.Err(types.ErrDataStoreAccess, err, "load grants of %s", userID)
	}
	if err := s.promos.Redeem(ctx, code, userID); err != nil {
		return types.TemporaryGrant{}, err
	}

	from := now
	if raw.Temporary != nil && raw.Temporary.ExpiresAt.After(now) {
		from = raw.Temporary.ExpiresAt
	}
	g := types.TemporaryGrant{
		ExpiresAt: from.AddDate(0, 0, promo.GrantDays),
		Reason:    reasonPromo + code,
		GrantedBy: GrantedByPromo,
	}
	if err := s.grants.PutTemporaryGrant(ctx, userID, g); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"userID":    userID,
			"code":      code,
			"expiresAt": g.ExpiresAt,
		}).Error("orphaned promo redemption: code consumed but grant was not stored")
		return types.TemporaryGrant{}, types.Err(types.ErrDataStoreAccess, err, "grant promo access to %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindPromo)
	return g, nil
}

func (s *Service) SetAdmin(ctx context.Context, userID string, admin bool) error {
	if userID == "" {
		return types.Err(types.ErrInvalidRequest, nil, "user id is required")
	}
	if err := s.grants.SetAdmin(ctx, userID, admin); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "set admin of %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindAdmin)
	return nil
}

// CompleteCheckout upserts the subscription described by a payment provider event.
func (s *Service) CompleteCheckout(ctx context.Context, payload map[string]any) (string, types.PaidSubscription, error) {
	userID, sub, err := ParseCheckout(s.checkout, payload)
	if err != nil {
		return "", types.PaidSubscription{}, err
	}
	if err := s.grants.PutSubscription(ctx, userID, sub); err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrDataStoreAccess, err, "store subscription of %s", userID)
	}
	s.changed(ctx, userID, types.GrantKindCheckout)
	return userID, sub, nil
}

// changed runs after a committed write. Publish failures are only logged.
func (s *Service) changed(ctx context.Context, userID string, kind types.GrantKind) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
	metrics.GrantEvents.WithLabelValues(string(kind)).Inc()

	if s.publisher == nil || s.topicArn == "" {
		return
	}
	ev := types.GrantEvent{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   kind,
		At:     s.now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("failed to encode grant event")
		return
	}
	if err := s.publisher.PublishRaw(ctx, s.topicArn, payload); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"userID":  userID,
			"kind":    kind,
			"eventID": ev.ID,
		}).Error("failed to publish grant event")
	}
}
