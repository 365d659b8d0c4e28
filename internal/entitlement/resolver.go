package entitlement

import (
	"context"
	"entitled/internal/cache"
	"entitled/internal/metrics"
	"entitled/internal/ports"
	"entitled/internal/types"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const KeyPrefix = "entitlement:"

// Key is the cache key holding the snapshot of userID.
func Key(userID string) string {
	return KeyPrefix + userID
}

// FetchFunc reads the raw grants of the user being resolved. It is the only
// blocking step of a resolution.
type FetchFunc func(ctx context.Context) (types.RawGrantData, error)

// Options configures a Resolver.
// TTL bounds snapshot staleness between explicit invalidations (default 60s).
// Loader backs ResolveUser; Now defaults to time.Now.
// FetchTimeout bounds a shared fetch, which outlives the caller that started it
// (default 10s).
type Options struct {
	TTL          time.Duration
	Loader       ports.GrantLoader
	Now          func() time.Time
	FetchTimeout time.Duration
}

const DefaultFetchTimeout = 10 * time.Second

// Resolver serves entitlement snapshots through a TTL cache, fetching raw
// grants at most once per miss per user.
type Resolver struct {
	cache        *cache.TTL[string, types.EntitlementSnapshot]
	ttl          time.Duration
	fetchTimeout time.Duration
	loader       ports.GrantLoader
	now          func() time.Time
	sf           singleflight.Group

	// mu orders Invalidate against the write-back of a fetch: a fetch that
	// started before an invalidation must not repopulate the cache.
	mu  sync.Mutex
	gen uint64
}

func NewResolver(c *cache.TTL[string, types.EntitlementSnapshot], opts Options) *Resolver {
	r := &Resolver{
		cache:        c,
		ttl:          opts.TTL,
		fetchTimeout: opts.FetchTimeout,
		loader:       opts.Loader,
		now:          opts.Now,
	}
	if r.ttl <= 0 {
		r.ttl = types.DefaultEntitlementTTL
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = DefaultFetchTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns the snapshot for userID, from cache when possible, otherwise
// by calling fetch. A fetch error is returned wrapped in types.ErrFetchFailure and
// nothing is cached; callers must not read it as "no access".
func (r *Resolver) Resolve(ctx context.Context, userID string, fetch FetchFunc) (types.EntitlementSnapshot, error) {
	if userID == "" {
		return types.EntitlementSnapshot{}, fmt.Errorf("%w: empty user id", types.ErrPrecondition)
	}
	key := Key(userID)
	if snap, ok := r.cache.Get(key); ok {
		metrics.Resolutions.WithLabelValues(metrics.ResultHit).Inc()
		return snap, nil
	}

	// The fetch is shared by every caller missing on key, so it must not die with
	// the first caller's context. Each caller still stops waiting on its own ctx.
	ch := r.sf.DoChan(key, func() (any, error) {
		r.mu.Lock()
		startGen := r.gen
		r.mu.Unlock()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		raw, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		snap := Normalize(raw, r.now())

		r.mu.Lock()
		if r.gen == startGen {
			r.cache.Set(key, snap, r.ttl)
		}
		r.mu.Unlock()
		return snap, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		metrics.Resolutions.WithLabelValues(metrics.ResultFailed).Inc()
		log.WithError(res.Err).WithField("userID", userID).Warn("entitlement resolution failed")
		return types.EntitlementSnapshot{}, types.Err(types.ErrFetchFailure, res.Err, "resolve entitlement for user %s", userID)
	}
	metrics.Resolutions.WithLabelValues(metrics.ResultFetched).Inc()
	if res.Shared {
		log.WithField("userID", userID).Debug("entitlement fetch shared with concurrent caller")
	}
	return res.Val.(types.EntitlementSnapshot), nil
}

// ResolveUser resolves userID against the configured GrantLoader.
func (r *Resolver) ResolveUser(ctx context.Context, userID string) (types.EntitlementSnapshot, error) {
	if r.loader == nil {
		return types.EntitlementSnapshot{}, fmt.Errorf("%w: resolver has no grant loader", types.ErrInvalidBackend)
	}
	return r.Resolve(ctx, userID, func(ctx context.Context) (types.RawGrantData, error) {
		return r.loader.LoadGrants(ctx, userID)
	})
}

// Invalidate drops the cached snapshot of userID so the next read fetches again.
// Every action that changes a user's grants must call it once the change is stored.
func (r *Resolver) Invalidate(userID string) {
	key := Key(userID)
	r.mu.Lock()
	r.gen++
	r.cache.Remove(key)
	r.mu.Unlock()
	// Later callers must not join a fetch that may have read the old grants.
	r.sf.Forget(key)
}
