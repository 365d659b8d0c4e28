package entitlement

import (
	"context"
	"entitled/internal/types"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type stubLoader struct {
	raw types.RawGrantData
	err error
}

func (l *stubLoader) LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error) {
	return l.raw, l.err
}

func (s *UnitTestSuite) TestKey() {
	s.Equal("entitlement:U", Key("U"))
}

func (s *UnitTestSuite) TestResolveCachesWithinTTL() {
	ctx := context.Background()
	now := s.clock.Now()
	trialEnd := now.Add(72 * time.Hour)

	first := func(ctx context.Context) (types.RawGrantData, error) {
		return types.RawGrantData{Trial: &types.TrialGrant{TrialEnd: trialEnd}}, nil
	}
	second := func(ctx context.Context) (types.RawGrantData, error) {
		return types.RawGrantData{Admin: &types.AdminFlag{}}, nil
	}

	snap, err := s.resolver.Resolve(ctx, "U", first)
	s.Require().NoError(err)
	s.Equal(types.EntitlementSnapshot{
		HasAccess:      true,
		HasTrialAccess: true,
		TrialEnd:       ptr(trialEnd),
	}, snap)

	s.clock.Advance(30 * time.Second)
	cached, err := s.resolver.Resolve(ctx, "U", second)
	s.Require().NoError(err)
	s.Equal(snap, cached)

	s.clock.Advance(31 * time.Second)
	fresh, err := s.resolver.Resolve(ctx, "U", second)
	s.Require().NoError(err)
	s.True(fresh.IsAdmin)
	s.True(fresh.HasAccess)
	s.False(fresh.HasTrialAccess)
	s.Nil(fresh.TrialEnd)
}

func (s *UnitTestSuite) TestInvalidateForcesRefetch() {
	ctx := context.Background()
	calls := 0
	granted := false
	fetch := func(ctx context.Context) (types.RawGrantData, error) {
		calls++
		if granted {
			return types.RawGrantData{Temporary: &types.TemporaryGrant{ExpiresAt: s.clock.Now().Add(time.Hour)}}, nil
		}
		return types.RawGrantData{}, nil
	}

	snap, err := s.resolver.Resolve(ctx, "U", fetch)
	s.Require().NoError(err)
	s.False(snap.HasAccess)

	granted = true
	s.resolver.Invalidate("U")
	_, ok := s.cache.Get(Key("U"))
	s.False(ok)

	snap, err = s.resolver.Resolve(ctx, "U", fetch)
	s.Require().NoError(err)
	s.Equal(2, calls)
	s.True(snap.HasAccess)
	s.True(snap.HasTempAccess)
}

func (s *UnitTestSuite) TestFetchFailureIsNotCached() {
	ctx := context.Background()
	boom := errors.New("connection refused")
	calls := 0
	failing := func(ctx context.Context) (types.RawGrantData, error) {
		calls++
		return types.RawGrantData{}, boom
	}

	snap, err := s.resolver.Resolve(ctx, "U", failing)
	s.Error(err)
	s.ErrorIs(err, types.ErrFetchFailure)
	s.ErrorIs(err, boom)
	s.Equal(types.EntitlementSnapshot{}, snap)
	s.Empty(s.cache.Keys())

	_, err = s.resolver.Resolve(ctx, "U", failing)
	s.ErrorIs(err, types.ErrFetchFailure)
	s.Equal(2, calls)
}

func (s *UnitTestSuite) TestEmptyUserIDRejected() {
	_, err := s.resolver.Resolve(context.Background(), "", func(ctx context.Context) (types.RawGrantData, error) {
		s.Fail("fetch must not be called")
		return types.RawGrantData{}, nil
	})
	s.ErrorIs(err, types.ErrPrecondition)
}

func (s *UnitTestSuite) TestConcurrentMissesShareOneFetch() {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (types.RawGrantData, error) {
		calls.Add(1)
		<-release
		return types.RawGrantData{Admin: &types.AdminFlag{}}, nil
	}

	var wg sync.WaitGroup
	results := make([]types.EntitlementSnapshot, 10)
	errs := make([]error, 10)
	resolve := func(i int) {
		defer wg.Done()
		results[i], errs[i] = s.resolver.Resolve(context.Background(), "U", fetch)
	}

	wg.Add(1)
	go resolve(0)
	s.Eventually(func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go resolve(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.EqualValues(1, calls.Load())
	for i := range results {
		s.NoError(errs[i])
		s.True(results[i].IsAdmin)
	}
}

func (s *UnitTestSuite) TestCanceledCallerDoesNotFailJoiners() {
	var calls atomic.Int32
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)
	fetch := func(ctx context.Context) (types.RawGrantData, error) {
		calls.Add(1)
		<-release
		fetchCtxErr <- ctx.Err()
		return types.RawGrantData{Admin: &types.AdminFlag{}}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.resolver.Resolve(firstCtx, "U", fetch)
		firstErr <- err
	}()
	s.Eventually(func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		snap types.EntitlementSnapshot
		err  error
	}
	joined := make(chan result, 1)
	go func() {
		snap, err := s.resolver.Resolve(context.Background(), "U", fetch)
		joined <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// The first caller gives up without waiting for the fetch.
	cancelFirst()
	err := <-firstErr
	s.ErrorIs(err, types.ErrFetchFailure)
	s.ErrorIs(err, context.Canceled)

	close(release)
	s.NoError(<-fetchCtxErr)
	r := <-joined
	s.NoError(r.err)
	s.True(r.snap.IsAdmin)
	s.EqualValues(1, calls.Load())

	_, ok := s.cache.Get(Key("U"))
	s.True(ok)
}

func (s *UnitTestSuite) TestSharedFetchIsBounded() {
	r := NewResolver(s.cache, Options{Now: s.clock.Now, FetchTimeout: 20 * time.Millisecond})
	_, err := r.Resolve(context.Background(), "U", func(ctx context.Context) (types.RawGrantData, error) {
		<-ctx.Done()
		return types.RawGrantData{}, ctx.Err()
	})
	s.ErrorIs(err, types.ErrFetchFailure)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *UnitTestSuite) TestInvalidateDuringFetchSkipsWriteBack() {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) (types.RawGrantData, error) {
		calls.Add(1)
		close(started)
		<-release
		return types.RawGrantData{}, nil
	}

	done := make(chan types.EntitlementSnapshot)
	go func() {
		snap, _ := s.resolver.Resolve(context.Background(), "U", slow)
		done <- snap
	}()
	<-started
	s.resolver.Invalidate("U")
	close(release)
	stale := <-done
	s.False(stale.HasAccess)

	_, ok := s.cache.Get(Key("U"))
	s.False(ok, "fetch that began before invalidation must not be cached")

	snap, err := s.resolver.Resolve(context.Background(), "U", func(ctx context.Context) (types.RawGrantData, error) {
		calls.Add(1)
		return types.RawGrantData{Admin: &types.AdminFlag{}}, nil
	})
	s.NoError(err)
	s.True(snap.HasAccess)
	s.EqualValues(2, calls.Load())
}

func (s *UnitTestSuite) TestResolveUserUsesLoader() {
	loader := &stubLoader{raw: types.RawGrantData{
		Subscription: &types.PaidSubscription{Status: "active", PlanType: "annual"},
	}}
	r := NewResolver(s.cache, Options{Loader: loader, Now: s.clock.Now})
	snap, err := r.ResolveUser(context.Background(), "U")
	s.Require().NoError(err)
	s.True(snap.HasAccess)
	s.Equal("annual", *snap.SubscriptionTier)

	loader.err = errors.New("db down")
	r.Invalidate("U")
	_, err = r.ResolveUser(context.Background(), "U")
	s.ErrorIs(err, types.ErrFetchFailure)
}

func (s *UnitTestSuite) TestResolveUserWithoutLoader() {
	_, err := s.resolver.ResolveUser(context.Background(), "U")
	s.ErrorIs(err, types.ErrInvalidBackend)
}
