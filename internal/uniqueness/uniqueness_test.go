package uniqueness

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

const testLease = time.Minute

type fixture struct {
	kv   *kvstore.MemoryStore
	subs *store.Collection[model.Subscription]
	v    *Validator
	now  time.Time
}

func newFixture(t *testing.T, reservations bool) *fixture {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	subs := store.NewCollection(kv, model.CollectionSubscriptions, func(s *model.Subscription) string { return s.ID })
	f := &fixture{kv: kv, subs: subs, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	f.v = NewValidator(subs, logger.Nop())
	f.v.now = func() time.Time { return f.now }
	if reservations {
		f.v.WithReservations(kv, testLease)
	}
	return f
}

func (f *fixture) holder(t *testing.T, key string) string {
	t.Helper()
	data, err := f.kv.Get(context.Background(), model.CollectionReservations, key)
	require.NoError(t, err)
	row, err := decodeReservation(data)
	require.NoError(t, err)
	return row.Owner
}

func (f *fixture) put(t *testing.T, id, domain, url, api string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.subs.Put(context.Background(), &model.Subscription{
		ID:                 id,
		TenantID:           "t1",
		ClusterID:          "c1",
		DomainName:         domain,
		TenantURL:          url,
		TenantAPIURL:       api,
		PackageID:          "pkg",
		SubscriptionTypeID: "monthly",
		NumberOfStores:     1,
		Status:             model.SubscriptionStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "https://a.com", Normalize("  HTTPS://A.com "))
	assert.Equal(t, "acme", Normalize("Acme"))
	assert.Equal(t, "", Normalize("   "))
}

func TestIsUnique(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")

	unique, err := f.v.IsUnique(ctx, DomainName, "https://a.com", "")
	require.NoError(t, err)
	assert.False(t, unique)

	unique, err = f.v.IsUnique(ctx, DomainName, "https://A.com", "")
	require.NoError(t, err)
	assert.False(t, unique, "case variants collide")

	unique, err = f.v.IsUnique(ctx, DomainName, "https://a.com", "s1")
	require.NoError(t, err)
	assert.True(t, unique, "the record being updated is excluded")

	unique, err = f.v.IsUnique(ctx, TenantURL, "https://a.com", "")
	require.NoError(t, err)
	assert.True(t, unique, "attributes are compared independently")

	unique, err = f.v.IsUnique(ctx, DomainName, "https://b.com", "")
	require.NoError(t, err)
	assert.True(t, unique)
}

func TestCheck_FailsFastInAttributeOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")
	f.put(t, "s2", "https://b.com", "beta", "https://api.b.com")

	// tenant_url collides with s1 and api url with s2; tenant_url is reported
	err := f.v.Check(ctx, Candidates{
		DomainName:   "https://new.com",
		TenantURL:    "ACME",
		TenantAPIURL: "https://api.b.com",
	}, "")
	require.Error(t, err)
	require.True(t, errors.IsConflict(err))

	appErr := errors.From(err)
	assert.Contains(t, appErr.Message, "tenant_url")
	assert.Equal(t, []string{"tenant_url=acme (subscription s1)"}, appErr.Conflicts)
}

func TestCheck_NoConflict(t *testing.T) {
	f := newFixture(t, false)
	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")

	err := f.v.Check(context.Background(), Candidates{
		DomainName:   "https://b.com",
		TenantURL:    "beta",
		TenantAPIURL: "https://api.b.com",
	}, "")
	assert.NoError(t, err)
}

func TestCheck_EmptyCandidatesSkipped(t *testing.T) {
	f := newFixture(t, false)
	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")

	assert.NoError(t, f.v.Check(context.Background(), Candidates{}, ""))
}

func TestReserve_DisabledIsNoop(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.v.Reserve(ctx, Candidates{DomainName: "https://a.com"}, "s1")
	require.NoError(t, err)
	assert.NoError(t, res.Release(ctx))
	assert.False(t, f.v.ReservationsEnabled())
}

func TestReserve_ConflictReleasesPartialRows(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")
	_, err := f.v.Reserve(ctx, FromSubscription(&model.Subscription{
		DomainName: "https://a.com", TenantURL: "acme", TenantAPIURL: "https://api.a.com",
	}), "s1")
	require.NoError(t, err)

	// domain is fresh, tenant_url is held by s1
	_, err = f.v.Reserve(ctx, Candidates{
		DomainName:   "https://new.com",
		TenantURL:    "acme",
		TenantAPIURL: "https://api.new.com",
	}, "s2")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	_, err = f.kv.Get(ctx, model.CollectionReservations, "domain_name:https://new.com")
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "rows created before the conflict are released")
	_, err = f.kv.Get(ctx, model.CollectionReservations, "tenant_api_url:https://api.new.com")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestReserve_SameOwnerIsReentrant(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com"}

	_, err := f.v.Reserve(ctx, cand, "s1")
	require.NoError(t, err)
	_, err = f.v.Reserve(ctx, cand, "s1")
	assert.NoError(t, err)
}

func TestReserve_UnwrittenHolderBlocksOthersWithinLease(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com"}

	// A reserved, its subscription is not written yet
	_, err := f.v.Reserve(ctx, cand, "sub-a")
	require.NoError(t, err)

	f.now = f.now.Add(testLease - time.Second)
	_, err = f.v.Reserve(ctx, cand, "sub-b")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, []string{"domain_name=https://a.com (subscription sub-a)"}, errors.From(err).Conflicts)
	assert.Equal(t, "sub-a", f.holder(t, "domain_name:https://a.com"))
}

func TestReserve_ConcurrentOwnersExactlyOneWins(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com", TenantURL: "acme"}

	const owners = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			if _, err := f.v.Reserve(ctx, cand, owner); err == nil {
				mu.Lock()
				winners = append(winners, owner)
				mu.Unlock()
			} else {
				assert.True(t, errors.IsConflict(err))
			}
		}(fmt.Sprintf("sub-%02d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, winners[0], f.holder(t, "domain_name:https://a.com"))
	assert.Equal(t, winners[0], f.holder(t, "tenant_url:acme"))
}

func TestReserve_TakesOverExpiredUnwrittenHolder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com"}

	// Reserved by a subscription that was never written
	_, err := f.v.Reserve(ctx, cand, "ghost")
	require.NoError(t, err)

	f.now = f.now.Add(testLease)
	res, err := f.v.Reserve(ctx, cand, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", f.holder(t, "domain_name:https://a.com"))

	// the taken-over row belongs to this reservation now
	require.NoError(t, res.Release(ctx))
	_, err = f.kv.Get(ctx, model.CollectionReservations, "domain_name:https://a.com")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestReserve_TakesOverHolderThatNoLongerHoldsValue(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com"}

	_, err := f.v.Reserve(ctx, cand, "s1")
	require.NoError(t, err)
	// s1 moved to another domain and its old row was never forgotten
	f.put(t, "s1", "https://b.com", "acme", "https://api.a.com")

	_, err = f.v.Reserve(ctx, cand, "s2")
	require.Error(t, err, "s1 may still be mid-update within the lease")
	assert.True(t, errors.IsConflict(err))

	f.now = f.now.Add(2 * testLease)
	_, err = f.v.Reserve(ctx, cand, "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", f.holder(t, "domain_name:https://a.com"))
}

func TestReserve_LiveHolderKeepsValueAfterLease(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://A.com"}

	_, err := f.v.Reserve(ctx, cand, "s1")
	require.NoError(t, err)
	f.put(t, "s1", "https://a.com", "acme", "https://api.a.com")

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.v.Reserve(ctx, cand, "s2")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, "s1", f.holder(t, "domain_name:https://a.com"))
}

// swapRacer changes the row right before the validator's swap lands
type swapRacer struct {
	*kvstore.MemoryStore
	before func()
}

func (s *swapRacer) CompareAndSwap(ctx context.Context, collection, key string, old, value []byte) (bool, error) {
	if s.before != nil {
		s.before()
		s.before = nil
	}
	return s.MemoryStore.CompareAndSwap(ctx, collection, key, old, value)
}

func TestReserve_TakeoverLosesToConcurrentTaker(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	cand := Candidates{DomainName: "https://a.com"}

	_, err := f.v.Reserve(ctx, cand, "ghost")
	require.NoError(t, err)
	f.now = f.now.Add(testLease)

	racer := &swapRacer{MemoryStore: f.kv}
	other := NewValidator(f.subs, logger.Nop()).WithReservations(f.kv, testLease)
	other.now = func() time.Time { return f.now }
	racer.before = func() {
		_, err := other.Reserve(ctx, cand, "s3")
		require.NoError(t, err)
	}
	f.v.WithReservations(racer, testLease)

	_, err = f.v.Reserve(ctx, cand, "s2")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, "s3", f.holder(t, "domain_name:https://a.com"))
}

func TestReservation_Release(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.v.Reserve(ctx, Candidates{DomainName: "https://a.com", TenantURL: "acme"}, "s1")
	require.NoError(t, err)
	require.NoError(t, res.Release(ctx))

	_, err = f.kv.Get(ctx, model.CollectionReservations, "domain_name:https://a.com")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
	_, err = f.kv.Get(ctx, model.CollectionReservations, "tenant_url:acme")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestForget_OnlyOwnRows(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.put(t, "s2", "https://b.com", "beta", "https://api.b.com")
	_, err := f.v.Reserve(ctx, Candidates{DomainName: "https://a.com"}, "s1")
	require.NoError(t, err)
	_, err = f.v.Reserve(ctx, Candidates{DomainName: "https://b.com"}, "s2")
	require.NoError(t, err)

	require.NoError(t, f.v.Forget(ctx, Candidates{DomainName: "https://a.com", TenantURL: "unreserved"}, "s1"))
	require.NoError(t, f.v.Forget(ctx, Candidates{DomainName: "https://b.com"}, "s1"))

	_, err = f.kv.Get(ctx, model.CollectionReservations, "domain_name:https://a.com")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
	assert.Equal(t, "s2", f.holder(t, "domain_name:https://b.com"))
}
