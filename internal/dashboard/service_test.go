package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/users"
)

type fakeRepo struct {
	mu           sync.Mutex
	counts       map[leads.Status]int
	departures   []Departure
	finance      FinanceSummary
	financeErr   error
	countCalls   int
	financeCalls int
	scopes       []leads.Scope
	window       [2]time.Time
}

func (f *fakeRepo) StatusCounts(_ context.Context, scope leads.Scope) (map[leads.Status]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	f.scopes = append(f.scopes, scope)
	return f.counts, nil
}

func (f *fakeRepo) OpenLeads(_ context.Context, userID int64) (int, error) {
	return int(userID) * 2, nil
}

func (f *fakeRepo) Departures(_ context.Context, _ leads.Scope, from, to time.Time, _ int) ([]Departure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = [2]time.Time{from, to}
	return f.departures, nil
}

func (f *fakeRepo) Finance(context.Context) (FinanceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.financeCalls++
	return f.finance, f.financeErr
}

func newRepo() *fakeRepo {
	return &fakeRepo{
		counts: map[leads.Status]int{leads.StatusNew: 3, leads.StatusConfirmed: 2},
		departures: []Departure{
			{LeadID: 9, ReferenceID: "L-9", Status: leads.StatusConfirmed, DepartureDate: time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)},
		},
		finance: FinanceSummary{
			Invoiced:     decimal.RequireFromString("1000.00"),
			Received:     decimal.RequireFromString("400.00"),
			Outstanding:  decimal.RequireFromString("600.00"),
			VendorBilled: decimal.RequireFromString("450.50"),
			VendorUnpaid: decimal.RequireFromString("100.00"),
			Profit:       decimal.RequireFromString("549.50"),
		},
	}
}

func newCachedService(t *testing.T, repo Repository) (*Service, *Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, nil)
	svc := NewService(repo, cache, nil)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }
	return svc, cache, mr
}

func staff(id int64, role users.Role) *users.User {
	return &users.User{ID: id, Name: string(role), Role: role, Active: true}
}

func TestOverviewForAccount(t *testing.T) {
	repo := newRepo()
	svc, _, _ := newCachedService(t, repo)

	out, err := svc.Overview(context.Background(), staff(2, users.RoleAccount))
	require.NoError(t, err)
	assert.Equal(t, 5, out.TotalLeads)
	require.Len(t, out.StatusCounts, len(leads.Statuses()))
	assert.Equal(t, leads.StatusNew, out.StatusCounts[0].Status)
	assert.Equal(t, 3, out.StatusCounts[0].Count)
	assert.Zero(t, out.MyOpenLeads)
	require.NotNil(t, out.Finance)
	assert.True(t, out.Finance.Profit.Equal(decimal.RequireFromString("549.50")))
	require.Len(t, out.UpcomingDepartures, 1)

	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), repo.window[0])
	assert.Equal(t, time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC), repo.window[1])
}

func TestOverviewScopesBySalesRep(t *testing.T) {
	repo := newRepo()
	svc, _, _ := newCachedService(t, repo)

	out, err := svc.Overview(context.Background(), staff(7, users.RoleSales))
	require.NoError(t, err)
	assert.Nil(t, out.Finance)
	assert.Equal(t, 14, out.MyOpenLeads)
	require.Len(t, repo.scopes, 1)
	assert.Equal(t, int64(7), repo.scopes[0].SalesRep)
	assert.Zero(t, repo.financeCalls)
}

func TestOverviewWithoutLeadAccess(t *testing.T) {
	repo := newRepo()
	svc, _, _ := newCachedService(t, repo)

	out, err := svc.Overview(context.Background(), staff(8, users.RoleHR))
	require.NoError(t, err)
	assert.Zero(t, out.TotalLeads)
	assert.Empty(t, out.UpcomingDepartures)
	assert.Zero(t, repo.countCalls)

	_, err = svc.Overview(context.Background(), nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOverviewCachedUntilInvalidated(t *testing.T) {
	repo := newRepo()
	svc, cache, mr := newCachedService(t, repo)
	ctx := context.Background()
	admin := staff(1, users.RoleAdmin)

	_, err := svc.Overview(ctx, admin)
	require.NoError(t, err)
	_, err = svc.Overview(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.countCalls)
	assert.Equal(t, 1, repo.financeCalls)

	_, err = svc.Overview(ctx, staff(2, users.RoleAccount))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.countCalls)
	assert.Equal(t, 1, repo.financeCalls, "finance totals are shared between users")

	require.NoError(t, cache.Invalidate(ctx))
	v, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	repo.counts = map[leads.Status]int{leads.StatusNew: 10}
	out, err := svc.Overview(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 10, out.TotalLeads)
	assert.Equal(t, 3, repo.countCalls)
	assert.Equal(t, 2, repo.financeCalls)
}

func TestOverviewPropagatesErrors(t *testing.T) {
	repo := newRepo()
	repo.financeErr = errors.New("db down")
	svc, _, _ := newCachedService(t, repo)

	_, err := svc.Overview(context.Background(), staff(1, users.RoleAdmin))
	assert.EqualError(t, err, "db down")
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	repo := newRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Overview(ctx, staff(1, users.RoleAdmin))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.countCalls)
	assert.NoError(t, (*Cache)(nil).Invalidate(ctx))
}

func TestCacheBuildKeyIncludesVersion(t *testing.T) {
	_, cache, _ := newCachedService(t, newRepo())
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "overview", "1")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:overview:1:v1", key)

	require.NoError(t, cache.Invalidate(ctx))
	key, err = cache.BuildKey(ctx, "overview", "1")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:overview:1:v2", key)
}
