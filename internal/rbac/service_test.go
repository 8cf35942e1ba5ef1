package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	members map[[2]int64]Role
	calls   int
	err     error
}

func (f *fakeStore) Membership(_ context.Context, userID, companyID int64) (Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Membership{}, f.err
	}
	role, ok := f.members[[2]int64{userID, companyID}]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return Membership{UserID: userID, CompanyID: companyID, Role: role}, nil
}

func TestHasCompanyAccessIsCached(t *testing.T) {
	store := &fakeStore{members: map[[2]int64]Role{{7, 1}: RoleAccountant}}
	svc := NewService(store, NewAccessCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := svc.HasCompanyAccess(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, store.calls)

	for i := 0; i < 2; i++ {
		ok, err := svc.HasCompanyAccess(ctx, 7, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, store.calls, "denials are cached as well")

	store.members[[2]int64{7, 2}] = RoleViewer
	svc.Invalidate(7, 2)
	m, ok, err := svc.Membership(ctx, 7, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RoleViewer, m.Role)
}

func TestAccessCacheExpires(t *testing.T) {
	store := &fakeStore{members: map[[2]int64]Role{{7, 1}: RoleOwner}}
	svc := NewService(store, NewAccessCache(20*time.Millisecond))
	ctx := context.Background()

	_, err := svc.HasCompanyAccess(ctx, 7, 1)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = svc.HasCompanyAccess(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestStoreErrorsAreNotCached(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	svc := NewService(store, NewAccessCache(time.Minute))

	_, err := svc.HasCompanyAccess(context.Background(), 7, 1)
	require.Error(t, err)
	store.err = nil
	store.members = map[[2]int64]Role{{7, 1}: RoleOwner}
	ok, err := svc.HasCompanyAccess(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessCacheIsSafeForConcurrentUse(t *testing.T) {
	store := &fakeStore{members: map[[2]int64]Role{{7, 1}: RoleOwner}}
	svc := NewService(store, NewAccessCache(time.Minute))
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, _ = svc.HasCompanyAccess(context.Background(), user%4+5, 1)
		}(int64(i))
	}
	wg.Wait()
	ok, err := svc.HasCompanyAccess(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilCacheAlwaysQueries(t *testing.T) {
	store := &fakeStore{members: map[[2]int64]Role{{7, 1}: RoleOwner}}
	svc := NewService(store, nil)
	for i := 0; i < 2; i++ {
		_, err := svc.HasCompanyAccess(context.Background(), 7, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.calls)
}
