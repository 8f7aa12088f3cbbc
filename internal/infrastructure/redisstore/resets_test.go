package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campus-identity/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testSession(ref string) *domain.ResetSession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.ResetSession{
		SessionRef: ref,
		UserID:     "u1",
		Email:      "a@b.com",
		CodeHash:   "deadbeef",
		CreatedAt:  now,
		ExpiresAt:  now.Add(10 * time.Minute),
		PurgeAt:    now.Add(20 * time.Minute).Unix(),
	}
}

func TestResetSessionRepo_CreateAndGet(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	s := testSession("ref1")

	require.NoError(t, repo.Create(ctx, s))
	got, err := repo.Get(ctx, "ref1")
	require.NoError(t, err)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.Email, got.Email)
	assert.Equal(t, s.CodeHash, got.CodeHash)
	assert.Equal(t, 0, got.Attempts)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, s.PurgeAt, got.PurgeAt)

	assert.ErrorIs(t, repo.Create(ctx, s), domain.ErrConflict)
}

func TestResetSessionRepo_GetMissing(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetSessionRepo_KeyExpiresAtPurgeTime(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	assert.True(t, mr.TTL("reset:session:ref1") > 0)
	mr.FastForward(25 * time.Minute)

	_, err := repo.Get(ctx, "ref1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetSessionRepo_IncrementAttempts(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	n, err := repo.IncrementAttempts(ctx, "ref1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.IncrementAttempts(ctx, "ref1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.IncrementAttempts(ctx, "ref1", 2)
	assert.ErrorIs(t, err, domain.ErrLockedOut)
	assert.Equal(t, 2, n)

	got, err := repo.Get(ctx, "ref1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

func TestResetSessionRepo_IncrementMissingDoesNotCreate(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")

	_, err := repo.IncrementAttempts(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, mr.Exists("reset:session:ghost"))
}

func TestResetSessionRepo_ConcurrentIncrementsAreNotLost(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	var wg sync.WaitGroup
	var ok int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementAttempts(ctx, "ref1", 5); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "ref1")
	require.NoError(t, err)
	assert.Equal(t, int(ok), got.Attempts)
}

func TestResetSessionRepo_ConcurrentIncrementsNeverPassMax(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	var wg sync.WaitGroup
	var granted int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementAttempts(ctx, "ref1", 3); err == nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "ref1")
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Attempts, 3)
	assert.Equal(t, int(granted), got.Attempts)
}

func TestResetSessionRepo_TakeOnlyOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	taken, err := repo.Take(ctx, "ref1")
	require.NoError(t, err)
	assert.Equal(t, "u1", taken.UserID)

	_, err = repo.Take(ctx, "ref1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A taken session can be put back.
	require.NoError(t, repo.Create(ctx, taken))
	_, err = repo.Get(ctx, "ref1")
	assert.NoError(t, err)
}

func TestResetSessionRepo_Delete(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewResetSessionRepo(rdb, "")
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testSession("ref1")))

	require.NoError(t, repo.Delete(ctx, "ref1"))
	require.NoError(t, repo.Delete(ctx, "ref1"))
	_, err := repo.Get(ctx, "ref1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedemptionRepo_FirstRedeemWins(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewRedemptionRepo(rdb, "")
	ctx := context.Background()
	until := time.Now().Add(15 * time.Minute)

	require.NoError(t, repo.Redeem(ctx, "tok", "u1", until))
	assert.ErrorIs(t, repo.Redeem(ctx, "tok", "u1", until), domain.ErrConflict)
	assert.True(t, mr.TTL("reset:redeemed:tok") > 0)

	require.NoError(t, repo.Release(ctx, "tok"))
	assert.NoError(t, repo.Redeem(ctx, "tok", "u1", until))
}
