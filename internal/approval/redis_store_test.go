package approval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func pendingRequest(id string, created time.Time) Request {
	return Request{
		TransactionID: id,
		DeviceID:      "dev-1",
		InstrumentKey: "card-a",
		Merchant:      "Corner Store",
		Amount:        decimal.RequireFromString("1200.50"),
		CreatedAt:     created,
		ExpiresAt:     created.Add(DefaultTTL),
		Status:        StatusPending,
	}
}

func TestRedisStoreInsertAndGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, pendingRequest("tx-1", created)))

	got, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, "Corner Store", got.Merchant)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1200.50")))
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(DefaultTTL), got.ExpiresAt)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ApprovedAt)

	assert.Equal(t, DefaultTTL+time.Hour, mr.TTL(redisKey("tx-1")))
}

func TestRedisStoreRejectsDuplicateID(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, pendingRequest("tx-1", created)))
	assert.ErrorIs(t, store.Insert(ctx, pendingRequest("tx-1", created)), ErrDuplicateID)
}

func TestRedisStoreApprove(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, pendingRequest("tx-1", created)))

	at := created.Add(time.Minute)
	req, already, err := store.Approve(ctx, "tx-1", at)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, StatusApproved, req.Status)
	require.NotNil(t, req.ApprovedAt)
	assert.Equal(t, at, *req.ApprovedAt)

	req, already, err = store.Approve(ctx, "tx-1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, at, *req.ApprovedAt)
}

func TestRedisStoreApproveErrors(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, pendingRequest("tx-1", created)))

	_, _, err := store.Approve(ctx, "missing", created)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.Approve(ctx, "tx-1", created.Add(DefaultTTL+time.Second))
	assert.ErrorIs(t, err, ErrExpired)

	got, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestRedisStoreExpire(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, pendingRequest("tx-1", created)))
	require.NoError(t, store.Insert(ctx, pendingRequest("tx-2", created)))

	cancelAt := created.Add(10 * time.Second)
	require.NoError(t, store.Expire(ctx, "tx-1", cancelAt))
	got, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, cancelAt, got.ExpiresAt)

	_, _, err = store.Approve(ctx, "tx-2", created)
	require.NoError(t, err)
	assert.ErrorIs(t, store.Expire(ctx, "tx-2", cancelAt), ErrAlreadyApproved)
	assert.ErrorIs(t, store.Expire(ctx, "missing", cancelAt), ErrNotFound)
}

func TestRedisStoreBacksService(t *testing.T) {
	store, _ := newRedisStore(t)
	clock := newFakeClock()
	svc := NewService(store, DefaultTTL, nil, WithClock(clock.Now))
	ctx := context.Background()

	req, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	res, err := svc.Approve(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyApproved)

	report, err := svc.Status(ctx, req.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, report.Status)
}
