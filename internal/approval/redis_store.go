package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const redisKeyPrefix = "approval:v1:"

// insertScript writes the hash only when the key is free and arms its GC TTL.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'device_id', ARGV[2], 'instrument_key', ARGV[3], 'merchant', ARGV[4],
  'amount', ARGV[5], 'created_at', ARGV[6], 'expires_at', ARGV[7], 'status', 'pending')
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// approveScript is the single read-modify-write for a request.
var approveScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'status', 'expires_at', 'approved_at')
if not v[1] then
  return {'not_found', ''}
end
if v[1] == 'approved' then
  return {'already_approved', v[3]}
end
if tonumber(ARGV[1]) > tonumber(v[2]) then
  return {'expired', ''}
end
redis.call('HSET', KEYS[1], 'status', 'approved', 'approved_at', ARGV[1])
return {'approved', ARGV[1]}
`)

var expireScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'status', 'expires_at')
if not v[1] then
  return 'not_found'
end
if v[1] == 'approved' then
  return 'already_approved'
end
if tonumber(ARGV[1]) < tonumber(v[2]) then
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
end
return 'ok'
`)

// RedisStore keeps each request in a hash whose key TTL outlives the request
// expiry by the retention window.
type RedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisStore builds a Redis-backed approval store.
func NewRedisStore(client redis.UniversalClient, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Insert(ctx context.Context, req Request) error {
	ttl := req.ExpiresAt.Sub(req.CreatedAt) + s.retention
	res, err := insertScript.Run(ctx, s.client, []string{redisKey(req.TransactionID)},
		ttl.Milliseconds(),
		req.DeviceID,
		req.InstrumentKey,
		req.Merchant,
		req.Amount.String(),
		req.CreatedAt.UnixMilli(),
		req.ExpiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	if res == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Request, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return Request{}, fmt.Errorf("get approval request: %w", err)
	}
	if len(fields) == 0 {
		return Request{}, ErrNotFound
	}
	return decodeRequest(id, fields)
}

func (s *RedisStore) Approve(ctx context.Context, id string, at time.Time) (Request, bool, error) {
	res, err := approveScript.Run(ctx, s.client, []string{redisKey(id)}, at.UnixMilli()).StringSlice()
	if err != nil {
		return Request{}, false, fmt.Errorf("approve request: %w", err)
	}
	if len(res) != 2 {
		return Request{}, false, fmt.Errorf("approve request: unexpected script reply %v", res)
	}
	switch res[0] {
	case "not_found":
		return Request{}, false, ErrNotFound
	case "expired":
		return Request{}, false, ErrExpired
	}

	req, err := s.Get(ctx, id)
	if err != nil {
		return Request{}, false, err
	}
	return req, res[0] == "already_approved", nil
}

func (s *RedisStore) Expire(ctx context.Context, id string, at time.Time) error {
	res, err := expireScript.Run(ctx, s.client, []string{redisKey(id)}, at.UnixMilli()).Text()
	if err != nil {
		return fmt.Errorf("expire request: %w", err)
	}
	switch res {
	case "not_found":
		return ErrNotFound
	case "already_approved":
		return ErrAlreadyApproved
	}
	return nil
}

// PurgeExpired is a no-op; key TTLs reclaim expired requests.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decodeRequest(id string, fields map[string]string) (Request, error) {
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return Request{}, fmt.Errorf("decode amount: %w", err)
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return Request{}, fmt.Errorf("decode created_at: %w", err)
	}
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return Request{}, fmt.Errorf("decode expires_at: %w", err)
	}
	req := Request{
		TransactionID: id,
		DeviceID:      fields["device_id"],
		InstrumentKey: fields["instrument_key"],
		Merchant:      fields["merchant"],
		Amount:        amount,
		CreatedAt:     createdAt,
		ExpiresAt:     expiresAt,
		Status:        Status(fields["status"]),
	}
	if raw := fields["approved_at"]; raw != "" {
		approvedAt, err := parseMillis(raw)
		if err != nil {
			return Request{}, fmt.Errorf("decode approved_at: %w", err)
		}
		req.ApprovedAt = &approvedAt
	}
	return req, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms <= 0 {
		return time.Time{}, errors.New("timestamp must be positive")
	}
	return time.UnixMilli(ms).UTC(), nil
}
