package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/campus-identity/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	hUserID    = "user_id"
	hEmail     = "email"
	hCodeHash  = "code_hash"
	hAttempts  = "attempts"
	hCreatedAt = "created_at"
	hExpiresAt = "expires_at"
	hPurgeAt   = "purge_at"
)

// ResetSessionRepo stores each session as a hash under prefix:ref. The key
// expires at the session's purge time.
type ResetSessionRepo struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewResetSessionRepo(rdb redis.UniversalClient, prefix string) *ResetSessionRepo {
	if prefix == "" {
		prefix = "reset:session"
	}
	return &ResetSessionRepo{rdb: rdb, prefix: prefix}
}

func (r *ResetSessionRepo) key(ref string) string {
	return r.prefix + ":" + ref
}

func (r *ResetSessionRepo) Create(ctx context.Context, s *domain.ResetSession) error {
	key := r.key(s.SessionRef)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeSession(s))
			pipe.ExpireAt(ctx, key, time.Unix(s.PurgeAt, 0))
			return nil
		})
		return err
	})
}

func (r *ResetSessionRepo) Get(ctx context.Context, ref string) (*domain.ResetSession, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("load reset session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeSession(ref, fields)
}

// IncrementAttempts reads and bumps the counter under WATCH, so the limit
// check and the increment commit together or not at all.
func (r *ResetSessionRepo) IncrementAttempts(ctx context.Context, ref string, max int) (int, error) {
	key := r.key(ref)
	var attempts int64
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, hAttempts).Int64()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur >= int64(max) {
			attempts = cur
			return domain.ErrLockedOut
		}
		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.HIncrBy(ctx, key, hAttempts, 1)
			return nil
		})
		if err != nil {
			return err
		}
		attempts = incr.Val()
		return nil
	})
	if err != nil {
		return int(attempts), err
	}
	return int(attempts), nil
}

func (r *ResetSessionRepo) Take(ctx context.Context, ref string) (*domain.ResetSession, error) {
	key := r.key(ref)
	var taken *domain.ResetSession
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return domain.ErrNotFound
		}
		s, err := decodeSession(ref, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		taken = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (r *ResetSessionRepo) Delete(ctx context.Context, ref string) error {
	if err := r.rdb.Del(ctx, r.key(ref)).Err(); err != nil {
		return fmt.Errorf("delete reset session: %w", err)
	}
	return nil
}

// watch runs fn in an optimistic transaction on key. A transaction aborted by
// a concurrent write is retried; domain errors from fn pass through unchanged.
func (r *ResetSessionRepo) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !isDomainErr(err) {
			return fmt.Errorf("redis transaction: %w", err)
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s: too much contention: %w", key, domain.ErrConflict)
}

func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrLockedOut)
}

func encodeSession(s *domain.ResetSession) map[string]interface{} {
	return map[string]interface{}{
		hUserID:    s.UserID,
		hEmail:     s.Email,
		hCodeHash:  s.CodeHash,
		hAttempts:  s.Attempts,
		hCreatedAt: s.CreatedAt.UTC().Format(time.RFC3339Nano),
		hExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		hPurgeAt:   s.PurgeAt,
	}
}

func decodeSession(ref string, f map[string]string) (*domain.ResetSession, error) {
	attempts, err := strconv.Atoi(f[hAttempts])
	if err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f[hCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, f[hExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	purgeAt, err := strconv.ParseInt(f[hPurgeAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode purge_at: %w", err)
	}
	return &domain.ResetSession{
		SessionRef: ref,
		UserID:     f[hUserID],
		Email:      f[hEmail],
		CodeHash:   f[hCodeHash],
		Attempts:   attempts,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
		PurgeAt:    purgeAt,
	}, nil
}
