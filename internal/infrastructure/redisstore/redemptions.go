package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-identity/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedemptionRepo struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedemptionRepo(rdb redis.UniversalClient, prefix string) *RedemptionRepo {
	if prefix == "" {
		prefix = "reset:redeemed"
	}
	return &RedemptionRepo{rdb: rdb, prefix: prefix}
}

// Redeem marks tokenID spent with SET NX. The marker lives until the token
// itself would have expired.
func (r *RedemptionRepo) Redeem(ctx context.Context, tokenID, userID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.rdb.SetNX(ctx, r.prefix+":"+tokenID, userID, ttl).Result()
	if err != nil {
		return fmt.Errorf("redeem reset token: %w", err)
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

func (r *RedemptionRepo) Release(ctx context.Context, tokenID string) error {
	if err := r.rdb.Del(ctx, r.prefix+":"+tokenID).Err(); err != nil {
		return fmt.Errorf("release reset token: %w", err)
	}
	return nil
}
