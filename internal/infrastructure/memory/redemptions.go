package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campus-identity/internal/domain"
)

type RedemptionRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.Redemption
	now    func() time.Time
}

func NewRedemptionRepo() *RedemptionRepo {
	return &RedemptionRepo{
		tokens: make(map[string]domain.Redemption),
		now:    time.Now,
	}
}

func (r *RedemptionRepo) Redeem(_ context.Context, tokenID, userID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if red, ok := r.tokens[tokenID]; ok && r.now().Unix() < red.PurgeAt {
		return domain.ErrConflict
	}
	r.tokens[tokenID] = domain.Redemption{TokenID: tokenID, UserID: userID, PurgeAt: until.Unix()}
	return nil
}

func (r *RedemptionRepo) Release(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, tokenID)
	return nil
}

func (r *RedemptionRepo) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Unix()
	n := 0
	for id, red := range r.tokens {
		if cutoff >= red.PurgeAt {
			delete(r.tokens, id)
			n++
		}
	}
	return n
}
