// Package memory holds process-local stores for development and tests.
// State is lost on restart and is not shared between instances.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campus-identity/internal/domain"
)

// ResetSessionRepo keeps reset sessions in a map guarded by one mutex, so
// every operation is atomic per session ref.
type ResetSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.ResetSession
	now      func() time.Time
}

func NewResetSessionRepo() *ResetSessionRepo {
	return &ResetSessionRepo{
		sessions: make(map[string]domain.ResetSession),
		now:      time.Now,
	}
}

// live returns the session unless its purge time has passed, mirroring a
// TTL-backed table where purged rows simply disappear. Caller holds mu.
func (r *ResetSessionRepo) live(ref string) (domain.ResetSession, bool) {
	s, ok := r.sessions[ref]
	if !ok {
		return s, false
	}
	if s.PurgeAt > 0 && r.now().Unix() >= s.PurgeAt {
		delete(r.sessions, ref)
		return s, false
	}
	return s, true
}

func (r *ResetSessionRepo) Create(_ context.Context, s *domain.ResetSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live(s.SessionRef); ok {
		return domain.ErrConflict
	}
	r.sessions[s.SessionRef] = *s
	return nil
}

func (r *ResetSessionRepo) Get(_ context.Context, ref string) (*domain.ResetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live(ref)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *ResetSessionRepo) IncrementAttempts(_ context.Context, ref string, max int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live(ref)
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.Attempts >= max {
		return s.Attempts, domain.ErrLockedOut
	}
	s.Attempts++
	r.sessions[ref] = s
	return s.Attempts, nil
}

func (r *ResetSessionRepo) Take(_ context.Context, ref string) (*domain.ResetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live(ref)
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.sessions, ref)
	return &s, nil
}

func (r *ResetSessionRepo) Delete(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ref)
	return nil
}

// Sweep drops every session past its purge time and reports how many went.
func (r *ResetSessionRepo) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Unix()
	n := 0
	for ref, s := range r.sessions {
		if s.PurgeAt > 0 && cutoff >= s.PurgeAt {
			delete(r.sessions, ref)
			n++
		}
	}
	return n
}

// Len is the number of stored sessions, purged or not.
func (r *ResetSessionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
