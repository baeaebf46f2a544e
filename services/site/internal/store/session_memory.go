package store

import (
	"context"
	"sync"
	"time"

	"aercd/internal/util"
	"aercd/pkg/domain"
)

type memorySession struct {
	user    domain.User
	expires time.Time
}

// sweepInterval bounds how often writes scan the in-memory maps for expired
// entries.
const sweepInterval = time.Minute

// MemorySessionStore keeps sessions in-process (single instance only).
// Expired sessions are dropped when looked up and by a sweep on write.
type MemorySessionStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	sess      map[string]memorySession
	now       func() time.Time
	lastSweep time.Time
}

// NewMemorySessionStore builds an in-memory session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:  ttl,
		sess: make(map[string]memorySession),
		now:  time.Now,
	}
}

// NewSession records the user under a fresh token.
func (s *MemorySessionStore) NewSession(_ context.Context, user domain.User) (string, error) {
	token := util.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	s.sess[token] = memorySession{user: user, expires: now.Add(s.ttl)}
	return token, nil
}

func (s *MemorySessionStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for token, entry := range s.sess {
		if now.After(entry.expires) {
			delete(s.sess, token)
		}
	}
}

// GetUser resolves a token; expired sessions are dropped.
func (s *MemorySessionStore) GetUser(_ context.Context, token string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sess[token]
	if !ok {
		return domain.User{}, false, nil
	}
	if s.ttl > 0 && s.now().After(entry.expires) {
		delete(s.sess, token)
		return domain.User{}, false, nil
	}
	return entry.user, true, nil
}

// DeleteSession removes a token; unknown tokens are ignored.
func (s *MemorySessionStore) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sess, token)
	return nil
}
