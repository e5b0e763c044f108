package session

import (
	"sync"
	"time"

	"github.com/terrascan/terrascan/internal/utils"
)

// Store keeps sessions in memory for the lifetime of the process.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	threshold float64
	now       func() time.Time
}

func NewStore(defaultThreshold float64) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		threshold: defaultThreshold,
		now:       time.Now,
	}
}

func (s *Store) Create() *Session {
	sess := New(s.threshold, s.now())
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns all sessions, newest first.
func (s *Store) List() []*Session {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()
	return utils.SortByTime(sessions, (*Session).CreatedAt, false)
}

// Expire removes sessions created more than maxAge ago and returns how many were removed.
func (s *Store) Expire(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
