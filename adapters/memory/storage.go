package memory

import (
	"context"
	"sort"
	"sync"

	"coderhack/core"
)

// Store is a concurrent in-memory Store implementation.
type Store struct {
	mu    sync.RWMutex
	users map[core.UserID]core.User
}

func New() *Store { return &Store{users: map[core.UserID]core.User{}} }

func (s *Store) Exists(_ context.Context, id core.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

// User holds no reference types, so returning the value is already a copy.
func (s *Store) Get(_ context.Context, id core.UserID) (core.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *Store) Put(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
	return nil
}

func (s *Store) Delete(_ context.Context, id core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *Store) ListByScoreAsc(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	SortByScore(out)
	return out, nil
}

// SortByScore orders users by ascending score, breaking ties by user id.
func SortByScore(users []core.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score < users[j].Score
		}
		return users[i].UserID < users[j].UserID
	})
}

var _ interface {
	Exists(context.Context, core.UserID) (bool, error)
	Get(context.Context, core.UserID) (core.User, bool, error)
	Put(context.Context, core.User) error
	Delete(context.Context, core.UserID) error
	ListByScoreAsc(context.Context) ([]core.User, error)
} = (*Store)(nil)
