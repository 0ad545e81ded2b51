package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"coderhack/adapters/memory"
	"coderhack/core"
)

// Store persists every user to a single JSON file, rewritten atomically on each write.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.User
}

// fileFormat is the on-disk document: users keyed by id.
type fileFormat struct {
	Users map[core.UserID]core.User `json:"users"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.User{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc fileFormat
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for id, u := range doc.Users {
		u.UserID = id
		s.data[id] = u
	}
	return nil
}

func (s *Store) persist(data map[core.UserID]core.User) error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(fileFormat{Users: data}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// commit persists next and only then swaps it in, so a failed write leaves the cache intact.
func (s *Store) commit(mutate func(map[core.UserID]core.User)) error {
	next := make(map[core.UserID]core.User, len(s.data)+1)
	for k, v := range s.data {
		next[k] = v
	}
	mutate(next)
	if err := s.persist(next); err != nil {
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	s.data = next
	return nil
}

func (s *Store) Exists(_ context.Context, id core.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	return ok, nil
}

func (s *Store) Get(_ context.Context, id core.UserID) (core.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data[id]
	return u, ok, nil
}

func (s *Store) Put(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(func(m map[core.UserID]core.User) { m[u.UserID] = u })
}

func (s *Store) Delete(_ context.Context, id core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return nil
	}
	return s.commit(func(m map[core.UserID]core.User) { delete(m, id) })
}

func (s *Store) ListByScoreAsc(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	out := make([]core.User, 0, len(s.data))
	for _, u := range s.data {
		out = append(out, u)
	}
	s.mu.Unlock()
	memory.SortByScore(out)
	return out, nil
}
