package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// UserStore describes persistence operations required by the authority.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// TouchActivity bumps LastActivityDate to day when it is behind. The
	// update is conditional, so repeated calls within a day are no-ops.
	TouchActivity(ctx context.Context, userID string, day time.Time) error
}

// MemoryStore implements UserStore for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryStore creates an empty user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	clone := *u
	s.byID[u.ID] = &clone
	s.byEmail[email] = u.ID
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryStore) TouchActivity(ctx context.Context, userID string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	if u.LastActivityDate.Before(day) {
		u.LastActivityDate = day
	}
	return nil
}

// List returns all users ordered by id. Test helper.
func (s *MemoryStore) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		res = append(res, *u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
