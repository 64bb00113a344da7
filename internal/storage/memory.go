package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dgellow/authcallback/internal/log"
)

var _ UserStore = (*MemoryStorage)(nil)

// MemoryStorage keeps user records in process memory
type MemoryStorage struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
	now   func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*UserRecord),
		now:   time.Now,
	}
}

// UpsertUser creates or updates a user record
func (s *MemoryStorage) UpsertUser(_ context.Context, provider, subject, email string) (*UserRecord, error) {
	key := userKey(provider, subject)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[key]
	if !ok {
		user = &UserRecord{
			Provider:  provider,
			Subject:   subject,
			FirstSeen: now,
		}
		s.users[key] = user
		log.LogInfoWithFields("storage", "New user recorded", map[string]any{
			"provider": provider,
			"email":    email,
		})
	}
	user.Email = email
	user.LastSeen = now
	user.LoginCount++

	record := *user
	return &record, nil
}

// GetUser returns a copy of the stored record
func (s *MemoryStorage) GetUser(_ context.Context, provider, subject string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userKey(provider, subject)]
	if !ok {
		return nil, ErrUserNotFound
	}
	record := *user
	return &record, nil
}

// ListUsers returns all users, most recently seen first
func (s *MemoryStorage) ListUsers(_ context.Context) ([]UserRecord, error) {
	s.mu.RLock()
	users := make([]UserRecord, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	s.mu.RUnlock()

	slices.SortFunc(users, func(a, b UserRecord) int {
		return cmp.Or(b.LastSeen.Compare(a.LastSeen), cmp.Compare(a.Subject, b.Subject))
	})
	return users, nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
