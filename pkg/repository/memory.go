package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ninebudget/ninebudget/pkg/domain"
)

// MemoryStore is an in-memory implementation of the lifecycle store with
// the same semantics as the Postgres repository: case-insensitive unique
// email and username, and compare-on-write versioning. It backs tests and
// local development without a database.
type MemoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
	creds map[uuid.UUID]domain.Credential // keyed by user id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[uuid.UUID]domain.User),
		creds: make(map[uuid.UUID]domain.Credential),
	}
}

// CreateUser inserts a user and its credential atomically.
func (s *MemoryStore) CreateUser(ctx context.Context, user *domain.User, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailAlreadyUsed
		}
	}
	for _, c := range s.creds {
		if strings.EqualFold(c.Username, cred.Username) {
			return domain.ErrUsernameAlreadyUsed
		}
	}

	s.users[user.ID] = *user
	s.creds[user.ID] = *cred
	return nil
}

// UserByID retrieves a user by id.
func (s *MemoryStore) UserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

// UserByActivationKey retrieves the user holding the given activation key.
func (s *MemoryStore) UserByActivationKey(ctx context.Context, key string) (*domain.User, error) {
	return s.findUser(func(u domain.User) bool {
		return u.ActivationKey != nil && *u.ActivationKey == key
	})
}

// UserByResetKey retrieves the user holding the given reset key.
func (s *MemoryStore) UserByResetKey(ctx context.Context, key string) (*domain.User, error) {
	return s.findUser(func(u domain.User) bool {
		return u.ResetKey != nil && *u.ResetKey == key
	})
}

// UserByEmail retrieves a user by email, compared case-insensitively.
func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(func(u domain.User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

func (s *MemoryStore) findUser(match func(domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// CredentialByUsername retrieves a credential by username, compared
// case-insensitively.
func (s *MemoryStore) CredentialByUsername(ctx context.Context, username string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.creds {
		if strings.EqualFold(c.Username, username) {
			cc := c
			return &cc, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// UpdateUser writes the user back, guarded by the version the caller read.
func (s *MemoryStore) UpdateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(user)
}

// UpdateUserAndPassword writes the user and the new password hash
// atomically.
func (s *MemoryStore) UpdateUserAndPassword(ctx context.Context, user *domain.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateLocked(user); err != nil {
		return err
	}
	cred, ok := s.creds[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	cred.PasswordHash = passwordHash
	s.creds[user.ID] = cred
	return nil
}

func (s *MemoryStore) updateLocked(user *domain.User) error {
	current, ok := s.users[user.ID]
	if !ok || current.Version != user.Version {
		return domain.ErrUserNotFound
	}
	user.Version++
	s.users[user.ID] = *user
	return nil
}

// DeleteUser removes a user and its credential.
func (s *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.creds, id)
	return nil
}

// copyUser returns a detached copy so callers cannot mutate stored state.
func copyUser(u domain.User) *domain.User {
	return &u
}
