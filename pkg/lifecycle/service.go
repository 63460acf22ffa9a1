// Package lifecycle implements the user identity and account-access
// lifecycle: registration activation, password reset with a bounded
// validity window, credential checks and failed-login lockout.
//
// The Service is stateless and safe for concurrent use; all mutable state
// lives in the persisted User and Credential records behind the Store. The
// Store must apply updates compare-on-write (see domain.User.Version) so a
// racing writer observes domain.ErrUserNotFound instead of silently losing
// an update.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ninebudget/ninebudget/pkg/auth"
	"github.com/ninebudget/ninebudget/pkg/domain"
)

// Store is the persistence collaborator. Lookups return
// domain.ErrUserNotFound on a miss; CreateUser surfaces
// domain.ErrEmailAlreadyUsed / domain.ErrUsernameAlreadyUsed on unique
// violations. UpdateUser and UpdateUserAndPassword are version-checked and
// return domain.ErrUserNotFound when the record changed underneath the
// caller.
type Store interface {
	CreateUser(ctx context.Context, user *domain.User, cred *domain.Credential) error
	UpdateUser(ctx context.Context, user *domain.User) error
	UpdateUserAndPassword(ctx context.Context, user *domain.User, passwordHash string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UserByActivationKey(ctx context.Context, key string) (*domain.User, error)
	UserByResetKey(ctx context.Context, key string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	CredentialByUsername(ctx context.Context, username string) (*domain.Credential, error)
}

// Hasher is the one-way password verifier collaborator.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// KeyGenerator produces unpredictable opaque keys of a fixed length.
type KeyGenerator interface {
	Generate(n int) (string, error)
}

// Config tunes the time-based invariants of the lifecycle.
type Config struct {
	// ResetWindow bounds how far a reset date may lie from "now", in
	// either direction, for a reset to complete (default 300s).
	ResetWindow time.Duration

	// LockoutThreshold is the failed-attempt count that trips a lockout
	// (default 5).
	LockoutThreshold int

	// LockoutDuration is how long a tripped lockout lasts (default 15m).
	LockoutDuration time.Duration

	// KeyLength is the length of activation and reset keys (default 20).
	KeyLength int
}

func (c *Config) applyDefaults() {
	if c.ResetWindow == 0 {
		c.ResetWindow = 300 * time.Second
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.KeyLength == 0 {
		c.KeyLength = auth.KeyLength
	}
}

// Service orchestrates the identity state transitions. It is the only place
// these rules live.
type Service struct {
	config Config
	logger *slog.Logger
	store  Store
	hasher Hasher
	keys   KeyGenerator
	policy *auth.PasswordPolicy

	now func() time.Time
}

// NewService creates a lifecycle service. A nil policy disables password
// complexity checks; a nil logger falls back to slog.Default().
func NewService(cfg Config, logger *slog.Logger, store Store, hasher Hasher, keys KeyGenerator, policy *auth.PasswordPolicy) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: cfg,
		logger: logger,
		store:  store,
		hasher: hasher,
		keys:   keys,
		policy: policy,
		now:    time.Now,
	}
}

// RegisterInput carries the profile and credential fields for a new user.
// RequesterAccountID is the caller's own account, passed explicitly; it is
// the fallback account reference when AccountID is absent. If neither is
// set the user is created without an account reference.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Username  string
	Password  string

	AccountID          *uuid.UUID
	RequesterAccountID *uuid.UUID
}

// Register creates a user in the unactivated state together with its
// credential. The email and username are lowercased, the password is hashed
// and never retained, and a fresh activation key is issued. Duplicate email
// or username surfaces as a conflict error from the store; uniqueness is
// never pre-checked here.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if err := auth.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Username == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if s.policy != nil {
		if err := s.policy.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	activationKey, err := s.keys.Generate(s.config.KeyLength)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:            uuid.New(),
		FirstName:     auth.SanitizeName(in.FirstName),
		LastName:      auth.SanitizeName(in.LastName),
		Email:         auth.NormalizeEmail(in.Email),
		Activated:     false,
		ActivationKey: &activationKey,
		AccountID:     s.accountRef(in),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Phone != "" {
		phone := in.Phone
		user.Phone = &phone
	}

	cred := &domain.Credential{
		ID:           uuid.New(),
		UserID:       user.ID,
		Username:     strings.ToLower(in.Username),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user, cred); err != nil {
		return nil, err
	}

	s.logger.Debug("registered user", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// accountRef resolves the account reference for a new user: explicit id
// first, then the requester's own account, then none.
func (s *Service) accountRef(in RegisterInput) *uuid.UUID {
	if in.AccountID != nil {
		return in.AccountID
	}
	return in.RequesterAccountID
}

// Activate consumes an activation key. The user becomes activated
// permanently and the key is cleared; a reused or unknown key yields
// domain.ErrUserNotFound.
func (s *Service) Activate(ctx context.Context, key string) (*domain.User, error) {
	user, err := s.store.UserByActivationKey(ctx, key)
	if err != nil {
		return nil, err
	}

	user.Activated = true
	user.ActivationKey = nil

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Debug("activated user", "user_id", user.ID)
	return user, nil
}

// RequestPasswordReset issues a fresh reset key for an activated user found
// by email (case-insensitive). Unknown emails and unactivated users both
// yield domain.ErrUserNotFound so the caller cannot tell them apart. The
// returned user carries the new reset key for the caller to route a
// notification.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.store.UserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !user.Activated {
		return nil, domain.ErrUserNotFound
	}

	key, err := s.keys.Generate(s.config.KeyLength)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user.ResetKey = &key
	user.ResetDate = &now

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Debug("password reset requested", "user_id", user.ID)
	return user, nil
}

// CompletePasswordReset consumes a reset key and replaces the credential's
// verifier. The reset date must lie strictly within (now-window, now+window);
// the symmetric window tolerates modest clock skew and rejects timestamps
// implausibly far in the future. Outside the window nothing is mutated and
// domain.ErrUserNotFound is returned. The new verifier and the cleared
// reset fields are written in one version-checked transaction, so of two
// racing completions exactly one succeeds.
func (s *Service) CompletePasswordReset(ctx context.Context, newPassword, key string) (*domain.User, error) {
	if s.policy != nil {
		if err := s.policy.ValidatePassword(newPassword); err != nil {
			return nil, err
		}
	}

	user, err := s.store.UserByResetKey(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if user.ResetDate == nil ||
		!user.ResetDate.After(now.Add(-s.config.ResetWindow)) ||
		!user.ResetDate.Before(now.Add(s.config.ResetWindow)) {
		return nil, domain.ErrUserNotFound
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	user.ResetKey = nil
	user.ResetDate = nil

	if err := s.store.UpdateUserAndPassword(ctx, user, hash); err != nil {
		return nil, err
	}

	s.logger.Debug("password reset completed", "user_id", user.ID)
	return user, nil
}

// CheckPassword verifies a plaintext candidate against a stored verifier.
// A mismatch yields domain.ErrInvalidCredentials, never a not-found.
func (s *Service) CheckPassword(candidate, verifier string) error {
	if !s.hasher.Verify(candidate, verifier) {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// FindByCredential resolves a username (case-insensitive) to the user
// owning the credential. A missing credential and a missing user both yield
// domain.ErrUserNotFound to avoid username enumeration.
func (s *Service) FindByCredential(ctx context.Context, username string) (*domain.User, error) {
	cred, err := s.store.CredentialByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, err
	}
	return s.store.UserByID(ctx, cred.UserID)
}

// Authenticate runs a full credential check for a username and password:
// locked accounts are refused, a verifier mismatch records a failed attempt
// and a match clears the lockout bookkeeping. Unknown usernames yield
// domain.ErrInvalidCredentials, indistinguishable from a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	cred, err := s.store.CredentialByUsername(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	user, err := s.store.UserByID(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLockedOut(s.now()) {
		return nil, domain.ErrAccountLocked
	}

	if err := s.CheckPassword(password, cred.PasswordHash); err != nil {
		if recordErr := s.RecordFailedLogin(ctx, user); recordErr != nil {
			s.logger.Error("failed to record failed login", "error", recordErr, "user_id", user.ID)
		}
		return nil, err
	}

	if err := s.RecordSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to clear lockout state", "error", err, "user_id", user.ID)
	}

	return user, nil
}

// RecordFailedLogin increments the failed-attempt counter and trips the
// lockout once the configured threshold is reached. The write is
// version-checked like any other update.
func (s *Service) RecordFailedLogin(ctx context.Context, user *domain.User) error {
	user.RecordFailedLogin(s.now(), s.config.LockoutThreshold, s.config.LockoutDuration)
	return s.store.UpdateUser(ctx, user)
}

// RecordSuccessfulLogin resets the failed-attempt counter and clears any
// lockout. The write is skipped when there is nothing to clear.
func (s *Service) RecordSuccessfulLogin(ctx context.Context, user *domain.User) error {
	if user.FailedLoginAttempts == 0 && !user.Locked && user.LockedOutUntil == nil {
		return nil
	}
	user.RecordSuccessfulLogin()
	return s.store.UpdateUser(ctx, user)
}

// Delete removes a user, but only when the requester's account matches the
// target user's account. Any mismatch, including a missing target, is a
// silent no-op: the caller learns nothing about users it does not own.
func (s *Service) Delete(ctx context.Context, userID, requesterAccountID uuid.UUID) error {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	if user.AccountID == nil || *user.AccountID != requesterAccountID {
		s.logger.Debug("delete refused", "user_id", userID, "requester_account_id", requesterAccountID)
		return nil
	}

	if err := s.store.DeleteUser(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Debug("deleted user", "user_id", userID)
	return nil
}

// RemoveNonActivatedUser deletes an abandoned unactivated registration so
// its email can be reused. Activated users are never removed. It reports
// whether a user was deleted.
func (s *Service) RemoveNonActivatedUser(ctx context.Context, email string) (bool, error) {
	user, err := s.store.UserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.Activated {
		return false, nil
	}

	if err := s.store.DeleteUser(ctx, user.ID); err != nil {
		return false, err
	}

	s.logger.Debug("removed non-activated user", "user_id", user.ID)
	return true, nil
}
