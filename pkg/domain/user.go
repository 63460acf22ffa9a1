package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents one account holder.
//
// Relations are id-based: AccountID points at the owning budget account and
// Credential rows reference the user by UserID. The Version field backs
// compare-on-write updates; every persisted mutation must carry the version
// it read.
type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     *string

	// Activation state. ActivationKey is present only before activation
	// and is cleared exactly once when the key is consumed.
	Activated     bool
	ActivationKey *string

	// Lockout state.
	Locked              bool
	FailedLoginAttempts int
	LastFailedLogin     *time.Time
	LockedOutUntil      *time.Time

	// Reset state. ResetKey and ResetDate are always both nil or both set.
	ResetKey  *string
	ResetDate *time.Time

	AccountID *uuid.UUID

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLockedOut reports whether the account refuses credential checks at the
// given instant. A nil LockedOutUntil with Locked set means an indefinite
// lock; a timed lock expires on its own.
func (u *User) IsLockedOut(now time.Time) bool {
	if u.LockedOutUntil == nil {
		return u.Locked
	}
	return now.Before(*u.LockedOutUntil)
}

// RecordFailedLogin applies one failed credential check to the lockout
// fields. Once the attempt count reaches threshold the account is locked
// until now+lockout. The transition is pure; persisting it is the caller's
// job.
func (u *User) RecordFailedLogin(now time.Time, threshold int, lockout time.Duration) {
	u.FailedLoginAttempts++
	u.LastFailedLogin = &now
	if threshold > 0 && u.FailedLoginAttempts >= threshold {
		until := now.Add(lockout)
		u.Locked = true
		u.LockedOutUntil = &until
	}
}

// RecordSuccessfulLogin clears the lockout fields after a successful
// credential check.
func (u *User) RecordSuccessfulLogin() {
	u.FailedLoginAttempts = 0
	u.LastFailedLogin = nil
	u.Locked = false
	u.LockedOutUntil = nil
}

// ResetPending reports whether a password reset key is outstanding.
func (u *User) ResetPending() bool {
	return u.ResetKey != nil && u.ResetDate != nil
}

// Credential stores the login secret for a user, 1:1 with User and deleted
// with it. The username is lowercased on creation and immutable afterwards.
// PasswordHash is the opaque one-way verifier and is never serialized
// outward.
type Credential struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
