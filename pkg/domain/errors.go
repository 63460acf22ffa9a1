package domain

import "errors"

// Lookup and authentication errors. ErrUserNotFound doubles as the "empty
// result" marker: wrong or reused keys, unknown emails and ineligible users
// all surface as not-found so callers cannot distinguish "doesn't exist"
// from "exists but ineligible".
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
)

// Conflict errors, raised by the store on unique-constraint violations.
// The lifecycle manager never pre-checks uniqueness itself.
var (
	ErrEmailAlreadyUsed    = errors.New("email address already in use")
	ErrUsernameAlreadyUsed = errors.New("username already in use")
)

// Validation errors.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password does not meet requirements")
)
