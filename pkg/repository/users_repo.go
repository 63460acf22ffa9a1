package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ninebudget/ninebudget/pkg/domain"
)

const userColumns = `id, first_name, last_name, email, phone, activated, activation_key,
	       locked, failed_login_attempts, last_failed_login, locked_out_until,
	       reset_key, reset_date, account_id, version, created_at, updated_at`

// UsersRepository is the Postgres-backed store for users and credentials.
// All updates are compare-on-write against the version column: a stale
// writer gets domain.ErrUserNotFound instead of overwriting a concurrent
// change.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// CreateUser inserts a user and its credential in one transaction. Unique
// violations map to the conflict errors in pkg/domain.
func (r *UsersRepository) CreateUser(ctx context.Context, user *domain.User, cred *domain.Credential) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		userQuery := `
			INSERT INTO users (id, first_name, last_name, email, phone, activated, activation_key,
			                   locked, failed_login_attempts, last_failed_login, locked_out_until,
			                   reset_key, reset_date, account_id, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		if _, err := tx.ExecContext(ctx, userQuery,
			user.ID, user.FirstName, user.LastName, user.Email, user.Phone,
			user.Activated, user.ActivationKey,
			user.Locked, user.FailedLoginAttempts, user.LastFailedLogin, user.LockedOutUntil,
			user.ResetKey, user.ResetDate, user.AccountID, user.Version,
			user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return mapConflict(err)
		}

		credQuery := `
			INSERT INTO credentials (id, user_id, username, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(ctx, credQuery,
			cred.ID, cred.UserID, cred.Username, cred.PasswordHash,
			cred.CreatedAt, cred.UpdatedAt,
		); err != nil {
			return mapConflict(err)
		}
		return nil
	})
}

// UserByID retrieves a user by id.
func (r *UsersRepository) UserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.userWhere(ctx, `id = $1`, id)
}

// UserByActivationKey retrieves the user holding the given activation key.
func (r *UsersRepository) UserByActivationKey(ctx context.Context, key string) (*domain.User, error) {
	return r.userWhere(ctx, `activation_key = $1`, key)
}

// UserByResetKey retrieves the user holding the given reset key.
func (r *UsersRepository) UserByResetKey(ctx context.Context, key string) (*domain.User, error) {
	return r.userWhere(ctx, `reset_key = $1`, key)
}

// UserByEmail retrieves a user by email, compared case-insensitively.
func (r *UsersRepository) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.userWhere(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (r *UsersRepository) userWhere(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Phone,
		&user.Activated, &user.ActivationKey,
		&user.Locked, &user.FailedLoginAttempts, &user.LastFailedLogin, &user.LockedOutUntil,
		&user.ResetKey, &user.ResetDate, &user.AccountID, &user.Version,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CredentialByUsername retrieves a credential by username, compared
// case-insensitively.
func (r *UsersRepository) CredentialByUsername(ctx context.Context, username string) (*domain.Credential, error) {
	query := `
		SELECT id, user_id, username, password_hash, created_at, updated_at
		FROM credentials
		WHERE LOWER(username) = LOWER($1)
	`
	cred := &domain.Credential{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&cred.ID, &cred.UserID, &cred.Username, &cred.PasswordHash,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// UpdateUser writes the user's mutable fields, guarded by the version the
// caller read. On success the in-memory version is bumped to match the row.
func (r *UsersRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	if err := r.updateUserTx(ctx, r.db, user); err != nil {
		return err
	}
	user.Version++
	return nil
}

func (r *UsersRepository) updateUserTx(ctx context.Context, q Querier, user *domain.User) error {
	query := `
		UPDATE users
		SET first_name = $3, last_name = $4, email = $5, phone = $6,
		    activated = $7, activation_key = $8,
		    locked = $9, failed_login_attempts = $10, last_failed_login = $11, locked_out_until = $12,
		    reset_key = $13, reset_date = $14, account_id = $15,
		    version = version + 1, updated_at = $16
		WHERE id = $1 AND version = $2
	`
	result, err := q.ExecContext(ctx, query,
		user.ID, user.Version,
		user.FirstName, user.LastName, user.Email, user.Phone,
		user.Activated, user.ActivationKey,
		user.Locked, user.FailedLoginAttempts, user.LastFailedLogin, user.LockedOutUntil,
		user.ResetKey, user.ResetDate, user.AccountID,
		time.Now(),
	)
	if err != nil {
		return mapConflict(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateUserAndPassword writes the user's fields and the credential's
// password hash in one transaction, so a completed password reset is
// all-or-nothing.
func (r *UsersRepository) UpdateUserAndPassword(ctx context.Context, user *domain.User, passwordHash string) error {
	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.updateUserTx(ctx, tx, user); err != nil {
			return err
		}

		query := `
			UPDATE credentials
			SET password_hash = $2, updated_at = $3
			WHERE user_id = $1
		`
		result, err := tx.ExecContext(ctx, query, user.ID, passwordHash, time.Now())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	user.Version++
	return nil
}

// DeleteUser removes a user; the credential row goes with it via the
// foreign key cascade.
func (r *UsersRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// mapConflict translates Postgres unique violations into the domain's
// conflict errors, matched by constraint name.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return domain.ErrEmailAlreadyUsed
	case "credentials_username_key":
		return domain.ErrUsernameAlreadyUsed
	}
	return err
}
