package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

const selectAccount = `
SELECT id, email, handle, display_name, role, password_hash, active, failed_attempts,
       locked_until, last_login_at, last_login_ip, last_login_device, version, created_at, updated_at
FROM accounts
`

// AccountRepository implements port.AccountRepository over SQLite.
type AccountRepository struct {
	store *Store
}

// FindByLoginIdentifier looks up an account by exactly one of email or handle.
func (r *AccountRepository) FindByLoginIdentifier(ctx context.Context, field domain.LoginIdentifierField, value string) (*domain.Account, error) {
	switch field {
	case domain.LoginFieldEmail:
		return r.queryOne(ctx, selectAccount+"WHERE email = ?", strings.ToLower(value))
	case domain.LoginFieldHandle:
		return r.queryOne(ctx, selectAccount+"WHERE handle = ?", value)
	default:
		return nil, fmt.Errorf("unsupported login field %q", field)
	}
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.queryOne(ctx, selectAccount+"WHERE id = ?", id)
}

func (r *AccountRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var (
		account         domain.Account
		active          bool
		lockedUntil     sql.NullInt64
		lastLoginAt     sql.NullInt64
		lastLoginIP     sql.NullString
		lastLoginDevice sql.NullString
		createdAt       int64
		updatedAt       int64
	)

	err := r.store.sqlDB.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Email,
		&account.Handle,
		&account.DisplayName,
		&account.Role,
		&account.PasswordHash,
		&active,
		&account.FailedAttempts,
		&lockedUntil,
		&lastLoginAt,
		&lastLoginIP,
		&lastLoginDevice,
		&account.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Active = active
	account.LockedUntil = nanosPtr(lockedUntil)
	account.LastLoginAt = millisPtr(lastLoginAt)
	account.LastLoginIP = stringPtr(lastLoginIP)
	account.LastLoginDevice = stringPtr(lastLoginDevice)
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)

	return &account, nil
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	version := account.Version
	if version <= 0 {
		version = 1
	}

	_, err := r.store.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (
    id, email, handle, display_name, role, password_hash, active, failed_attempts,
    locked_until, last_login_at, last_login_ip, last_login_device, version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.Handle,
		account.DisplayName,
		account.Role,
		account.PasswordHash,
		account.Active,
		account.FailedAttempts,
		nullableNanos(account.LockedUntil),
		nullableMillis(account.LastLoginAt),
		nullableString(account.LastLoginIP),
		nullableString(account.LastLoginDevice),
		version,
		toMillis(account.CreatedAt),
		toMillis(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateLockState writes the lockout counters only if the row still carries expectedVersion.
func (r *AccountRepository) UpdateLockState(ctx context.Context, id string, expectedVersion int64, failedAttempts int, lockedUntil *time.Time) error {
	res, err := r.store.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts = ?, locked_until = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		failedAttempts, nullableNanos(lockedUntil), toMillis(r.store.now()), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update account lock state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account lock state: %w", err)
	}
	if affected == 1 {
		return nil
	}
	return r.conflictOrMissing(ctx, id)
}

// conflictOrMissing explains a conditional update that matched no row.
func (r *AccountRepository) conflictOrMissing(ctx context.Context, id string) error {
	var exists int
	if err := r.store.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("probe account: %w", err)
	}
	return repository.ErrVersionConflict
}

// UpdateLastLogin stamps the time and origin of a successful login when the row
// still carries expectedVersion, bumping the version.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, expectedVersion int64, at time.Time, origin domain.Origin) error {
	device := origin.Device.Descriptor()
	res, err := r.store.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ?, last_login_ip = ?, last_login_device = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		toMillis(at), nullableString(&origin.IP), nullableString(&device), toMillis(r.store.now()), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if affected == 1 {
		return nil
	}
	return r.conflictOrMissing(ctx, id)
}

// UpdatePasswordHash replaces the stored password hash and bumps the row version.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	return r.execSingle(ctx, "update password hash",
		`UPDATE accounts SET password_hash = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		hash, toMillis(r.store.now()), id,
	)
}

// SetActive toggles the active flag and bumps the row version.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.execSingle(ctx, "update account active",
		`UPDATE accounts SET active = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		active, toMillis(r.store.now()), id,
	)
}

// Ping checks database connectivity.
func (r *AccountRepository) Ping(ctx context.Context) error {
	if err := r.store.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (r *AccountRepository) execSingle(ctx context.Context, op, query string, args ...any) error {
	res, err := r.store.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
