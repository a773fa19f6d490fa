package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

const accountsTable = "auth.accounts"

var accountColumns = []string{
	"id",
	"email",
	"handle",
	"display_name",
	"role",
	"password_hash",
	"active",
	"failed_attempts",
	"locked_until",
	"last_login_at",
	"last_login_ip",
	"last_login_device",
	"version",
	"created_at",
	"updated_at",
}

const updateLastLoginSQL = `UPDATE auth.accounts SET last_login_at = $1, last_login_ip = $2, last_login_device = $3, version = version + 1, updated_at = $4 WHERE id = $5 AND version = $6`

const updateLockStateSQL = `UPDATE auth.accounts SET failed_attempts = $1, locked_until = $2, version = version + 1, updated_at = $3 WHERE id = $4 AND version = $5`

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindByLoginIdentifier looks up an account by exactly one of email or handle.
func (r *AccountRepository) FindByLoginIdentifier(ctx context.Context, field domain.LoginIdentifierField, value string) (*domain.Account, error) {
	var where squirrel.Eq
	switch field {
	case domain.LoginFieldEmail:
		where = squirrel.Eq{"email": strings.ToLower(value)}
	case domain.LoginFieldHandle:
		where = squirrel.Eq{"handle": value}
	default:
		return nil, fmt.Errorf("unsupported login field %q", field)
	}

	stmt, args, err := r.builder.Select(accountColumns...).From(accountsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by %s sql: %w", field, err)
	}

	return scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).From(accountsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		lockedUntil *time.Time
		lastLoginAt *time.Time
	)

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Handle,
		&account.DisplayName,
		&account.Role,
		&account.PasswordHash,
		&account.Active,
		&account.FailedAttempts,
		&lockedUntil,
		&lastLoginAt,
		&account.LastLoginIP,
		&account.LastLoginDevice,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.LockedUntil = utcPtr(lockedUntil)
	account.LastLoginAt = utcPtr(lastLoginAt)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return &account, nil
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	version := account.Version
	if version <= 0 {
		version = 1
	}

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Email,
			account.Handle,
			account.DisplayName,
			account.Role,
			account.PasswordHash,
			account.Active,
			account.FailedAttempts,
			optionalTime(account.LockedUntil),
			optionalTime(account.LastLoginAt),
			optionalString(account.LastLoginIP),
			optionalString(account.LastLoginDevice),
			version,
			account.CreatedAt.UTC(),
			account.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// UpdateLockState writes the lockout counters only if the row still carries expectedVersion.
func (r *AccountRepository) UpdateLockState(ctx context.Context, id string, expectedVersion int64, failedAttempts int, lockedUntil *time.Time) error {
	tag, err := r.exec.Exec(ctx, updateLockStateSQL, failedAttempts, optionalTime(lockedUntil), r.now(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update account lock state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.conflictOrMissing(ctx, id)
}

// conflictOrMissing explains a conditional update that matched no row.
func (r *AccountRepository) conflictOrMissing(ctx context.Context, id string) error {
	var exists int
	if err := r.exec.QueryRow(ctx, "SELECT 1 FROM auth.accounts WHERE id = $1", id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := r.exec.Exec(ctx, updateLastLoginSQL,
		at.UTC(), optionalString(&origin.IP), optionalString(&device), r.now(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.conflictOrMissing(ctx, id)
}

// UpdatePasswordHash replaces the stored password hash and bumps the row version.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("password_hash", hash).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password hash sql: %w", err)
	}

	return r.execSingle(ctx, "update password hash", stmt, args)
}

// SetActive toggles the active flag and bumps the row version.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("active", active).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update account active sql: %w", err)
	}

	return r.execSingle(ctx, "update account active", stmt, args)
}

// Ping checks database connectivity.
func (r *AccountRepository) Ping(ctx context.Context) error {
	if err := r.exec.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *AccountRepository) execSingle(ctx context.Context, op, stmt string, args []any) error {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
