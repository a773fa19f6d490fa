package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAccount(t *testing.T, store *Store, id, email, handle string) domain.Account {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	account := domain.Account{
		ID:           id,
		Email:        email,
		Handle:       handle,
		DisplayName:  "Till " + handle,
		Role:         "staff",
		PasswordHash: "hash-" + handle,
		Active:       true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Accounts().Create(context.Background(), account))
	return account
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestOpenFileIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")

	store, err := Open(path)
	require.NoError(t, err)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	account, err := reopened.Accounts().GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "cashier01", account.Handle)
}

func TestAccountLookupByField(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	accounts := store.Accounts()
	ctx := context.Background()

	byEmail, err := accounts.FindByLoginIdentifier(ctx, domain.LoginFieldEmail, "Cashier@Store.Example")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", byEmail.ID)
	assert.True(t, byEmail.Active)
	assert.Nil(t, byEmail.LockedUntil)
	assert.Nil(t, byEmail.LastLoginIP)

	byHandle, err := accounts.FindByLoginIdentifier(ctx, domain.LoginFieldHandle, "cashier01")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", byHandle.ID)

	// A handle lookup never matches the email column.
	_, err = accounts.FindByLoginIdentifier(ctx, domain.LoginFieldHandle, "cashier@store.example")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = accounts.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountCreateDuplicate(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")

	dup := domain.Account{ID: "acc-2", Email: "other@store.example", Handle: "cashier01", Role: "staff", PasswordHash: "x"}
	assert.ErrorIs(t, store.Accounts().Create(context.Background(), dup), repository.ErrDuplicate)
}

func TestAccountUpdateLockStateCompareAndSwap(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	accounts := store.Accounts()
	ctx := context.Background()

	lockedUntil := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, accounts.UpdateLockState(ctx, "acc-1", 1, 5, &lockedUntil))

	account, err := accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 5, account.FailedAttempts)
	assert.Equal(t, int64(2), account.Version)
	require.NotNil(t, account.LockedUntil)
	assert.True(t, account.LockedUntil.Equal(lockedUntil))

	assert.ErrorIs(t, accounts.UpdateLockState(ctx, "acc-1", 1, 0, nil), repository.ErrVersionConflict)
	assert.ErrorIs(t, accounts.UpdateLockState(ctx, "missing", 1, 0, nil), repository.ErrNotFound)

	require.NoError(t, accounts.UpdateLockState(ctx, "acc-1", 2, 0, nil))
	account, err = accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Zero(t, account.FailedAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestAccountUpdates(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	accounts := store.Accounts()
	ctx := context.Background()

	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	origin := domain.Origin{IP: "10.0.0.7", Device: domain.DeviceInfo{Device: "Desktop", Browser: "Chrome 120"}}
	require.NoError(t, accounts.UpdateLastLogin(ctx, "acc-1", 1, at, origin))
	assert.ErrorIs(t, accounts.UpdateLastLogin(ctx, "acc-1", 1, at, origin), repository.ErrVersionConflict)
	assert.ErrorIs(t, accounts.UpdateLastLogin(ctx, "missing", 1, at, origin), repository.ErrNotFound)
	require.NoError(t, accounts.UpdatePasswordHash(ctx, "acc-1", "new-hash"))
	require.NoError(t, accounts.SetActive(ctx, "acc-1", false))

	account, err := accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, account.LastLoginAt)
	assert.True(t, account.LastLoginAt.Equal(at))
	assert.Equal(t, "10.0.0.7", *account.LastLoginIP)
	assert.Equal(t, "Desktop / Chrome 120", *account.LastLoginDevice)
	assert.Equal(t, "new-hash", account.PasswordHash)
	assert.False(t, account.Active)
	assert.Equal(t, int64(4), account.Version)

	assert.ErrorIs(t, accounts.SetActive(ctx, "missing", true), repository.ErrNotFound)
	assert.NoError(t, accounts.Ping(ctx))
}

func TestAccountLockKeepsNanosecondPrecision(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	accounts := store.Accounts()
	ctx := context.Background()

	lockedUntil := time.Date(2025, 6, 1, 12, 30, 0, 999999, time.UTC)
	require.NoError(t, accounts.UpdateLockState(ctx, "acc-1", 1, 5, &lockedUntil))

	account, err := accounts.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, account.LockedUntil)
	assert.True(t, account.LockedUntil.Equal(lockedUntil), "got %s", account.LockedUntil.Format(time.RFC3339Nano))
	assert.True(t, account.IsLocked(lockedUntil.Add(-time.Microsecond)))
	assert.False(t, account.IsLocked(lockedUntil))
}

func TestTokenStorePreservesNanosecondExpiry(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	tokens := store.Tokens()
	ctx := context.Background()

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	token := domain.SessionToken{
		ID:        "tok-1",
		ValueHash: "hash-1",
		AccountID: "acc-1",
		Scope:     domain.TokenScopeAll,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(time.Hour),
	}
	require.NoError(t, tokens.Insert(ctx, token))
	assert.ErrorIs(t, tokens.Insert(ctx, token), repository.ErrDuplicate)

	found, err := tokens.FindByValue(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, found.ExpiresAt.Equal(token.ExpiresAt))
	assert.True(t, found.IsValidAt(token.ExpiresAt.Add(-time.Nanosecond)))
	assert.False(t, found.IsValidAt(token.ExpiresAt))

	_, err = tokens.FindByValue(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenStoreDeletes(t *testing.T) {
	store := openTestStore(t)
	seedAccount(t, store, "acc-1", "cashier@store.example", "cashier01")
	seedAccount(t, store, "acc-2", "manager@store.example", "manager01")
	tokens := store.Tokens()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	insert := func(id, hash, account string, expires time.Time) {
		require.NoError(t, tokens.Insert(ctx, domain.SessionToken{
			ID: id, ValueHash: hash, AccountID: account, Scope: domain.TokenScopeAll, IssuedAt: base, ExpiresAt: expires,
		}))
	}
	insert("t1", "h1", "acc-1", base.Add(time.Hour))
	insert("t2", "h2", "acc-1", base.Add(time.Hour))
	insert("t3", "h3", "acc-1", base.Add(time.Minute))
	insert("t4", "h4", "acc-2", base.Add(time.Hour))

	gone, err := tokens.DeleteByValue(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, gone)

	removed, err := tokens.DeleteExpiredBefore(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = tokens.DeleteOthersForAccount(ctx, "acc-1", "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = tokens.FindByValue(ctx, "h1")
	assert.NoError(t, err)

	removed, err = tokens.DeleteAllForAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = tokens.FindByValue(ctx, "h4")
	assert.NoError(t, err, "other accounts keep their tokens")
}

func TestAuditAppend(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	accountID := "acc-1"
	reason := domain.FailureReasonLockedAfter(5)
	require.NoError(t, store.Audit().Append(ctx, domain.LoginAuditEvent{
		ID:            "audit-1",
		AccountID:     &accountID,
		Identifier:    "cashier01",
		Kind:          domain.AuditLoginFailure,
		FailureReason: &reason,
		OccurredAt:    time.Now().UTC(),
	}))
	require.NoError(t, store.Audit().Append(ctx, domain.LoginAuditEvent{
		ID:         "audit-2",
		Identifier: "ghost",
		Kind:       domain.AuditLoginFailure,
		OccurredAt: time.Now().UTC(),
	}))

	var stored string
	require.NoError(t, store.sqlDB.QueryRowContext(ctx,
		`SELECT failure_reason FROM login_audit_events WHERE account_id = ?`, accountID).Scan(&stored))
	assert.Equal(t, "locked after 5 failed attempts", stored)

	var orphans int
	require.NoError(t, store.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_audit_events WHERE account_id IS NULL`).Scan(&orphans))
	assert.Equal(t, 1, orphans)
}
