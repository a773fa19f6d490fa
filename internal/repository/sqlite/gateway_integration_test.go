package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/security"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

type discardSink struct{}

func (discardSink) Record(context.Context, domain.LoginAuditEvent) {}

func newSQLiteGateway(t *testing.T) (*usecase.AuthGateway, *Store) {
	t.Helper()
	store := openTestStore(t)
	logger := zaptest.NewLogger(t)

	hasher, err := security.NewPasswordHasher(port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	accounts := store.Accounts()
	verifier := usecase.NewCredentialVerifier(accounts, hasher, logger)
	issuer := usecase.NewTokenIssuer(store.Tokens(), accounts, time.Hour, logger)
	gateway := usecase.NewAuthGateway(accounts, verifier, usecase.NewLockoutPolicy(5, 30*time.Minute), issuer, hasher, discardSink{}, usecase.AuthGatewayConfig{}, logger)
	return gateway, store
}

func TestGatewayOverSQLiteRegisterLoginLogout(t *testing.T) {
	gateway, _ := newSQLiteGateway(t)
	ctx := context.Background()
	origin := domain.Origin{IP: "10.0.0.2"}

	registered, err := gateway.Register(ctx, domain.AccountProfile{
		Email:  "Till3@Store.example",
		Handle: "till3",
	}, "Correct-Horse-42!", origin)
	require.NoError(t, err)
	assert.Equal(t, "till3@store.example", registered.Account.Email)

	result, err := gateway.Login(ctx, "till3@store.example", "Correct-Horse-42!", origin)
	require.NoError(t, err)

	account, _, err := gateway.Authenticate(ctx, result.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, registered.Account.ID, account.ID)

	require.NoError(t, gateway.Logout(ctx, result.Token.Value, origin))
	require.NoError(t, gateway.Logout(ctx, result.Token.Value, origin))

	_, _, err = gateway.Authenticate(ctx, result.Token.Value)
	assert.ErrorIs(t, err, usecase.ErrTokenNotFound)
}

func TestGatewayOverSQLiteConcurrentFailuresLockOnce(t *testing.T) {
	gateway, store := newSQLiteGateway(t)
	ctx := context.Background()

	registered, err := gateway.Register(ctx, domain.AccountProfile{Email: "till4@store.example", Handle: "till4"}, "Correct-Horse-42!", domain.Origin{})
	require.NoError(t, err)

	const attempts = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		bad    int
		locked int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gateway.Login(ctx, "till4", "wrong-password", domain.Origin{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, usecase.ErrAccountLocked):
				locked++
			case errors.Is(err, usecase.ErrBadPassword):
				bad++
			default:
				t.Errorf("unexpected login error: %v", err)
			}
		}()
	}
	wg.Wait()

	account, err := store.Accounts().GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, account.FailedAttempts)
	assert.NotNil(t, account.LockedUntil)
	assert.Equal(t, attempts, bad+locked)
	assert.Equal(t, 4, bad)
}
