package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

var errStoreDown = errors.New("connection refused")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memAccountRepo is an in-memory AccountRepository with version-checked lock updates.
type memAccountRepo struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	lookupErr error
	updateErr error
	casWrites int
	conflicts int
}

func newMemAccountRepo(accounts ...domain.Account) *memAccountRepo {
	repo := &memAccountRepo{accounts: make(map[string]domain.Account)}
	for _, account := range accounts {
		repo.accounts[account.ID] = account
	}
	return repo
}

func (r *memAccountRepo) FindByLoginIdentifier(_ context.Context, field domain.LoginIdentifierField, value string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	for _, account := range r.accounts {
		if field == domain.LoginFieldEmail && account.Email == value {
			copied := account
			return &copied, nil
		}
		if field == domain.LoginFieldHandle && account.Handle == value {
			copied := account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *memAccountRepo) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email || existing.Handle == account.Handle {
			return repository.ErrDuplicate
		}
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *memAccountRepo) UpdateLockState(_ context.Context, id string, expectedVersion int64, failedAttempts int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if account.Version != expectedVersion {
		r.conflicts++
		return repository.ErrVersionConflict
	}
	account.FailedAttempts = failedAttempts
	account.LockedUntil = lockedUntil
	account.Version++
	r.accounts[id] = account
	r.casWrites++
	return nil
}

func (r *memAccountRepo) UpdateLastLogin(_ context.Context, id string, expectedVersion int64, at time.Time, origin domain.Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if account.Version != expectedVersion {
		r.conflicts++
		return repository.ErrVersionConflict
	}
	account.Version++
	ip := origin.IP
	device := origin.Device.Descriptor()
	account.LastLoginAt = &at
	account.LastLoginIP = &ip
	account.LastLoginDevice = &device
	r.accounts[id] = account
	return nil
}

func (r *memAccountRepo) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = hash
	account.Version++
	r.accounts[id] = account
	return nil
}

func (r *memAccountRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.Active = active
	account.Version++
	r.accounts[id] = account
	return nil
}

func (r *memAccountRepo) Ping(context.Context) error { return nil }

func (r *memAccountRepo) snapshot(id string) domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

// memTokenRepo is an in-memory TokenRepository.
type memTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]domain.SessionToken
	insertErr error
	findErr   error
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]domain.SessionToken)}
}

func (r *memTokenRepo) Insert(_ context.Context, token domain.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, exists := r.tokens[token.ValueHash]; exists {
		return repository.ErrDuplicate
	}
	r.tokens[token.ValueHash] = token
	return nil
}

func (r *memTokenRepo) FindByValue(_ context.Context, valueHash string) (*domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	token, ok := r.tokens[valueHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (r *memTokenRepo) DeleteByValue(_ context.Context, valueHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[valueHash]
	delete(r.tokens, valueHash)
	return ok, nil
}

func (r *memTokenRepo) DeleteAllForAccount(_ context.Context, accountID string) (int64, error) {
	return r.deleteWhere(func(token domain.SessionToken) bool { return token.AccountID == accountID })
}

func (r *memTokenRepo) DeleteOthersForAccount(_ context.Context, accountID string, keepValueHash string) (int64, error) {
	return r.deleteWhere(func(token domain.SessionToken) bool {
		return token.AccountID == accountID && token.ValueHash != keepValueHash
	})
}

func (r *memTokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(token domain.SessionToken) bool { return !token.ExpiresAt.After(cutoff) })
}

func (r *memTokenRepo) deleteWhere(match func(domain.SessionToken) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for hash, token := range r.tokens {
		if match(token) {
			delete(r.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (r *memTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// spyHasher stores "hashed:<password>" and counts verifications.
type spyHasher struct {
	verifies atomic.Int64
}

func (h *spyHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (h *spyHasher) Verify(password, encoded string) (bool, error) {
	h.verifies.Add(1)
	if !strings.HasPrefix(encoded, "hashed:") {
		return false, errors.New("unsupported hash")
	}
	return encoded == "hashed:"+password, nil
}

// recordingSink keeps every audit event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.LoginAuditEvent
}

func (s *recordingSink) Record(_ context.Context, event domain.LoginAuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) all() []domain.LoginAuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]domain.LoginAuditEvent, len(s.events))
	copy(copied, s.events)
	return copied
}

func (s *recordingSink) last() domain.LoginAuditEvent {
	events := s.all()
	if len(events) == 0 {
		return domain.LoginAuditEvent{}
	}
	return events[len(events)-1]
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	lockouts int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{outcomes: make(map[string]int)}
}

func (o *recordingObserver) ObserveLogin(outcome string) {
	o.mu.Lock()
	o.outcomes[outcome]++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveLockout() {
	o.mu.Lock()
	o.lockouts++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveTokenIssued(string)          {}
func (o *recordingObserver) ObserveTokensRevoked(string, int64) {}

type stubPublisher struct {
	registered    []domain.AccountRegisteredEvent
	passwords     []domain.PasswordChangedEvent
	statusChanges []domain.AccountStatusChangedEvent
}

func (p *stubPublisher) PublishLoginAudit(context.Context, domain.LoginAuditEvent) error { return nil }

func (p *stubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return nil
}

func (p *stubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.passwords = append(p.passwords, event)
	return nil
}

func (p *stubPublisher) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	p.statusChanges = append(p.statusChanges, event)
	return nil
}

func testAccount() domain.Account {
	return domain.Account{
		ID:           "acc-1",
		Email:        "cashier@store.example",
		Handle:       "cashier01",
		DisplayName:  "Front Cashier",
		Role:         "cashier",
		PasswordHash: "hashed:correct-password",
		Active:       true,
		Version:      1,
	}
}
