package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/repository"
)

const scanBatch = 256

// insertTokenScript writes the record and its account index in one step.
// The index TTL only ever grows so it covers the longest-lived member.
var insertTokenScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[3])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[2]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// TokenStore implements port.TokenRepository on Redis. Each token lives under
// <prefix>:value:<hash> and is indexed in the <prefix>:account:<id> set.
// Keys outlive expiry by the retention window so expired tokens remain visible.
type TokenStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

type tokenRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Scope     string    `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenStore constructs a Redis-backed token store.
func NewTokenStore(client *redis.Client, prefix string, retention time.Duration) *TokenStore {
	if retention < 0 {
		retention = 0
	}
	return &TokenStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used to compute key TTLs.
func (s *TokenStore) WithClock(clock func() time.Time) *TokenStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Insert stores the token unless its hash is already present.
func (s *TokenStore) Insert(ctx context.Context, token domain.SessionToken) error {
	payload, err := json.Marshal(tokenRecord{
		ID:        token.ID,
		AccountID: token.AccountID,
		Scope:     token.Scope,
		IssuedAt:  token.IssuedAt.UTC(),
		ExpiresAt: token.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}

	ttl := token.ExpiresAt.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = time.Second
	}

	stored, err := insertTokenScript.Run(ctx, s.client,
		[]string{s.valueKey(token.ValueHash), s.accountKey(token.AccountID)},
		payload, ttl.Milliseconds(), token.ValueHash,
	).Int()
	if err != nil {
		return fmt.Errorf("redis insert token: %w", err)
	}
	if stored == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

// FindByValue returns the token record for valueHash, expired or not.
func (s *TokenStore) FindByValue(ctx context.Context, valueHash string) (*domain.SessionToken, error) {
	record, err := s.load(ctx, valueHash)
	if err != nil {
		return nil, err
	}
	return &domain.SessionToken{
		ID:        record.ID,
		ValueHash: valueHash,
		AccountID: record.AccountID,
		Scope:     record.Scope,
		IssuedAt:  record.IssuedAt.UTC(),
		ExpiresAt: record.ExpiresAt.UTC(),
	}, nil
}

func (s *TokenStore) load(ctx context.Context, valueHash string) (*tokenRecord, error) {
	raw, err := s.client.Get(ctx, s.valueKey(valueHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode token record: %w", err)
	}
	return &record, nil
}

// DeleteByValue removes one token and reports whether this call removed it.
// A missing token is not an error.
func (s *TokenStore) DeleteByValue(ctx context.Context, valueHash string) (bool, error) {
	record, err := s.load(ctx, valueHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	var deleted *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.valueKey(valueHash))
		pipe.SRem(ctx, s.accountKey(record.AccountID), valueHash)
		return nil
	}); err != nil {
		return false, fmt.Errorf("redis delete token: %w", err)
	}
	return deleted.Val() > 0, nil
}

// DeleteAllForAccount removes every token of accountID.
func (s *TokenStore) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	return s.deleteFromAccount(ctx, accountID, "")
}

// DeleteOthersForAccount removes every token of accountID except keepValueHash.
func (s *TokenStore) DeleteOthersForAccount(ctx context.Context, accountID string, keepValueHash string) (int64, error) {
	return s.deleteFromAccount(ctx, accountID, keepValueHash)
}

func (s *TokenStore) deleteFromAccount(ctx context.Context, accountID, keep string) (int64, error) {
	accountKey := s.accountKey(accountID)
	hashes, err := s.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis smembers: %w", err)
	}

	victims := make([]string, 0, len(hashes))
	keys := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		if hash == keep {
			continue
		}
		victims = append(victims, hash)
		keys = append(keys, s.valueKey(hash))
	}
	if len(victims) == 0 {
		return 0, nil
	}

	var deleted *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		members := make([]any, len(victims))
		for i, hash := range victims {
			members[i] = hash
		}
		pipe.SRem(ctx, accountKey, members...)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("redis delete account tokens: %w", err)
	}

	return deleted.Val(), nil
}

// DeleteExpiredBefore removes tokens whose expiry is at or before cutoff.
// Keys past the retention window are already evicted by Redis.
func (s *TokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		removed int64
		cursor  uint64
	)
	match := s.valueKey("*")
	prefixLen := len(s.valueKey(""))

	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			hash := key[prefixLen:]
			record, err := s.load(ctx, hash)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return removed, err
			}
			if record.ExpiresAt.After(cutoff) {
				continue
			}
			deleted, err := s.DeleteByValue(ctx, hash)
			if err != nil {
				return removed, err
			}
			if deleted {
				removed++
			}
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (s *TokenStore) valueKey(hash string) string {
	return fmt.Sprintf("%s:value:%s", s.prefix, hash)
}

func (s *TokenStore) accountKey(accountID string) string {
	return fmt.Sprintf("%s:account:%s", s.prefix, accountID)
}

var _ port.TokenRepository = (*TokenStore)(nil)
