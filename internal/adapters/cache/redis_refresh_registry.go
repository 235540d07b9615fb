package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix         = "auth:refresh:token:"
	refreshIdentityKeyPrefix = "auth:refresh:identity:"
)

// persistScript inserts a record unless its fingerprint is already present.
// KEYS[1] record key, KEYS[2] identity set. ARGV: hash, id, identity, created, expires (ms).
var persistScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'id', ARGV[2], 'identity_id', ARGV[3],
  'created_at', ARGV[4], 'expires_at', ARGV[5],
  'rotation_count', 0, 'rotated_at', '')
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// rotateScript moves a live record from the old fingerprint to the new one.
// KEYS[1] old key, KEYS[2] new key, KEYS[3] identity set. ARGV: old hash, new hash, new expiry, at (ms), identity.
// Returns 1 on success, 0 when the old record is gone, expired or owned by
// another identity, -1 when the new key exists.
var rotateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'identity_id') ~= ARGV[5] then
  return 0
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if expires == nil or expires <= tonumber(ARGV[4]) then
  return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -1
end
redis.call('RENAME', KEYS[1], KEYS[2])
redis.call('HSET', KEYS[2], 'expires_at', ARGV[3], 'rotated_at', ARGV[4])
redis.call('HINCRBY', KEYS[2], 'rotation_count', 1)
redis.call('PEXPIREAT', KEYS[2], ARGV[3])
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// RedisRefreshRegistry keeps refresh token fingerprints in Redis hashes that
// expire with the token. Each identity has a set of its live fingerprints.
type RedisRefreshRegistry struct {
	client *redis.Client
}

func NewRedisRefreshRegistry(client *redis.Client) *RedisRefreshRegistry {
	return &RedisRefreshRegistry{client: client}
}

func (r *RedisRefreshRegistry) Persist(ctx context.Context, session domain.RefreshSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	inserted, err := persistScript.Run(ctx, r.client,
		[]string{refreshKeyPrefix + session.TokenHash, refreshIdentityKeyPrefix + session.IdentityID.String()},
		session.TokenHash,
		session.ID.String(),
		session.IdentityID.String(),
		session.CreatedAt.UnixMilli(),
		session.ExpiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	if inserted == 0 {
		return domain.ErrDuplicateToken
	}
	return nil
}

func (r *RedisRefreshRegistry) FindByToken(ctx context.Context, tokenHash string) (domain.RefreshSession, error) {
	data, err := r.client.HGetAll(ctx, refreshKeyPrefix+tokenHash).Result()
	if err != nil {
		return domain.RefreshSession{}, err
	}
	if len(data) == 0 {
		return domain.RefreshSession{}, domain.ErrNotFound
	}
	return decodeRefreshSession(tokenHash, data)
}

func (r *RedisRefreshRegistry) Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt, at time.Time) error {
	// The owner is read first so the identity set can be declared as a key.
	identity, err := r.client.HGet(ctx, refreshKeyPrefix+oldHash, "identity_id").Result()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	result, err := rotateScript.Run(ctx, r.client,
		[]string{refreshKeyPrefix + oldHash, refreshKeyPrefix + newHash, refreshIdentityKeyPrefix + identity},
		oldHash,
		newHash,
		newExpiresAt.UnixMilli(),
		at.UnixMilli(),
		identity,
	).Int()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	switch result {
	case 1:
		return nil
	case -1:
		return domain.ErrDuplicateToken
	default:
		return domain.ErrNotFound
	}
}

func (r *RedisRefreshRegistry) Revoke(ctx context.Context, tokenHash string) error {
	key := refreshKeyPrefix + tokenHash
	identity, err := r.client.HGet(ctx, key, "identity_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.SRem(ctx, refreshIdentityKeyPrefix+identity, tokenHash)
		return nil
	})
	return err
}

func (r *RedisRefreshRegistry) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) (int, error) {
	setKey := refreshIdentityKeyPrefix + identityID.String()
	hashes, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, refreshKeyPrefix+h)
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = p.Del(ctx, keys...)
		}
		p.Del(ctx, setKey)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

func (r *RedisRefreshRegistry) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.RefreshSession, error) {
	setKey := refreshIdentityKeyPrefix + identityID.String()
	hashes, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = p.HGetAll(ctx, refreshKeyPrefix+h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]domain.RefreshSession, 0, len(hashes))
	var stale []any
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			stale = append(stale, hashes[i])
			continue
		}
		session, decodeErr := decodeRefreshSession(hashes[i], data)
		if decodeErr != nil {
			return nil, decodeErr
		}
		result = append(result, session)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, setKey, stale...).Err()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// DeleteExpired prunes identity-set members whose record has expired.
// The records themselves are removed by Redis key expiry.
func (r *RedisRefreshRegistry) DeleteExpired(ctx context.Context, _ time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	pruned := 0
	iter := r.client.Scan(ctx, 0, refreshIdentityKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) && pruned < limit {
		setKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return pruned, err
		}
		for _, h := range hashes {
			if pruned >= limit {
				break
			}
			exists, err := r.client.Exists(ctx, refreshKeyPrefix+h).Result()
			if err != nil {
				return pruned, err
			}
			if exists == 0 {
				if err := r.client.SRem(ctx, setKey, h).Err(); err != nil {
					return pruned, err
				}
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, err
	}
	return pruned, nil
}

func decodeRefreshSession(tokenHash string, data map[string]string) (domain.RefreshSession, error) {
	id, err := uuid.Parse(data["id"])
	if err != nil {
		return domain.RefreshSession{}, fmt.Errorf("decode refresh record id: %w", err)
	}
	identityID, err := uuid.Parse(data["identity_id"])
	if err != nil {
		return domain.RefreshSession{}, fmt.Errorf("decode refresh record identity: %w", err)
	}
	createdAt, err := parseMillis(data["created_at"])
	if err != nil {
		return domain.RefreshSession{}, fmt.Errorf("decode refresh record created_at: %w", err)
	}
	expiresAt, err := parseMillis(data["expires_at"])
	if err != nil {
		return domain.RefreshSession{}, fmt.Errorf("decode refresh record expires_at: %w", err)
	}
	session := domain.RefreshSession{
		ID:         id,
		TokenHash:  tokenHash,
		IdentityID: identityID,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}
	if raw := data["rotation_count"]; raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			session.RotationCount = n
		}
	}
	if raw := data["rotated_at"]; raw != "" {
		if rotatedAt, convErr := parseMillis(raw); convErr == nil {
			session.RotatedAt = &rotatedAt
		}
	}
	return session, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
