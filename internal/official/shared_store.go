package official

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/official-relay/internal/domain"
)

const sharedKeyPrefix = "official:credential:"

// clearIfHolds deletes KEYS[1] only while its JSON value still carries token ARGV[1].
var clearIfHolds = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local ok, cred = pcall(cjson.decode, raw)
if ok and type(cred) == "table" and cred["token"] == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCredentialStore keeps the access token in Redis until it expires.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

// NewRedisCredentialStore namespaces the key by store environment and appid.
func NewRedisCredentialStore(client *redis.Client, envID, appID string) *RedisCredentialStore {
	return &RedisCredentialStore{
		client: client,
		key:    fmt.Sprintf("%s%s:%s", sharedKeyPrefix, envID, appID),
	}
}

func (s *RedisCredentialStore) Load(ctx context.Context) (domain.Credential, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Credential{}, nil
	}
	if err != nil {
		return domain.Credential{}, err
	}
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return domain.Credential{}, fmt.Errorf("decode shared credential: %w", err)
	}
	return cred, nil
}

// Save stores cred with a TTL that ends at its expiry.
func (s *RedisCredentialStore) Save(ctx context.Context, cred domain.Credential) error {
	ttl := time.Until(cred.ExpiresAt)
	if cred.Token == "" || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

// Clear deletes the stored credential only if it still holds token. The compare
// and the delete run as one script so a token saved by another instance survives.
func (s *RedisCredentialStore) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return clearIfHolds.Run(ctx, s.client, []string{s.key}, token).Err()
}
