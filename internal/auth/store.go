package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jellydator/ttlcache/v2"

	"github.com/example/eco-collect/internal/repository"
)

// ErrSessionNotFound is returned for sessions that never existed, expired or
// were revoked.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server side record of a login.
type Session struct {
	ID        string          `json:"id"`
	UserID    uint            `json:"user_id"`
	UserName  string          `json:"user_name"`
	Role      repository.Role `json:"role"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SessionStore keeps session records for the lifetime of their tokens.
type SessionStore interface {
	Save(ctx context.Context, session Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore keeps sessions in Redis so several API instances share
// them.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "session:"}
}

func (s *RedisSessionStore) Save(ctx context.Context, session Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+session.ID, payload, ttl).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	payload, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart and are not shared between instances.
type MemorySessionStore struct {
	cache *ttlcache.Cache
}

func NewMemorySessionStore() *MemorySessionStore {
	cache := ttlcache.NewCache()
	cache.SkipTTLExtensionOnHit(true)
	return &MemorySessionStore{cache: cache}
}

func (s *MemorySessionStore) Save(_ context.Context, session Session, ttl time.Duration) error {
	return s.cache.SetWithTTL(session.ID, session, ttl)
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	value, err := s.cache.Get(id)
	if errors.Is(err, ttlcache.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	session, ok := value.(Session)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	err := s.cache.Remove(id)
	if errors.Is(err, ttlcache.ErrNotFound) {
		return nil
	}
	return err
}

// Close stops the expiry goroutine of the cache.
func (s *MemorySessionStore) Close() error {
	return s.cache.Close()
}
