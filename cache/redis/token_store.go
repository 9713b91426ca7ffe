package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/domain"
)

// Config holds the configuration for connecting to Redis.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// TokenStore implements cache.TokenStore on top of Redis. Expiry is
// delegated to Redis TTLs; consumes use GETDEL so redemption of a
// single-use credential is atomic even across multiple server instances.
type TokenStore struct {
	client *redis.Client
	prefix string
}

var _ cache.TokenStore = (*TokenStore)(nil)

// NewTokenStore connects to Redis and verifies the connection with a ping.
func NewTokenStore(ctx context.Context, cfg Config) (*TokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &TokenStore{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *TokenStore) key(parts ...string) string {
	key := s.prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (s *TokenStore) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *TokenStore) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	return json.Unmarshal(data, v)
}

func (s *TokenStore) getAndDelete(ctx context.Context, key string, v any) error {
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis getdel: %w", err)
	}
	return json.Unmarshal(data, v)
}

func (s *TokenStore) delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

func (s *TokenStore) SaveAuthCode(ctx context.Context, code *domain.AuthCode, ttl time.Duration) error {
	return s.set(ctx, s.key("auth_code", code.Code), code, ttl)
}

func (s *TokenStore) ConsumeAuthCode(ctx context.Context, code string) (*domain.AuthCode, error) {
	var ac domain.AuthCode
	if err := s.getAndDelete(ctx, s.key("auth_code", code), &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

func (s *TokenStore) SaveAccessToken(ctx context.Context, token *domain.AccessToken, ttl time.Duration) error {
	return s.set(ctx, s.key("access_token", token.AccessToken), token, ttl)
}

func (s *TokenStore) GetAccessToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	var at domain.AccessToken
	if err := s.get(ctx, s.key("access_token", token), &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *TokenStore) DeleteAccessToken(ctx context.Context, token string) (bool, error) {
	return s.delete(ctx, s.key("access_token", token))
}

func (s *TokenStore) SaveRefreshToken(ctx context.Context, refreshToken string, token *domain.AccessToken, ttl time.Duration) error {
	return s.set(ctx, s.key("refresh_token", refreshToken), token, ttl)
}

func (s *TokenStore) ConsumeRefreshToken(ctx context.Context, refreshToken string) (*domain.AccessToken, error) {
	var at domain.AccessToken
	if err := s.getAndDelete(ctx, s.key("refresh_token", refreshToken), &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *TokenStore) DeleteRefreshToken(ctx context.Context, refreshToken string) (bool, error) {
	return s.delete(ctx, s.key("refresh_token", refreshToken))
}

func (s *TokenStore) SaveSession(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	return s.set(ctx, s.key("session", session.Token), session, ttl)
}

func (s *TokenStore) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	if err := s.get(ctx, s.key("session", token), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *TokenStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.delete(ctx, s.key("session", token))
	return err
}

func (s *TokenStore) Close() error {
	return s.client.Close()
}
