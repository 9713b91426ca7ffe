package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.wtyk.dev/authd/domain"
)

// MemoryTokenStore is an in-process TokenStore backed by a single TTL cache.
// Records are stored as JSON under namespaced keys, the same layout the
// Redis backend uses. Suitable for tests and single-instance deployments;
// credentials do not survive a restart.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, []byte]
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates a store and starts its expiry loop.
func NewMemoryTokenStore() *MemoryTokenStore {
	c := ttlcache.New[string, []byte](
		// A Get must not extend a credential's lifetime.
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &MemoryTokenStore{cache: c}
}

func (s *MemoryTokenStore) set(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	s.cache.Set(key, data, ttl)
	return nil
}

func (s *MemoryTokenStore) get(key string, v any) error {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return ErrNotFound
	}
	if err := json.Unmarshal(item.Value(), v); err != nil {
		return fmt.Errorf("unmarshal credential: %w", err)
	}
	return nil
}

// getAndDelete is the atomic consume primitive. ttlcache serializes
// GetAndDelete internally, so concurrent consumers of one key see the
// value at most once.
func (s *MemoryTokenStore) getAndDelete(key string, v any) error {
	item, present := s.cache.GetAndDelete(key)
	if !present || item == nil || item.IsExpired() {
		return ErrNotFound
	}
	if err := json.Unmarshal(item.Value(), v); err != nil {
		return fmt.Errorf("unmarshal credential: %w", err)
	}
	return nil
}

func (s *MemoryTokenStore) delete(key string) bool {
	if s.cache.Get(key) == nil {
		return false
	}
	s.cache.Delete(key)
	return true
}

func (s *MemoryTokenStore) SaveAuthCode(_ context.Context, code *domain.AuthCode, ttl time.Duration) error {
	return s.set(nsAuthCode+code.Code, code, ttl)
}

func (s *MemoryTokenStore) ConsumeAuthCode(_ context.Context, code string) (*domain.AuthCode, error) {
	var ac domain.AuthCode
	if err := s.getAndDelete(nsAuthCode+code, &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

func (s *MemoryTokenStore) SaveAccessToken(_ context.Context, token *domain.AccessToken, ttl time.Duration) error {
	return s.set(nsAccessToken+token.AccessToken, token, ttl)
}

func (s *MemoryTokenStore) GetAccessToken(_ context.Context, token string) (*domain.AccessToken, error) {
	var at domain.AccessToken
	if err := s.get(nsAccessToken+token, &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *MemoryTokenStore) DeleteAccessToken(_ context.Context, token string) (bool, error) {
	return s.delete(nsAccessToken + token), nil
}

func (s *MemoryTokenStore) SaveRefreshToken(_ context.Context, refreshToken string, token *domain.AccessToken, ttl time.Duration) error {
	return s.set(nsRefreshToken+refreshToken, token, ttl)
}

func (s *MemoryTokenStore) ConsumeRefreshToken(_ context.Context, refreshToken string) (*domain.AccessToken, error) {
	var at domain.AccessToken
	if err := s.getAndDelete(nsRefreshToken+refreshToken, &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *MemoryTokenStore) DeleteRefreshToken(_ context.Context, refreshToken string) (bool, error) {
	return s.delete(nsRefreshToken + refreshToken), nil
}

func (s *MemoryTokenStore) SaveSession(_ context.Context, session *domain.Session, ttl time.Duration) error {
	return s.set(nsSession+session.Token, session, ttl)
}

func (s *MemoryTokenStore) GetSession(_ context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	if err := s.get(nsSession+token, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryTokenStore) DeleteSession(_ context.Context, token string) error {
	s.cache.Delete(nsSession + token)
	return nil
}

func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}
