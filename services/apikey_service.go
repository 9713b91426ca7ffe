package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/internal/metrics"
	"go.wtyk.dev/authd/log"
)

// ErrInvalidAPIKey covers every validation failure: bad format, unknown
// digest, revoked, expired, or owner gone. Callers get one uniform error so
// responses cannot be used to probe which case applied.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyService provisions and validates long-lived API keys. Keys are
// bearer credentials outside the OAuth flow: no scopes, no rotation, lookup
// by digest only.
type APIKeyService struct {
	keys   domain.APIKeyRepository
	users  domain.UserRepository
	logger log.Logger
}

func NewAPIKeyService(keys domain.APIKeyRepository, users domain.UserRepository, logger log.Logger) *APIKeyService {
	return &APIKeyService{keys: keys, users: users, logger: logger}
}

// hashAPIKey is the storage digest of a plaintext key.
func hashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey mints a new key for the user and returns the plaintext
// alongside the stored record. The plaintext is recoverable from this return
// value only; the record keeps just its digest and display prefix.
//
// The per-user active-key quota is the caller's check: provisioning
// endpoints verify it before invoking Generate.
func (s *APIKeyService) GenerateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("read random bytes: %w", err)
	}
	plaintext := domain.APIKeyTag + hex.EncodeToString(raw)

	key := &domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      hashAPIKey(plaintext),
		KeyPrefix: plaintext[:domain.APIKeyPrefixLength],
		Name:      name,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}

	s.logger.Info(ctx, "api key created", map[string]interface{}{
		"api_key_id": key.ID,
		"user_id":    userID,
		"key_prefix": key.KeyPrefix,
	})
	return plaintext, key, nil
}

// ValidateAPIKey resolves a presented plaintext to its owning user. The
// format gate runs first: anything without the exact tag and length is
// rejected before a digest is computed or a store touched. On success the
// key's last_used_at is bumped best-effort; a failed bump never fails the
// validation.
func (s *APIKeyService) ValidateAPIKey(ctx context.Context, plaintext string) (*domain.APIKey, *domain.User, error) {
	if !domain.LooksLikeAPIKey(plaintext) {
		metrics.APIKeyValidationsTotal.WithLabelValues("malformed").Inc()
		return nil, nil, ErrInvalidAPIKey
	}

	key, err := s.keys.GetAPIKeyByHash(ctx, hashAPIKey(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			metrics.APIKeyValidationsTotal.WithLabelValues("unknown").Inc()
			return nil, nil, ErrInvalidAPIKey
		}
		return nil, nil, err
	}

	if !key.IsActive || key.Expired(time.Now().UTC()) {
		metrics.APIKeyValidationsTotal.WithLabelValues("inactive").Inc()
		return nil, nil, ErrInvalidAPIKey
	}

	user, err := s.users.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.APIKeyValidationsTotal.WithLabelValues("user_gone").Inc()
			return nil, nil, ErrInvalidAPIKey
		}
		return nil, nil, err
	}
	if user.IsDeleted {
		metrics.APIKeyValidationsTotal.WithLabelValues("user_gone").Inc()
		return nil, nil, ErrInvalidAPIKey
	}

	if err := s.keys.TouchLastUsed(ctx, key.ID); err != nil {
		s.logger.Warn(ctx, "failed to update api key last_used_at", err, map[string]interface{}{
			"api_key_id": key.ID,
		})
	}

	metrics.APIKeyValidationsTotal.WithLabelValues("ok").Inc()
	return key, user, nil
}

// ListAPIKeys returns the user's keys newest first. Digests never leave the
// repository layer in serialized form; the domain type hides them from JSON.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	return s.keys.ListAPIKeys(ctx, userID)
}

// CountActiveAPIKeys reports how many of the user's keys are active and
// unexpired, for quota checks.
func (s *APIKeyService) CountActiveAPIKeys(ctx context.Context, userID string) (int, error) {
	keys, err := s.keys.ListAPIKeys(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	n := 0
	for _, k := range keys {
		if k.IsActive && !k.Expired(now) {
			n++
		}
	}
	return n, nil
}

// RevokeAPIKey deactivates a key owned by userID. A key owned by someone
// else surfaces as domain.ErrAPIKeyNotFound, same as a key that never
// existed.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id, userID string) error {
	if err := s.keys.RevokeAPIKey(ctx, id, userID); err != nil {
		return err
	}
	s.logger.Info(ctx, "api key revoked", map[string]interface{}{
		"api_key_id": id,
		"user_id":    userID,
	})
	return nil
}

// DeleteAllAPIKeys hard-deletes every key for the user. Account deletion
// only; everything else is soft revocation.
func (s *APIKeyService) DeleteAllAPIKeys(ctx context.Context, userID string) (int64, error) {
	return s.keys.DeleteAPIKeysForUser(ctx, userID)
}
