package services

import (
	"context"
	"errors"
	"time"

	"go.wtyk.dev/authd/cache"
	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/internal/metrics"
)

// ErrNoSession is returned when a session token is absent, expired, or was
// cleared.
var ErrNoSession = errors.New("no valid session")

// SessionService manages browser login sessions. Sessions live in the
// credential store under their own TTL; there is no sliding renewal.
type SessionService struct {
	store cache.TokenStore
	users domain.UserRepository
	ttl   time.Duration
}

func NewSessionService(store cache.TokenStore, users domain.UserRepository, ttl time.Duration) *SessionService {
	return &SessionService{store: store, users: users, ttl: ttl}
}

// CreateSession mints a session for a logged-in user and returns the token
// for the cookie.
func (s *SessionService) CreateSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	token, err := randomHex(tokenBytes)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.SaveSession(ctx, sess, s.ttl); err != nil {
		return nil, err
	}
	metrics.SessionsCreatedTotal.Inc()
	return sess, nil
}

// ValidateSession resolves a session token from a cookie. A session whose
// user has since been deleted is dead, same as an expired one.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, ErrNoSession
	}

	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrNoSession
	}
	return sess, nil
}

// ClearSession removes a session, logging the user out.
func (s *SessionService) ClearSession(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}
