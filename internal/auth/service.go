package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 30 * 24 * time.Hour
	defaultSessionRetention = 30 * 24 * time.Hour
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session")
)

// Store is the persistence surface the service needs: the user table and
// the session registry. *Repository is the production implementation.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	CreateSession(ctx context.Context, username, tokenHash string) (Session, error)
	FindSession(ctx context.Context, tokenHash, username string, cutoff time.Time) (Session, error)
	RotateSession(ctx context.Context, oldID, username, newTokenHash string) (Session, error)
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
}

type Service struct {
	store            Store
	hasher           *Hasher
	codec            *Codec
	accessTTL        time.Duration
	refreshTTL       time.Duration
	sessionRetention time.Duration
}

func NewService(store Store, hasher *Hasher, codec *Codec) *Service {
	return &Service{
		store:            store,
		hasher:           hasher,
		codec:            codec,
		accessTTL:        defaultAccessTTL,
		refreshTTL:       defaultRefreshTTL,
		sessionRetention: defaultSessionRetention,
	}
}

func (s *Service) WithTokenTTLs(accessTTL, refreshTTL, sessionRetention time.Duration) {
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	if sessionRetention > 0 {
		s.sessionRetention = sessionRetention
	}
}

// RefreshTTL is exposed so the HTTP layer can align the cookie lifetime
// with the token it carries.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *Service) Register(ctx context.Context, username, password string) (TokenPair, error) {
	if username == "" || password == "" {
		return TokenPair{}, ErrMissingCredentials
	}
	if err := CheckPasswordStrength(password); err != nil {
		return TokenPair{}, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.store.CreateUser(ctx, username, passwordHash)
	if err != nil {
		return TokenPair{}, err
	}

	return s.issuePair(ctx, user)
}

// Login deliberately reports the same error for an unknown username and a
// wrong password so responses cannot be used to enumerate accounts.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if username == "" || password == "" {
		return TokenPair{}, ErrMissingCredentials
	}

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return TokenPair{}, ErrInvalidCredentials
	}

	return s.issuePair(ctx, user)
}

// Refresh exchanges a valid refresh token for a fresh pair. Validity needs
// both a good signature and a live session row; the rotation consumes the
// row, so presenting the same raw token again fails. When two requests
// race on one token the store's per-row delete lets exactly one through.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	claims, err := s.codec.Verify(rawRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	tokenHash := HashToken(rawRefresh)
	cutoff := time.Now().UTC().Add(-s.sessionRetention)

	session, err := s.store.FindSession(ctx, tokenHash, claims.Subject, cutoff)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return TokenPair{}, ErrInvalidSession
		}
		return TokenPair{}, err
	}

	user, err := s.store.UserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrInvalidSession
		}
		return TokenPair{}, err
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := s.store.RotateSession(ctx, session.ID, user.Username, HashToken(pair.RefreshToken)); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return TokenPair{}, ErrInvalidSession
		}
		return TokenPair{}, err
	}

	return pair, nil
}

// Logout revokes the session for the presented token. It succeeds whether
// or not a matching session existed; only a store failure is an error.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	return s.store.DeleteSessionByHash(ctx, HashToken(rawRefresh))
}

// Verify checks an access token statelessly: signature, expiry, and
// audience only. It never consults the session registry, which is why
// access tokens cannot be revoked before their natural expiry.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.codec.Verify(token)
}

func (s *Service) issueTokens(user User) (TokenPair, error) {
	access, err := s.codec.Issue(user, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.codec.Issue(user, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) issuePair(ctx context.Context, user User) (TokenPair, error) {
	pair, err := s.issueTokens(user)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := s.store.CreateSession(ctx, user.Username, HashToken(pair.RefreshToken)); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}
