package services

import (
	"context"
	"errors"
	"sync"

	"github.com/mfg-ops/ordrefab/models"
)

// ErrNoToken is returned when the session has no bearer token configured
var ErrNoToken = errors.New("no API token configured")

// ProfileFetcher loads the profile of the token holder
type ProfileFetcher interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// SessionService holds the operator's credential and caches their profile.
// It serves as the gateway's credential source and the form's owner provider.
type SessionService struct {
	token string

	mu      sync.Mutex
	fetcher ProfileFetcher
	user    *models.User
}

// NewSessionService creates a session for token
func NewSessionService(token string) *SessionService {
	return &SessionService{token: token}
}

// Token returns the bearer token
func (s *SessionService) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// SetProfileFetcher sets where CurrentUser loads the profile from. The
// gateway client needs the session to exist first, hence the setter.
func (s *SessionService) SetProfileFetcher(f ProfileFetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetcher = f
	s.user = nil
}

// CurrentUser returns the cached profile, fetching it on first use
func (s *SessionService) CurrentUser(ctx context.Context) (models.User, error) {
	s.mu.Lock()
	if s.user != nil {
		user := *s.user
		s.mu.Unlock()
		return user, nil
	}
	fetcher := s.fetcher
	s.mu.Unlock()

	if fetcher == nil {
		return models.User{}, errors.New("session has no profile source")
	}
	user, err := fetcher.CurrentUser(ctx)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return user, nil
}

// Forget drops the cached profile
func (s *SessionService) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
