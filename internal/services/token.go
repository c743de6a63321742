package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// GrantStore persists OAuth grants per resource. Get returns (nil, nil) when
// no grant exists. Injected so tests can substitute an in-memory fake and
// production can back it with durable storage.
type GrantStore interface {
	Get(ctx context.Context, resourceEmail string) (*models.OAuthGrant, error)
	Save(ctx context.Context, grant *models.OAuthGrant) error
}

// TokenService is the single place grants are written outside the initial
// authorization handshake. It hands out access tokens, refreshing them
// proactively inside the expiry buffer.
type TokenService struct {
	store  GrantStore
	oauth  OAuthAPI
	buffer time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenService creates a new token service
func NewTokenService(store GrantStore, oauth OAuthAPI, buffer time.Duration) *TokenService {
	return &TokenService{
		store:  store,
		oauth:  oauth,
		buffer: buffer,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// resourceLock serializes refreshes per resource so two near-simultaneous
// callers end up with one refresh and both get a usable token.
func (s *TokenService) resourceLock(resourceEmail string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[resourceEmail]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[resourceEmail] = lock
	}
	return lock
}

// AccessToken returns a valid access token for the resource, refreshing the
// grant if it is within the expiry buffer. Fails with ErrNotAuthorized when no
// grant exists and ErrReauthorizationRequired when the refresh token was
// rejected; the stale grant is left in place for diagnostics.
func (s *TokenService) AccessToken(ctx context.Context, resourceEmail string) (string, error) {
	lock := s.resourceLock(resourceEmail)
	lock.Lock()
	defer lock.Unlock()

	grant, err := s.store.Get(ctx, resourceEmail)
	if err != nil {
		return "", fmt.Errorf("loading grant for %s: %w", resourceEmail, err)
	}
	if grant == nil {
		return "", ErrNotAuthorized
	}

	if s.now().UTC().Before(grant.Expiry.Add(-s.buffer)) {
		return grant.AccessToken, nil
	}

	tokens, err := s.oauth.RefreshToken(ctx, grant.RefreshToken)
	if err != nil {
		log.Printf("[TOKEN] Refresh failed for %s: %v", resourceEmail, err)
		return "", err
	}

	grant.AccessToken = tokens.AccessToken
	grant.Expiry = models.NewSQLiteTime(s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second))
	// The provider may omit the refresh token on refresh; keep the old one
	if tokens.RefreshToken != "" {
		grant.RefreshToken = tokens.RefreshToken
	}
	if tokens.ProviderUserID != "" {
		grant.ProviderUserID = tokens.ProviderUserID
	}

	if err := s.store.Save(ctx, grant); err != nil {
		return "", fmt.Errorf("saving refreshed grant for %s: %w", resourceEmail, err)
	}

	return grant.AccessToken, nil
}

// StoreInitialGrant records the grant produced by the authorization-code
// handshake.
func (s *TokenService) StoreInitialGrant(ctx context.Context, resourceEmail string, tokens *TokenResponse, scopes []string) error {
	lock := s.resourceLock(resourceEmail)
	lock.Lock()
	defer lock.Unlock()

	grant := &models.OAuthGrant{
		ResourceEmail:  resourceEmail,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		Expiry:         models.NewSQLiteTime(s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)),
		Scopes:         scopes,
		ProviderUserID: tokens.ProviderUserID,
		UpdatedAt:      models.Now(),
	}
	return s.store.Save(ctx, grant)
}
