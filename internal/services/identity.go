package services

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// IdentityService resolves which provider calendar a resource can actually be
// booked on. Results are cached per resource; the orchestrator invalidates
// the cache when a write is rejected for access-role reasons.
type IdentityService struct {
	provider CalendarAPI
	tokens   *TokenService

	mu    sync.RWMutex
	cache map[string]string
}

// NewIdentityService creates a new identity service
func NewIdentityService(provider CalendarAPI, tokens *TokenService) *IdentityService {
	return &IdentityService{
		provider: provider,
		tokens:   tokens,
		cache:    make(map[string]string),
	}
}

// WritableCalendar returns the calendar id the resource can be booked on.
// Owner/writer calendars qualify; the resource's native primary calendar wins
// over externally-synced read-through calendars, which commonly reject writes
// even when the role claims ownership.
func (s *IdentityService) WritableCalendar(ctx context.Context, resourceEmail string) (string, error) {
	s.mu.RLock()
	cached, ok := s.cache[resourceEmail]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	token, err := s.tokens.AccessToken(ctx, resourceEmail)
	if err != nil {
		return "", err
	}

	calendars, err := s.provider.ListCalendars(ctx, token)
	if err != nil {
		return "", fmt.Errorf("listing calendars for %s: %w", resourceEmail, err)
	}

	var primary, native, synced string
	for _, cal := range calendars {
		if !cal.Writable() {
			continue
		}
		switch {
		case cal.Type == "primary":
			if primary == "" {
				primary = cal.ID
			}
		case cal.ExternallySynced():
			// Last resort only
			if synced == "" {
				synced = cal.ID
			}
		default:
			if native == "" {
				native = cal.ID
			}
		}
	}
	chosen := primary
	if chosen == "" {
		chosen = native
	}
	if chosen == "" {
		chosen = synced
	}
	if chosen == "" {
		log.Printf("[IDENTITY] No writable calendar for %s among %d calendars", resourceEmail, len(calendars))
		return "", ErrNoWritableCalendar
	}

	s.mu.Lock()
	s.cache[resourceEmail] = chosen
	s.mu.Unlock()

	return chosen, nil
}

// Invalidate drops the cached calendar id for the resource. Called when a
// booking write fails in a way that indicates a stale identity.
func (s *IdentityService) Invalidate(resourceEmail string) {
	s.mu.Lock()
	delete(s.cache, resourceEmail)
	s.mu.Unlock()
	log.Printf("[IDENTITY] Invalidated cached calendar for %s", resourceEmail)
}
