package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// BusyService aggregates busy intervals for a resource from the provider's
// two busy-time sources. The free/busy query is cheap but has been observed
// to silently omit instances of recurring events, so the raw events listing
// is unioned in, with recurring series expanded per event.
type BusyService struct {
	provider CalendarAPI
	tokens   *TokenService
	identity *IdentityService
}

// NewBusyService creates a new busy-time aggregator
func NewBusyService(provider CalendarAPI, tokens *TokenService, identity *IdentityService) *BusyService {
	return &BusyService{
		provider: provider,
		tokens:   tokens,
		identity: identity,
	}
}

// BusyIntervals returns the union of both sources for the resource over
// [from, to). Overlapping intervals are not merged; slot blocking only asks
// whether any interval intersects a slot.
//
// Events explicitly marked free do NOT block availability. Resources who mark
// personal events as "free" will appear available; this is intentional and
// must not be silently overridden.
func (s *BusyService) BusyIntervals(ctx context.Context, resourceEmail string, from, to time.Time) ([]models.BusyInterval, error) {
	token, err := s.tokens.AccessToken(ctx, resourceEmail)
	if err != nil {
		return nil, err
	}

	var intervals []models.BusyInterval

	windows, err := s.provider.FreeBusy(ctx, token, []string{resourceEmail}, from, to)
	if err != nil {
		return nil, fmt.Errorf("freebusy query for %s: %w", resourceEmail, err)
	}
	for _, w := range windows[resourceEmail] {
		intervals = append(intervals, models.BusyInterval{
			Start:  w.Start,
			End:    w.End,
			Source: models.BusySourceFreeBusy,
		})
	}

	calendarID, err := s.identity.WritableCalendar(ctx, resourceEmail)
	if err != nil {
		return nil, err
	}

	events, err := s.provider.ListEvents(ctx, token, calendarID, from, to)
	if err != nil {
		return nil, fmt.Errorf("events listing for %s: %w", resourceEmail, err)
	}

	for _, ev := range events {
		if ev.Status == "cancelled" || ev.FreeBusy == "free" {
			continue
		}
		if ev.RecurrenceRule != "" {
			instances, err := s.provider.ExpandInstances(ctx, token, calendarID, ev.ID, from, to)
			if err != nil {
				return nil, fmt.Errorf("expanding recurring event %s: %w", ev.ID, err)
			}
			for _, inst := range instances {
				if inst.Status == "cancelled" || inst.FreeBusy == "free" {
					continue
				}
				intervals = append(intervals, models.BusyInterval{
					Start:            inst.Start,
					End:              inst.End,
					Source:           models.BusySourceEvents,
					RecurringEventID: ev.ID,
				})
			}
			continue
		}
		intervals = append(intervals, models.BusyInterval{
			Start:  ev.Start,
			End:    ev.End,
			Source: models.BusySourceEvents,
		})
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	return intervals, nil
}

// anyIntersects reports whether any interval overlaps [start, end).
func anyIntersects(intervals []models.BusyInterval, start, end time.Time) bool {
	for _, iv := range intervals {
		if iv.Intersects(start, end) {
			return true
		}
	}
	return false
}
