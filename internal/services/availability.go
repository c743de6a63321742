package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// ResourceStore is the persistence surface the availability and booking flows
// need for resources.
type ResourceStore interface {
	ListAuthorized(ctx context.Context, role models.ResourceRole) ([]*models.Resource, error)
	GetByEmail(ctx context.Context, email string) (*models.Resource, error)
}

// AvailabilityService computes per-day, per-slot availability over a fixed
// slot grid. All slot math is anchored in the business timezone regardless of
// resource or caller timezone.
type AvailabilityService struct {
	busy      *BusyService
	resources ResourceStore
	loc       *time.Location
	slots     []models.Slot
	workers   int
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(busy *BusyService, resources ResourceStore, loc *time.Location, slots []models.Slot, workers int) *AvailabilityService {
	if workers < 1 {
		workers = 1
	}
	return &AvailabilityService{
		busy:      busy,
		resources: resources,
		loc:       loc,
		slots:     slots,
		workers:   workers,
	}
}

// AvailabilityInput represents input for computing availability
type AvailabilityInput struct {
	ResourceEmail   string              // single-resource mode when set
	Role            models.ResourceRole // which pool to consider
	From            time.Time           // first civil date of the range
	To              time.Time           // last civil date of the range, inclusive
	Region          string              // merchant region filter, empty = no filter
	IncludeWeekends bool
}

// DayAvailability maps slot label to the slot's result
type DayAvailability map[string]models.AvailabilityResult

// PerDayAvailability maps civil date (YYYY-MM-DD) to the day's slots
type PerDayAvailability map[string]DayAvailability

// Slots returns the configured slot grid
func (s *AvailabilityService) Slots() []models.Slot {
	return s.slots
}

// SlotByLabel looks a slot up in the grid
func (s *AvailabilityService) SlotByLabel(label string) (models.Slot, error) {
	for _, slot := range s.slots {
		if slot.Label == label {
			return slot, nil
		}
	}
	return models.Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, label)
}

// SlotWindow converts a civil date and slot label to the absolute [start, end)
// window in the business timezone.
func (s *AvailabilityService) SlotWindow(date string, slotLabel string) (time.Time, time.Time, error) {
	slot, err := s.SlotByLabel(slotLabel)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return slotWindowOnDay(day, slot, s.loc)
}

func slotWindowOnDay(day time.Time, slot models.Slot, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.Parse("15:04", slot.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse("15:04", slot.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	slotStart := time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	slotEnd := time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc)
	return slotStart, slotEnd, nil
}

// ComputeAvailability returns availability for every date in the range and
// every slot in the grid. Busy intervals are fetched once per resource for
// the whole range; fetches run concurrently but bounded to respect provider
// rate limits.
func (s *AvailabilityService) ComputeAvailability(ctx context.Context, input AvailabilityInput) (PerDayAvailability, error) {
	resources, err := s.candidateResources(ctx, input)
	if err != nil {
		return nil, err
	}

	rangeStart := time.Date(input.From.Year(), input.From.Month(), input.From.Day(), 0, 0, 0, 0, s.loc)
	rangeEnd := time.Date(input.To.Year(), input.To.Month(), input.To.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	if !rangeStart.Before(rangeEnd) {
		return nil, fmt.Errorf("invalid date range: %s to %s", input.From.Format("2006-01-02"), input.To.Format("2006-01-02"))
	}

	busyByResource := s.fetchBusyIntervals(ctx, resources, rangeStart, rangeEnd)

	result := make(PerDayAvailability)
	for day := rangeStart; day.Before(rangeEnd); day = day.AddDate(0, 0, 1) {
		if !input.IncludeWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}

		daySlots := make(DayAvailability, len(s.slots))
		for _, slot := range s.slots {
			slotStart, slotEnd, err := slotWindowOnDay(day, slot, s.loc)
			if err != nil {
				return nil, err
			}

			res := models.AvailabilityResult{FreeResources: []string{}, Languages: []string{}, Regions: []string{}}
			for _, resource := range resources {
				intervals, fetched := busyByResource[resource.Email]
				if !fetched {
					continue // busy fetch failed, treat as unavailable
				}
				if anyIntersects(intervals, slotStart, slotEnd) {
					continue
				}
				res.FreeResources = append(res.FreeResources, resource.Email)
				res.Languages = union(res.Languages, resource.Languages)
				res.Regions = union(res.Regions, resource.Regions)
			}
			res.Available = len(res.FreeResources) > 0
			daySlots[slot.Label] = res
		}
		result[day.Format("2006-01-02")] = daySlots
	}

	return result, nil
}

// FreeResourcesForSlot returns the resources free for one (date, slot) pair.
// Used by the booking flow to re-check availability right before commit. In
// single-resource mode a failed busy fetch is propagated rather than reported
// as the resource being busy: at commit time the caller must be able to tell
// "taken" from "provider down".
func (s *AvailabilityService) FreeResourcesForSlot(ctx context.Context, input AvailabilityInput, date, slotLabel string) ([]*models.Resource, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	input.From = day
	input.To = day
	input.IncludeWeekends = true // an explicit booking date is never filtered

	if input.ResourceEmail != "" {
		return s.freeSingleResource(ctx, input, day, slotLabel)
	}

	availability, err := s.ComputeAvailability(ctx, input)
	if err != nil {
		return nil, err
	}

	slotResult, ok := availability[date][slotLabel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slotLabel)
	}

	var free []*models.Resource
	for _, email := range slotResult.FreeResources {
		resource, err := s.resources.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if resource != nil {
			free = append(free, resource)
		}
	}
	return free, nil
}

func (s *AvailabilityService) freeSingleResource(ctx context.Context, input AvailabilityInput, day time.Time, slotLabel string) ([]*models.Resource, error) {
	resources, err := s.candidateResources(ctx, input)
	if err != nil {
		return nil, err
	}
	resource := resources[0]

	slot, err := s.SlotByLabel(slotLabel)
	if err != nil {
		return nil, err
	}
	slotStart, slotEnd, err := slotWindowOnDay(day, slot, s.loc)
	if err != nil {
		return nil, err
	}

	intervals, err := s.busy.BusyIntervals(ctx, resource.Email, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if anyIntersects(intervals, slotStart, slotEnd) {
		return nil, nil
	}
	return []*models.Resource{resource}, nil
}

func (s *AvailabilityService) candidateResources(ctx context.Context, input AvailabilityInput) ([]*models.Resource, error) {
	if input.ResourceEmail != "" {
		resource, err := s.resources.GetByEmail(ctx, input.ResourceEmail)
		if err != nil {
			return nil, err
		}
		if resource == nil || !resource.Authorized {
			return nil, ErrNotAuthorized
		}
		return []*models.Resource{resource}, nil
	}

	all, err := s.resources.ListAuthorized(ctx, input.Role)
	if err != nil {
		return nil, err
	}

	var eligible []*models.Resource
	for _, resource := range all {
		if resource.EligibleFor(input.Region) {
			eligible = append(eligible, resource)
		}
	}
	return eligible, nil
}

// fetchBusyIntervals fans out one busy-interval fetch per resource over the
// whole range, bounded by the worker pool. A failed fetch is logged and the
// resource is left out of the map, which marks it unavailable everywhere.
func (s *AvailabilityService) fetchBusyIntervals(ctx context.Context, resources []*models.Resource, from, to time.Time) map[string][]models.BusyInterval {
	busyByResource := make(map[string][]models.BusyInterval, len(resources))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)

	for _, resource := range resources {
		wg.Add(1)
		go func(resource *models.Resource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			intervals, err := s.busy.BusyIntervals(ctx, resource.Email, from, to)
			if err != nil {
				log.Printf("[AVAILABILITY] Busy fetch failed for %s: %v", resource.Email, err)
				return
			}
			mu.Lock()
			busyByResource[resource.Email] = intervals
			mu.Unlock()
		}(resource)
	}
	wg.Wait()

	return busyByResource
}

// union merges b into a, keeping entries unique and sorted for stable output
func union(a []string, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		seen[v] = true
	}
	merged := make([]string, 0, len(seen))
	for v := range seen {
		merged = append(merged, v)
	}
	sort.Strings(merged)
	return merged
}
