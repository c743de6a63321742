package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

var testLoc = time.FixedZone("+08", 8*3600)

func testSlots() []models.Slot {
	return []models.Slot{
		{Label: "09:00-11:00", Start: "09:00", End: "11:00"},
		{Label: "11:00-13:00", Start: "11:00", End: "13:00"},
		{Label: "14:00-16:00", Start: "14:00", End: "16:00"},
		{Label: "16:00-18:00", Start: "16:00", End: "18:00"},
	}
}

func trainer(email string, languages, regions []string) *models.Resource {
	return &models.Resource{
		Email:      email,
		Name:       email,
		Role:       models.ResourceRoleTrainer,
		Languages:  languages,
		Regions:    regions,
		Authorized: true,
	}
}

func newTestAvailability(calendar *fakeCalendar, resources []*models.Resource) *AvailabilityService {
	store := newFakeGrantStore()
	for _, r := range resources {
		store.put(r.Email, "access-"+r.Email, "refresh", fixedNow().Add(time.Hour))
	}
	tokens := newTestTokenService(store, &fakeOAuth{})
	identity := NewIdentityService(calendar, tokens)
	busy := NewBusyService(calendar, tokens, identity)
	return NewAvailabilityService(busy, &fakeResourceStore{resources: resources}, testLoc, testSlots(), 2)
}

func TestComputeAvailabilityWeekendHandling(t *testing.T) {
	resources := []*models.Resource{trainer("a@example.com", nil, nil)}
	svc := newTestAvailability(newFakeCalendar(), resources)

	friday := time.Date(2026, 3, 6, 0, 0, 0, 0, testLoc)
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, testLoc)

	tests := []struct {
		name            string
		includeWeekends bool
		wantDays        int
	}{
		{"weekends excluded by default", false, 2},
		{"weekends included on request", true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
				Role:            models.ResourceRoleTrainer,
				From:            friday,
				To:              monday,
				IncludeWeekends: tt.includeWeekends,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != tt.wantDays {
				t.Errorf("expected %d days, got %d", tt.wantDays, len(result))
			}
			if _, ok := result["2026-03-07"]; ok != tt.includeWeekends {
				t.Errorf("Saturday present=%v, want %v", ok, tt.includeWeekends)
			}
		})
	}
}

func TestComputeAvailabilitySlotBlocking(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, testLoc)

	calendar := newFakeCalendar()
	// Busy 09:30-10:30, overlapping only the first slot
	calendar.freebusy["a@example.com"] = []FreeBusyWindow{
		{Start: monday.Add(9*time.Hour + 30*time.Minute), End: monday.Add(10*time.Hour + 30*time.Minute)},
	}

	resources := []*models.Resource{trainer("a@example.com", nil, nil)}
	svc := newTestAvailability(calendar, resources)

	result, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
		Role: models.ResourceRoleTrainer,
		From: monday,
		To:   monday,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day := result["2026-03-02"]
	if day["09:00-11:00"].Available {
		t.Error("expected 09:00-11:00 blocked")
	}
	if !day["11:00-13:00"].Available {
		t.Error("expected 11:00-13:00 free")
	}
	if !day["14:00-16:00"].Available {
		t.Error("expected 14:00-16:00 free")
	}
}

func TestComputeAvailabilityAggregatesLanguagesAndRegions(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, testLoc)

	resources := []*models.Resource{
		trainer("a@example.com", []string{"en", "zh"}, []string{"central"}),
		trainer("b@example.com", []string{"ms"}, []string{"east"}),
	}
	svc := newTestAvailability(newFakeCalendar(), resources)

	result, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
		Role: models.ResourceRoleTrainer,
		From: monday,
		To:   monday,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slot := result["2026-03-02"]["09:00-11:00"]
	if len(slot.FreeResources) != 2 {
		t.Fatalf("expected both trainers free, got %v", slot.FreeResources)
	}
	wantLangs := []string{"en", "ms", "zh"}
	if len(slot.Languages) != len(wantLangs) {
		t.Fatalf("expected languages %v, got %v", wantLangs, slot.Languages)
	}
	for i, l := range wantLangs {
		if slot.Languages[i] != l {
			t.Errorf("expected sorted language %q at %d, got %q", l, i, slot.Languages[i])
		}
	}
}

func TestComputeAvailabilityRegionFilter(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, testLoc)

	resources := []*models.Resource{
		trainer("central@example.com", nil, []string{"central"}),
		trainer("anywhere@example.com", nil, nil), // empty regions serve anywhere
	}
	svc := newTestAvailability(newFakeCalendar(), resources)

	result, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
		Role:   models.ResourceRoleTrainer,
		From:   monday,
		To:     monday,
		Region: "east",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slot := result["2026-03-02"]["09:00-11:00"]
	if len(slot.FreeResources) != 1 || slot.FreeResources[0] != "anywhere@example.com" {
		t.Errorf("expected only the unrestricted trainer, got %v", slot.FreeResources)
	}
}

func TestComputeAvailabilityFailedFetchMarksUnavailable(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, testLoc)

	calendar := newFakeCalendar()
	calendar.freebusyErr = map[string]error{"broken@example.com": ErrProviderUnavailable}

	resources := []*models.Resource{
		trainer("broken@example.com", nil, nil),
		trainer("healthy@example.com", nil, nil),
	}
	svc := newTestAvailability(calendar, resources)

	result, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
		Role: models.ResourceRoleTrainer,
		From: monday,
		To:   monday,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slot := result["2026-03-02"]["09:00-11:00"]
	if !slot.Available {
		t.Fatal("expected slot still available via the healthy trainer")
	}
	if len(slot.FreeResources) != 1 || slot.FreeResources[0] != "healthy@example.com" {
		t.Errorf("expected only the healthy trainer, got %v", slot.FreeResources)
	}
}

func TestComputeAvailabilitySingleResourceMode(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, testLoc)

	revoked := trainer("revoked@example.com", nil, nil)
	revoked.Authorized = false
	resources := []*models.Resource{trainer("a@example.com", nil, nil), revoked}
	svc := newTestAvailability(newFakeCalendar(), resources)

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"known authorized resource", "a@example.com", nil},
		{"unknown resource", "nobody@example.com", ErrNotAuthorized},
		{"revoked resource", "revoked@example.com", ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ComputeAvailability(context.Background(), AvailabilityInput{
				ResourceEmail: tt.email,
				From:          monday,
				To:            monday,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFreeResourcesForSlotPropagatesFetchError(t *testing.T) {
	// Pool mode degrades gracefully, but the commit-time re-check of one
	// named resource must distinguish "busy" from "provider down".
	calendar := newFakeCalendar()
	calendar.freebusyErr = map[string]error{"a@example.com": ErrProviderUnavailable}
	svc := newTestAvailability(calendar, []*models.Resource{trainer("a@example.com", nil, nil)})

	_, err := svc.FreeResourcesForSlot(context.Background(), AvailabilityInput{
		ResourceEmail: "a@example.com",
	}, "2026-03-02", "09:00-11:00")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSlotWindowAnchoredInBusinessTimezone(t *testing.T) {
	svc := newTestAvailability(newFakeCalendar(), nil)

	start, end, err := svc.SlotWindow("2026-03-02", "09:00-11:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 09:00 at +08:00 is 01:00 UTC
	if !start.UTC().Equal(time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", start.UTC())
	}
	if !end.UTC().Equal(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %v", end.UTC())
	}
}

func TestSlotByLabelUnknown(t *testing.T) {
	svc := newTestAvailability(newFakeCalendar(), nil)

	if _, err := svc.SlotByLabel("10:00-12:00"); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("expected ErrUnknownSlot, got %v", err)
	}
}
