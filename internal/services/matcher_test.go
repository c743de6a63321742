package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

func TestSelectRotation(t *testing.T) {
	free := []*models.Resource{
		trainer("a@example.com", nil, nil),
		trainer("b@example.com", nil, nil),
		trainer("c@example.com", nil, nil),
	}

	tests := []struct {
		name string
		last map[string]time.Time
		want string
	}{
		{
			name: "never-assigned goes first",
			last: map[string]time.Time{
				"a@example.com": fixedNow().Add(-time.Hour),
				"c@example.com": fixedNow().Add(-2 * time.Hour),
			},
			want: "b@example.com",
		},
		{
			name: "least recently assigned wins",
			last: map[string]time.Time{
				"a@example.com": fixedNow().Add(-time.Hour),
				"b@example.com": fixedNow().Add(-3 * time.Hour),
				"c@example.com": fixedNow().Add(-2 * time.Hour),
			},
			want: "b@example.com",
		},
		{
			name: "email breaks ties",
			last: map[string]time.Time{},
			want: "a@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments := newFakeAssignments()
			assignments.last = tt.last
			matcher := NewMatcherService(assignments)

			selected, err := matcher.Select(context.Background(), free, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if selected.Resource.Email != tt.want {
				t.Errorf("expected %s, got %s", tt.want, selected.Resource.Email)
			}
			if selected.Reason != AssignReasonRotation {
				t.Errorf("expected rotation reason, got %s", selected.Reason)
			}
		})
	}
}

func TestSelectOverride(t *testing.T) {
	free := []*models.Resource{
		trainer("a@example.com", nil, nil),
		trainer("b@example.com", nil, nil),
	}
	matcher := NewMatcherService(newFakeAssignments())

	selected, err := matcher.Select(context.Background(), free, "b@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.Resource.Email != "b@example.com" {
		t.Errorf("expected pinned resource, got %s", selected.Resource.Email)
	}
	if selected.Reason != AssignReasonManualOverride {
		t.Errorf("expected manual-override reason, got %s", selected.Reason)
	}

	// Pinning a resource that is not free must not book anyone else
	if _, err := matcher.Select(context.Background(), free, "c@example.com"); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate for busy override, got %v", err)
	}
}

func TestSelectEmptySet(t *testing.T) {
	matcher := NewMatcherService(newFakeAssignments())
	if _, err := matcher.Select(context.Background(), nil, ""); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
}

func TestRecordFeedsRotation(t *testing.T) {
	assignments := newFakeAssignments()
	matcher := NewMatcherService(assignments)
	free := []*models.Resource{
		trainer("a@example.com", nil, nil),
		trainer("b@example.com", nil, nil),
	}

	first, err := matcher.Select(context.Background(), free, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := matcher.Record(context.Background(), first, "booking-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := matcher.Select(context.Background(), free, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Resource.Email == first.Resource.Email {
		t.Errorf("expected rotation to move on from %s", first.Resource.Email)
	}
	if len(assignments.created) != 1 || assignments.created[0].BookingID != "booking-1" {
		t.Errorf("expected one recorded assignment for booking-1, got %+v", assignments.created)
	}
}
