package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/onboardly/onboardly/internal/models"
)

const (
	AssignReasonRotation       = "rotation"
	AssignReasonManualOverride = "manual-override"
)

// AssignmentStore persists the assignment log backing rotation
type AssignmentStore interface {
	Create(ctx context.Context, a *models.Assignment) error
	LastAssignedAt(ctx context.Context) (map[string]time.Time, error)
}

// MatcherService picks one resource from the free set. Default policy is
// least-recently-assigned rotation; an operator override pins a specific
// resource.
type MatcherService struct {
	assignments AssignmentStore
}

// NewMatcherService creates a new matcher service
func NewMatcherService(assignments AssignmentStore) *MatcherService {
	return &MatcherService{assignments: assignments}
}

// SelectedResource is the matcher's decision
type SelectedResource struct {
	Resource *models.Resource
	Reason   string
}

// Select picks exactly one resource from the free set. Callers are expected
// to have checked availability already; an empty set fails with ErrNoCandidate
// as a defensive check.
func (s *MatcherService) Select(ctx context.Context, free []*models.Resource, override string) (*SelectedResource, error) {
	if len(free) == 0 {
		return nil, ErrNoCandidate
	}

	if override != "" {
		for _, resource := range free {
			if resource.Email == override {
				return &SelectedResource{Resource: resource, Reason: AssignReasonManualOverride}, nil
			}
		}
		// Pinned resource is not free for this slot
		return nil, ErrNoCandidate
	}

	last, err := s.assignments.LastAssignedAt(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.Resource, len(free))
	copy(candidates, free)
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := last[candidates[i].Email], last[candidates[j].Email]
		if !ti.Equal(tj) {
			return ti.Before(tj) // never-assigned (zero time) sorts first
		}
		return candidates[i].Email < candidates[j].Email
	})

	return &SelectedResource{Resource: candidates[0], Reason: AssignReasonRotation}, nil
}

// Record logs the assignment so future rotations account for it
func (s *MatcherService) Record(ctx context.Context, selected *SelectedResource, bookingID string) error {
	return s.assignments.Create(ctx, &models.Assignment{
		ID:            uuid.New().String(),
		ResourceEmail: selected.Resource.Email,
		BookingID:     bookingID,
		Reason:        selected.Reason,
		AssignedAt:    models.Now(),
	})
}
