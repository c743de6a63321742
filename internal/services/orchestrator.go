package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onboardly/onboardly/internal/config"
	"github.com/onboardly/onboardly/internal/models"
)

// BookingRequest is one of the three booking variants. The variant decides the
// whole flow, so it is dispatched exactly once, here.
type BookingRequest interface {
	bookingRequest()
}

// TrainingRequest books a merchant training session with a trainer
type TrainingRequest struct {
	MerchantID       string
	Date             string // civil date YYYY-MM-DD in the business timezone
	SlotLabel        string
	OverrideResource string // operator pin, empty for rotation
}

// InternalInstallationRequest books an on-site installation with an internal
// installer
type InternalInstallationRequest struct {
	MerchantID       string
	Date             string
	SlotLabel        string
	Address          string
	OverrideResource string
}

// ExternalInstallationRequest hands the installation to the external vendor.
// The vendor runs its own scheduling; no calendar event is created.
type ExternalInstallationRequest struct {
	MerchantID   string
	Address      string
	ContactName  string
	ContactPhone string
	Notes        string
}

func (TrainingRequest) bookingRequest()             {}
func (InternalInstallationRequest) bookingRequest() {}
func (ExternalInstallationRequest) bookingRequest() {}

// RescheduleRequest moves an existing booking to a new slot. The resource is
// kept; only the time changes.
type RescheduleRequest struct {
	MerchantID      string
	Kind            models.BookingKind
	ResourceEmail   string
	ProviderEventID string // empty when the original placement never produced one
	Date            string
	SlotLabel       string
}

// CancelRequest tears a booking down. Safe to repeat.
type CancelRequest struct {
	MerchantID      string
	Kind            models.BookingKind
	ResourceEmail   string
	ProviderEventID string
}

// BookingService orchestrates booking placement across the calendar provider
// and the CRM. The provider write always happens before the CRM write: a
// calendar event without a CRM record is a recoverable inconsistency, a CRM
// record without a calendar event double-books the resource.
type BookingService struct {
	cfg          *config.Config
	loc          *time.Location
	availability *AvailabilityService
	matcher      *MatcherService
	tokens       *TokenService
	identity     *IdentityService
	provider     CalendarAPI
	crm          CrmAPI
	vendor       VendorAPI
	notify       Notifier
}

// NewBookingService creates a new booking orchestrator
func NewBookingService(
	cfg *config.Config,
	loc *time.Location,
	availability *AvailabilityService,
	matcher *MatcherService,
	tokens *TokenService,
	identity *IdentityService,
	provider CalendarAPI,
	crm CrmAPI,
	vendor VendorAPI,
	notify Notifier,
) *BookingService {
	return &BookingService{
		cfg:          cfg,
		loc:          loc,
		availability: availability,
		matcher:      matcher,
		tokens:       tokens,
		identity:     identity,
		provider:     provider,
		crm:          crm,
		vendor:       vendor,
		notify:       notify,
	}
}

// Book places a booking for any of the three variants
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	switch r := req.(type) {
	case TrainingRequest:
		return s.bookTraining(ctx, r)
	case InternalInstallationRequest:
		return s.bookInternalInstallation(ctx, r)
	case ExternalInstallationRequest:
		return s.bookExternalInstallation(ctx, r)
	default:
		return nil, fmt.Errorf("unknown booking request type %T", req)
	}
}

func (s *BookingService) bookTraining(ctx context.Context, req TrainingRequest) (*models.Booking, error) {
	merchant, err := s.crm.Merchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	booking, selected, err := s.placeCalendarBooking(ctx, placement{
		merchantID: req.MerchantID,
		merchant:   merchant,
		kind:       models.BookingKindTraining,
		role:       models.ResourceRoleTrainer,
		date:       req.Date,
		slotLabel:  req.SlotLabel,
		override:   req.OverrideResource,
		summary:    fmt.Sprintf("Merchant training: %s", merchant.Name),
	})
	if err != nil {
		return nil, err
	}

	if crmErr := s.crm.SetTrainingSchedule(ctx, merchant.RecordID, req.Date, booking.ResourceEmail); crmErr != nil {
		return s.crmWriteFailed(ctx, booking, selected, merchant, crmErr)
	}

	return s.finalize(ctx, booking, selected, merchant)
}

func (s *BookingService) bookInternalInstallation(ctx context.Context, req InternalInstallationRequest) (*models.Booking, error) {
	merchant, err := s.crm.Merchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	booking, selected, err := s.placeCalendarBooking(ctx, placement{
		merchantID: req.MerchantID,
		merchant:   merchant,
		kind:       models.BookingKindInstallation,
		role:       models.ResourceRoleInstaller,
		date:       req.Date,
		slotLabel:  req.SlotLabel,
		override:   req.OverrideResource,
		summary:    fmt.Sprintf("Installation: %s", merchant.Name),
		location:   req.Address,
	})
	if err != nil {
		return nil, err
	}
	booking.InstallerType = models.InstallerTypeInternal

	if crmErr := s.crm.SetInstallationSchedule(ctx, merchant.RecordID, booking.ProviderEventID, booking.ResourceEmail, booking.Start.Time); crmErr != nil {
		return s.crmWriteFailed(ctx, booking, selected, merchant, crmErr)
	}

	return s.finalize(ctx, booking, selected, merchant)
}

func (s *BookingService) bookExternalInstallation(ctx context.Context, req ExternalInstallationRequest) (*models.Booking, error) {
	merchant, err := s.crm.Merchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	ticketID, err := s.vendor.CreateTicket(ctx, VendorTicketRequest{
		MerchantID:   req.MerchantID,
		MerchantName: merchant.Name,
		Region:       merchant.Region,
		Address:      req.Address,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Notes:        req.Notes,
	})
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:             uuid.New().String(),
		MerchantID:     req.MerchantID,
		Kind:           models.BookingKindInstallation,
		InstallerType:  models.InstallerTypeExternal,
		VendorTicketID: ticketID,
		CrmRecordID:    merchant.RecordID,
		Status:         models.BookingStatusRequested,
		CreatedAt:      models.Now(),
	}

	if err := s.crm.SetVendorTicket(ctx, merchant.RecordID, ticketID); err != nil {
		log.Printf("[BOOKING] CRM vendor ticket write failed for merchant %s: %v", req.MerchantID, err)
		booking.Status = models.BookingStatusCrmSyncFailed
		s.notify.CrmSyncFailed(booking, merchant.Name, err)
		return booking, nil
	}

	booking.Status = models.BookingStatusCrmSynced
	log.Printf("[BOOKING] External installation for merchant %s handed to vendor, ticket %s", req.MerchantID, ticketID)
	return booking, nil
}

type placement struct {
	merchantID string
	merchant   *CrmMerchant
	kind       models.BookingKind
	role       models.ResourceRole
	date       string
	slotLabel  string
	override   string
	summary    string
	location   string
}

// placeCalendarBooking runs the shared calendar half of training and internal
// installation: re-check availability, pick a resource, write the provider
// event. No CRM state is touched here, so any failure leaves nothing to undo.
func (s *BookingService) placeCalendarBooking(ctx context.Context, p placement) (*models.Booking, *SelectedResource, error) {
	start, end, err := s.availability.SlotWindow(p.date, p.slotLabel)
	if err != nil {
		return nil, nil, err
	}

	free, err := s.availability.FreeResourcesForSlot(ctx, AvailabilityInput{
		Role:   p.role,
		Region: p.merchant.Region,
	}, p.date, p.slotLabel)
	if err != nil {
		return nil, nil, err
	}
	free = filterByLanguage(free, p.merchant.Language)
	if len(free) == 0 {
		return nil, nil, ErrNoCandidate
	}

	selected, err := s.matcher.Select(ctx, free, p.override)
	if err != nil {
		return nil, nil, err
	}

	booking := &models.Booking{
		ID:            uuid.New().String(),
		MerchantID:    p.merchantID,
		Kind:          p.kind,
		ResourceEmail: selected.Resource.Email,
		Date:          p.date,
		SlotLabel:     p.slotLabel,
		Start:         models.NewSQLiteTime(start),
		End:           models.NewSQLiteTime(end),
		CrmRecordID:   p.merchant.RecordID,
		Status:        models.BookingStatusRequested,
		AssignReason:  selected.Reason,
		CreatedAt:     models.Now(),
	}

	eventID, err := s.createProviderEvent(ctx, selected.Resource.Email, EventWrite{
		Summary:     p.summary,
		Description: fmt.Sprintf("Merchant: %s\nBooking: %s", p.merchant.Name, booking.ID),
		Location:    p.location,
		Start:       start,
		End:         end,
		Attendees:   []string{selected.Resource.Email},
	})
	if err != nil {
		if s.cfg.App.Environment == "production" || !errors.Is(err, ErrProviderUnavailable) {
			log.Printf("[BOOKING] Provider event creation failed for %s: %v", selected.Resource.Email, err)
			return nil, nil, err
		}
		// Outside production an unreachable provider is usually a stub; keep
		// the flow moving with a synthetic event id so the CRM side can be
		// exercised. Conflicts and auth failures still surface in every
		// environment.
		eventID = "mock-" + uuid.New().String()
		booking.Status = models.BookingStatusMockFallback
		log.Printf("[BOOKING] Provider event creation failed for %s, using mock event %s: %v", selected.Resource.Email, eventID, err)
	} else {
		booking.Status = models.BookingStatusProviderEventCreated
	}
	booking.ProviderEventID = eventID

	return booking, selected, nil
}

// createProviderEvent writes the event, retrying once with a freshly resolved
// calendar when the write is rejected for access-role reasons. Cached calendar
// identities go stale when admins reshuffle calendar sharing.
func (s *BookingService) createProviderEvent(ctx context.Context, resourceEmail string, ev EventWrite) (string, error) {
	token, err := s.tokens.AccessToken(ctx, resourceEmail)
	if err != nil {
		return "", err
	}
	calendarID, err := s.identity.WritableCalendar(ctx, resourceEmail)
	if err != nil {
		return "", err
	}

	eventID, err := s.provider.CreateEvent(ctx, token, calendarID, ev)
	if errors.Is(err, ErrCalendarAccess) {
		s.identity.Invalidate(resourceEmail)
		calendarID, err = s.identity.WritableCalendar(ctx, resourceEmail)
		if err != nil {
			return "", err
		}
		eventID, err = s.provider.CreateEvent(ctx, token, calendarID, ev)
	}
	if err != nil {
		return "", err
	}
	return eventID, nil
}

func (s *BookingService) crmWriteFailed(ctx context.Context, booking *models.Booking, selected *SelectedResource, merchant *CrmMerchant, cause error) (*models.Booking, error) {
	// The calendar event stands; the booking is placed but flagged for a
	// manual CRM fix.
	log.Printf("[BOOKING] CRM write failed for booking %s (merchant %s): %v", booking.ID, merchant.Name, cause)
	booking.Status = models.BookingStatusCrmSyncFailed
	s.notify.CrmSyncFailed(booking, merchant.Name, cause)

	if err := s.matcher.Record(ctx, selected, booking.ID); err != nil {
		log.Printf("[BOOKING] Failed to record assignment for booking %s: %v", booking.ID, err)
	}
	s.notify.BookingPlaced(booking, merchant.Name)
	return booking, nil
}

func (s *BookingService) finalize(ctx context.Context, booking *models.Booking, selected *SelectedResource, merchant *CrmMerchant) (*models.Booking, error) {
	if booking.Status != models.BookingStatusMockFallback {
		booking.Status = models.BookingStatusCrmSynced
	}

	if err := s.matcher.Record(ctx, selected, booking.ID); err != nil {
		log.Printf("[BOOKING] Failed to record assignment for booking %s: %v", booking.ID, err)
	}
	s.notify.BookingPlaced(booking, merchant.Name)

	log.Printf("[BOOKING] Placed %s booking %s for merchant %s with %s (%s)",
		booking.Kind, booking.ID, merchant.Name, booking.ResourceEmail, booking.AssignReason)
	return booking, nil
}

// Reschedule moves a booking to a new slot. The provider event is updated in
// place so attendees keep the same invitation; only when the event has gone
// missing is a fresh one created.
func (s *BookingService) Reschedule(ctx context.Context, req RescheduleRequest) (*models.Booking, error) {
	merchant, err := s.crm.Merchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	start, end, err := s.availability.SlotWindow(req.Date, req.SlotLabel)
	if err != nil {
		return nil, err
	}

	free, err := s.availability.FreeResourcesForSlot(ctx, AvailabilityInput{
		ResourceEmail: req.ResourceEmail,
	}, req.Date, req.SlotLabel)
	if err != nil {
		return nil, err
	}
	if len(free) == 0 {
		return nil, ErrNoCandidate
	}

	summary := fmt.Sprintf("Merchant training: %s", merchant.Name)
	if req.Kind == models.BookingKindInstallation {
		summary = fmt.Sprintf("Installation: %s", merchant.Name)
	}
	write := EventWrite{
		Summary:   summary,
		Start:     start,
		End:       end,
		Attendees: []string{req.ResourceEmail},
	}

	eventID := req.ProviderEventID
	switch {
	case eventID == "" || strings.HasPrefix(eventID, "mock-"):
		eventID, err = s.createProviderEvent(ctx, req.ResourceEmail, write)
	default:
		err = s.updateProviderEvent(ctx, req.ResourceEmail, eventID, write)
		if errors.Is(err, ErrEventNotFound) {
			// Someone deleted the event out from under us
			log.Printf("[BOOKING] Event %s missing on reschedule, recreating", eventID)
			eventID, err = s.createProviderEvent(ctx, req.ResourceEmail, write)
		}
	}
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:              uuid.New().String(),
		MerchantID:      req.MerchantID,
		Kind:            req.Kind,
		ResourceEmail:   req.ResourceEmail,
		Date:            req.Date,
		SlotLabel:       req.SlotLabel,
		Start:           models.NewSQLiteTime(start),
		End:             models.NewSQLiteTime(end),
		ProviderEventID: eventID,
		CrmRecordID:     merchant.RecordID,
		Status:          models.BookingStatusProviderEventCreated,
		CreatedAt:       models.Now(),
	}
	if req.Kind == models.BookingKindInstallation {
		booking.InstallerType = models.InstallerTypeInternal
	}

	var crmErr error
	if req.Kind == models.BookingKindTraining {
		crmErr = s.crm.SetTrainingSchedule(ctx, merchant.RecordID, req.Date, req.ResourceEmail)
	} else {
		crmErr = s.crm.SetInstallationSchedule(ctx, merchant.RecordID, eventID, req.ResourceEmail, start)
	}
	if crmErr != nil {
		log.Printf("[BOOKING] CRM write failed on reschedule for merchant %s: %v", req.MerchantID, crmErr)
		booking.Status = models.BookingStatusCrmSyncFailed
		s.notify.CrmSyncFailed(booking, merchant.Name, crmErr)
		return booking, nil
	}

	booking.Status = models.BookingStatusCrmSynced
	log.Printf("[BOOKING] Rescheduled %s booking for merchant %s to %s %s", req.Kind, merchant.Name, req.Date, req.SlotLabel)
	return booking, nil
}

func (s *BookingService) updateProviderEvent(ctx context.Context, resourceEmail, eventID string, ev EventWrite) error {
	token, err := s.tokens.AccessToken(ctx, resourceEmail)
	if err != nil {
		return err
	}
	calendarID, err := s.identity.WritableCalendar(ctx, resourceEmail)
	if err != nil {
		return err
	}

	err = s.provider.UpdateEvent(ctx, token, calendarID, eventID, ev)
	if errors.Is(err, ErrCalendarAccess) {
		s.identity.Invalidate(resourceEmail)
		calendarID, err = s.identity.WritableCalendar(ctx, resourceEmail)
		if err != nil {
			return err
		}
		err = s.provider.UpdateEvent(ctx, token, calendarID, eventID, ev)
	}
	return err
}

// Cancel tears a booking down: provider event first, then the CRM fields.
// Every step tolerates already-gone state, so repeating a cancel is a no-op.
func (s *BookingService) Cancel(ctx context.Context, req CancelRequest) error {
	merchant, err := s.crm.Merchant(ctx, req.MerchantID)
	if err != nil {
		return err
	}

	// The caller may omit the resource; the CRM record names the current
	// assignee.
	resourceEmail := req.ResourceEmail
	if resourceEmail == "" {
		if req.Kind == models.BookingKindTraining {
			resourceEmail = merchant.TrainerEmail
		} else {
			resourceEmail = merchant.InstallerEmail
		}
	}

	if req.ProviderEventID != "" && !strings.HasPrefix(req.ProviderEventID, "mock-") {
		if resourceEmail == "" {
			return fmt.Errorf("%w: cannot delete event %s for merchant %s", ErrNoAssignee, req.ProviderEventID, req.MerchantID)
		}
		if err := s.deleteProviderEvent(ctx, resourceEmail, req.ProviderEventID); err != nil {
			if !errors.Is(err, ErrEventNotFound) {
				return err
			}
			log.Printf("[BOOKING] Event %s already gone on cancel", req.ProviderEventID)
		}
	}

	var crmErr error
	if req.Kind == models.BookingKindTraining {
		crmErr = s.crm.ClearTrainingSchedule(ctx, merchant.RecordID)
	} else {
		crmErr = s.crm.ClearInstallationSchedule(ctx, merchant.RecordID)
	}
	if crmErr != nil {
		return crmErr
	}

	s.notify.BookingCancelled(&models.Booking{
		Kind:          req.Kind,
		ResourceEmail: resourceEmail,
		Start:         models.Now(),
	}, merchant.Name, merchant.AccountManagerEmail)

	log.Printf("[BOOKING] Cancelled %s booking for merchant %s", req.Kind, merchant.Name)
	return nil
}

func (s *BookingService) deleteProviderEvent(ctx context.Context, resourceEmail, eventID string) error {
	token, err := s.tokens.AccessToken(ctx, resourceEmail)
	if err != nil {
		return err
	}
	calendarID, err := s.identity.WritableCalendar(ctx, resourceEmail)
	if err != nil {
		return err
	}
	return s.provider.DeleteEvent(ctx, token, calendarID, eventID)
}

// filterByLanguage keeps resources covering the merchant's preferred language.
// A resource with no declared languages serves everyone.
func filterByLanguage(free []*models.Resource, language string) []*models.Resource {
	if language == "" {
		return free
	}
	var matched []*models.Resource
	for _, resource := range free {
		if len(resource.Languages) == 0 {
			matched = append(matched, resource)
			continue
		}
		for _, l := range resource.Languages {
			if strings.EqualFold(l, language) {
				matched = append(matched, resource)
				break
			}
		}
	}
	return matched
}
