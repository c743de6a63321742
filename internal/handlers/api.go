package handlers

import (
	"net/http"
	"time"

	"github.com/onboardly/onboardly/internal/middleware"
	"github.com/onboardly/onboardly/internal/models"
	"github.com/onboardly/onboardly/internal/services"
)

// APIHandler handles the booking API endpoints
type APIHandler struct {
	handlers *Handlers
}

// GetSlots returns the configured slot grid
func (h *APIHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timezone": h.handlers.cfg.App.Timezone,
		"slots":    h.handlers.services.Availability.Slots(),
	})
}

// GetAvailability returns per-day, per-slot availability for a date range
func (h *APIHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	role := models.ResourceRole(q.Get("role"))
	if role != models.ResourceRoleTrainer && role != models.ResourceRoleInstaller {
		badRequest(w, "role must be trainer or installer")
		return
	}

	loc, err := h.handlers.cfg.App.Location()
	if err != nil {
		writeError(w, err)
		return
	}
	// Date range is optional: default to the next two weeks from today
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 13)
	if raw := q.Get("from"); raw != "" {
		from, err = time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			badRequest(w, "from must be a date (YYYY-MM-DD)")
			return
		}
		to = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err = time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			badRequest(w, "to must be a date (YYYY-MM-DD)")
			return
		}
	}
	if to.Before(from) {
		badRequest(w, "to must not precede from")
		return
	}

	includeWeekends := h.handlers.cfg.App.IncludeWeekends
	if q.Get("include_weekends") == "true" {
		includeWeekends = true
	}

	availability, err := h.handlers.services.Availability.ComputeAvailability(r.Context(), services.AvailabilityInput{
		ResourceEmail:   q.Get("resource"),
		Role:            role,
		From:            from,
		To:              to,
		Region:          q.Get("region"),
		IncludeWeekends: includeWeekends,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timezone":     h.handlers.cfg.App.Timezone,
		"availability": availability,
	})
}

type bookingPayload struct {
	Kind             string `json:"kind"`           // training | installation
	InstallerType    string `json:"installer_type"` // internal | external, installations only
	MerchantID       string `json:"merchant_id"`
	Date             string `json:"date"`
	SlotLabel        string `json:"slot"`
	Address          string `json:"address"`
	ContactName      string `json:"contact_name"`
	ContactPhone     string `json:"contact_phone"`
	Notes            string `json:"notes"`
	OverrideResource string `json:"override_resource"`
}

// CreateBooking places a booking for any of the three variants
func (h *APIHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var payload bookingPayload
	if err := readJSON(r, &payload); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if payload.MerchantID == "" {
		badRequest(w, "merchant_id is required")
		return
	}

	// Manual resource pinning is an operator-only capability
	if payload.OverrideResource != "" && !middleware.IsOperator(r.Context()) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "override_resource requires an operator key"})
		return
	}

	req, err := bookingRequest(payload)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	booking, err := h.handlers.services.Booking.Book(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func bookingRequest(p bookingPayload) (services.BookingRequest, error) {
	switch p.Kind {
	case "training":
		if p.Date == "" || p.SlotLabel == "" {
			return nil, errMissing("date and slot are required for training bookings")
		}
		return services.TrainingRequest{
			MerchantID:       p.MerchantID,
			Date:             p.Date,
			SlotLabel:        p.SlotLabel,
			OverrideResource: p.OverrideResource,
		}, nil
	case "installation":
		switch p.InstallerType {
		case "internal", "":
			if p.Date == "" || p.SlotLabel == "" {
				return nil, errMissing("date and slot are required for internal installations")
			}
			return services.InternalInstallationRequest{
				MerchantID:       p.MerchantID,
				Date:             p.Date,
				SlotLabel:        p.SlotLabel,
				Address:          p.Address,
				OverrideResource: p.OverrideResource,
			}, nil
		case "external":
			return services.ExternalInstallationRequest{
				MerchantID:   p.MerchantID,
				Address:      p.Address,
				ContactName:  p.ContactName,
				ContactPhone: p.ContactPhone,
				Notes:        p.Notes,
			}, nil
		default:
			return nil, errMissing("installer_type must be internal or external")
		}
	default:
		return nil, errMissing("kind must be training or installation")
	}
}

type errMissing string

func (e errMissing) Error() string { return string(e) }

// RescheduleBooking moves an existing booking to a new slot
func (h *APIHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MerchantID      string `json:"merchant_id"`
		Kind            string `json:"kind"`
		ResourceEmail   string `json:"resource_email"`
		ProviderEventID string `json:"provider_event_id"`
		Date            string `json:"date"`
		SlotLabel       string `json:"slot"`
	}
	if err := readJSON(r, &payload); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if payload.MerchantID == "" || payload.ResourceEmail == "" || payload.Date == "" || payload.SlotLabel == "" {
		badRequest(w, "merchant_id, resource_email, date and slot are required")
		return
	}
	kind := models.BookingKind(payload.Kind)
	if kind != models.BookingKindTraining && kind != models.BookingKindInstallation {
		badRequest(w, "kind must be training or installation")
		return
	}

	booking, err := h.handlers.services.Booking.Reschedule(r.Context(), services.RescheduleRequest{
		MerchantID:      payload.MerchantID,
		Kind:            kind,
		ResourceEmail:   payload.ResourceEmail,
		ProviderEventID: payload.ProviderEventID,
		Date:            payload.Date,
		SlotLabel:       payload.SlotLabel,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// CancelBooking tears a booking down; safe to repeat
func (h *APIHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MerchantID      string `json:"merchant_id"`
		Kind            string `json:"kind"`
		ResourceEmail   string `json:"resource_email"`
		ProviderEventID string `json:"provider_event_id"`
	}
	if err := readJSON(r, &payload); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if payload.MerchantID == "" {
		badRequest(w, "merchant_id is required")
		return
	}
	kind := models.BookingKind(payload.Kind)
	if kind != models.BookingKindTraining && kind != models.BookingKindInstallation {
		badRequest(w, "kind must be training or installation")
		return
	}

	if err := h.handlers.services.Booking.Cancel(r.Context(), services.CancelRequest{
		MerchantID:      payload.MerchantID,
		Kind:            kind,
		ResourceEmail:   payload.ResourceEmail,
		ProviderEventID: payload.ProviderEventID,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
