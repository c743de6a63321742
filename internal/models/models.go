package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SQLiteTime is a time.Time wrapper that can scan SQLite datetime strings
type SQLiteTime struct {
	time.Time
}

// Scan implements sql.Scanner for SQLiteTime
func (st *SQLiteTime) Scan(value interface{}) error {
	if value == nil {
		st.Time = time.Time{}
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		st.Time = v
		return nil
	case string:
		// Try various formats
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05Z",
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				st.Time = t
				return nil
			}
		}
		return errors.New("unable to parse time: " + v)
	default:
		return errors.New("unsupported type for SQLiteTime")
	}
}

// Value implements driver.Valuer for SQLiteTime
func (st SQLiteTime) Value() (driver.Value, error) {
	// Always store in UTC with Z suffix for consistent string comparisons in SQLite
	return st.Time.UTC().Format("2006-01-02T15:04:05Z"), nil
}

// Now returns the current time as SQLiteTime (in UTC)
func Now() SQLiteTime {
	return SQLiteTime{Time: time.Now().UTC()}
}

// NewSQLiteTime creates a SQLiteTime from a time.Time (converted to UTC)
func NewSQLiteTime(t time.Time) SQLiteTime {
	return SQLiteTime{Time: t.UTC()}
}

// ResourceRole represents what a resource can be booked for
type ResourceRole string

const (
	ResourceRoleTrainer   ResourceRole = "trainer"
	ResourceRoleInstaller ResourceRole = "installer"
	ResourceRoleManager   ResourceRole = "manager"
)

// Resource is a bookable person (trainer or installer). The email address is
// the stable identifier; resources are revoked, never deleted.
type Resource struct {
	Email      string       `json:"email" db:"email"`
	Name       string       `json:"name" db:"name"`
	Role       ResourceRole `json:"role" db:"role"`
	Languages  StringSlice  `json:"languages" db:"languages"`
	Regions    StringSlice  `json:"regions" db:"regions"` // empty = eligible anywhere
	CalendarID string       `json:"-" db:"calendar_id"`   // resolved writable calendar, cached
	Authorized bool         `json:"authorized" db:"authorized"`
	CreatedAt  SQLiteTime   `json:"created_at" db:"created_at"`
	UpdatedAt  SQLiteTime   `json:"updated_at" db:"updated_at"`
}

// EligibleFor reports whether the resource covers the given region.
// An empty region set means the resource can be booked anywhere.
func (r *Resource) EligibleFor(region string) bool {
	if region == "" || len(r.Regions) == 0 {
		return true
	}
	for _, reg := range r.Regions {
		if reg == region {
			return true
		}
	}
	return false
}

// OAuthGrant holds the provider credentials for one resource. Written by the
// authorization handshake and the refresh path, nowhere else.
type OAuthGrant struct {
	ResourceEmail  string      `json:"-" db:"resource_email"`
	AccessToken    string      `json:"-" db:"access_token"`
	RefreshToken   string      `json:"-" db:"refresh_token"`
	Expiry         SQLiteTime  `json:"-" db:"expiry"`
	Scopes         StringSlice `json:"-" db:"scopes"`
	ProviderUserID string      `json:"-" db:"provider_user_id"`
	UpdatedAt      SQLiteTime  `json:"-" db:"updated_at"`
}

// BusyIntervalSource tags where a busy interval came from
type BusyIntervalSource string

const (
	BusySourceFreeBusy BusyIntervalSource = "freebusy"
	BusySourceEvents   BusyIntervalSource = "events"
)

// BusyInterval is a half-open [Start, End) range during which a resource is
// unavailable. Recomputed per query, never persisted.
type BusyInterval struct {
	Start            time.Time          `json:"start"`
	End              time.Time          `json:"end"`
	Source           BusyIntervalSource `json:"source"`
	RecurringEventID string             `json:"recurring_event_id,omitempty"`
}

// Intersects reports whether the interval overlaps [start, end).
func (b BusyInterval) Intersects(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// Slot is a fixed daily time window shared by all resources and all days.
// Start and End are wall-clock HH:MM in the business timezone.
type Slot struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilityResult describes one (date, slot) pair.
// Available is true iff FreeResources is non-empty.
type AvailabilityResult struct {
	Available     bool     `json:"available"`
	FreeResources []string `json:"free_resources"`
	Languages     []string `json:"languages"`
	Regions       []string `json:"regions"`
}

// BookingKind distinguishes training from installation appointments
type BookingKind string

const (
	BookingKindTraining     BookingKind = "training"
	BookingKindInstallation BookingKind = "installation"
)

// InstallerType distinguishes internal resources from external vendor tickets
type InstallerType string

const (
	InstallerTypeInternal InstallerType = "internal"
	InstallerTypeExternal InstallerType = "external"
)

// BookingStatus tracks the booking state machine
type BookingStatus string

const (
	BookingStatusRequested            BookingStatus = "requested"
	BookingStatusProviderEventCreated BookingStatus = "provider_event_created"
	BookingStatusCrmSynced            BookingStatus = "crm_synced"
	BookingStatusCrmSyncFailed        BookingStatus = "crm_sync_failed"
	BookingStatusMockFallback         BookingStatus = "mock_fallback"
	BookingStatusRejected             BookingStatus = "rejected"
	BookingStatusCancelled            BookingStatus = "cancelled"
)

// Booking is the committed appointment. The provider event id is the join key
// used on reschedule/cancel to locate the provider-side object; an absent id
// means there is no existing event to touch.
type Booking struct {
	ID              string        `json:"id"`
	MerchantID      string        `json:"merchant_id"`
	Kind            BookingKind   `json:"kind"`
	ResourceEmail   string        `json:"resource_email,omitempty"`
	Date            string        `json:"date"` // civil date YYYY-MM-DD in the business timezone
	SlotLabel       string        `json:"slot"`
	Start           SQLiteTime    `json:"start"`
	End             SQLiteTime    `json:"end"`
	ProviderEventID string        `json:"provider_event_id,omitempty"`
	CrmRecordID     string        `json:"crm_record_id,omitempty"`
	InstallerType   InstallerType `json:"installer_type,omitempty"`
	VendorTicketID  string        `json:"vendor_ticket_id,omitempty"`
	Status          BookingStatus `json:"status"`
	AssignReason    string        `json:"assign_reason,omitempty"`
	CreatedAt       SQLiteTime    `json:"created_at"`
}

// Assignment records which resource was handed a booking, backing
// least-recently-assigned rotation.
type Assignment struct {
	ID            string     `json:"id" db:"id"`
	ResourceEmail string     `json:"resource_email" db:"resource_email"`
	BookingID     string     `json:"booking_id" db:"booking_id"`
	Reason        string     `json:"reason" db:"reason"`
	AssignedAt    SQLiteTime `json:"assigned_at" db:"assigned_at"`
}

// Submission records a (resource, submission link) pair already acted on by
// the CRM poller, making the poll idempotent.
type Submission struct {
	ResourceEmail  string     `json:"resource_email" db:"resource_email"`
	SubmissionLink string     `json:"submission_link" db:"submission_link"`
	RecordedAt     SQLiteTime `json:"recorded_at" db:"recorded_at"`
}

// StringSlice is a slice of strings stored as JSON text
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for StringSlice")
	}
}
