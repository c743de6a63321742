package services

import "errors"

var (
	// ErrNotAuthorized means the resource has never completed the OAuth
	// handshake. Not retryable; the resource must authorize first.
	ErrNotAuthorized = errors.New("resource is not authorized")

	// ErrReauthorizationRequired means the stored refresh token was rejected.
	// The resource must redo the OAuth handshake; the stale grant is kept for
	// diagnostics.
	ErrReauthorizationRequired = errors.New("resource must re-authorize calendar access")

	// ErrNoWritableCalendar means no owner/writer calendar was found for the
	// resource. An operator problem, not a merchant-facing one.
	ErrNoWritableCalendar = errors.New("no writable calendar for resource")

	// ErrProviderUnavailable covers transient provider failures and malformed
	// provider responses. Retryable.
	ErrProviderUnavailable = errors.New("calendar provider unavailable")

	// ErrCalendarAccess means the provider rejected a write for access-role
	// reasons, usually a stale calendar identity.
	ErrCalendarAccess = errors.New("calendar write rejected for access role")

	// ErrEventNotFound means the provider no longer knows the event id.
	ErrEventNotFound = errors.New("provider event not found")

	// ErrNoCandidate means no resource is free for the requested slot.
	ErrNoCandidate = errors.New("no free resource for slot")

	// ErrNoAssignee means a cancel named a provider event but neither the
	// request nor the CRM record says whose calendar holds it. Deleting
	// blind is impossible; succeeding would orphan the event.
	ErrNoAssignee = errors.New("no resource on record for booking")

	// ErrSlotTaken means the provider reported a conflict at commit time; the
	// slot was taken between availability computation and booking.
	ErrSlotTaken = errors.New("slot no longer available")

	// ErrCrmSyncFailed means the CRM leg of a booking failed. The calendar
	// hold stands; the discrepancy is logged for manual reconciliation.
	ErrCrmSyncFailed = errors.New("crm sync failed")

	// ErrUnknownSlot means the requested slot label is not in the configured grid.
	ErrUnknownSlot = errors.New("unknown slot")
)
