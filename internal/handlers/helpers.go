package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/onboardly/onboardly/internal/services"
)

// writeJSON encodes a response body with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// readJSON decodes the request body into dst, rejecting unknown fields
func readJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeError maps a service error onto an HTTP status and a JSON body
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotAuthorized),
		errors.Is(err, services.ErrReauthorizationRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrCalendarAccess),
		errors.Is(err, services.ErrNoWritableCalendar):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrSlotTaken),
		errors.Is(err, services.ErrNoCandidate):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnknownSlot),
		errors.Is(err, services.ErrNoAssignee):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrProviderUnavailable),
		errors.Is(err, services.ErrCrmSyncFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
