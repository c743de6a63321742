package handlers

import (
	"log"
	"net/http"

	"github.com/onboardly/onboardly/internal/middleware"
	"github.com/onboardly/onboardly/internal/models"
)

// ResourceHandler handles resource administration. All endpoints are
// operator-only.
type ResourceHandler struct {
	handlers *Handlers
}

func (h *ResourceHandler) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	if !middleware.IsOperator(r.Context()) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "operator key required"})
		return false
	}
	return true
}

// Create registers a new bookable resource. The resource still has to complete
// the calendar authorization handshake before it can be booked.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	var payload struct {
		Email     string   `json:"email"`
		Name      string   `json:"name"`
		Role      string   `json:"role"`
		Languages []string `json:"languages"`
		Regions   []string `json:"regions"`
	}
	if err := readJSON(r, &payload); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if payload.Email == "" || payload.Name == "" {
		badRequest(w, "email and name are required")
		return
	}
	role := models.ResourceRole(payload.Role)
	if role != models.ResourceRoleTrainer && role != models.ResourceRoleInstaller {
		badRequest(w, "role must be trainer or installer")
		return
	}

	resource := &models.Resource{
		Email:     payload.Email,
		Name:      payload.Name,
		Role:      role,
		Languages: payload.Languages,
		Regions:   payload.Regions,
		CreatedAt: models.Now(),
		UpdatedAt: models.Now(),
	}
	if err := h.handlers.repos.Resource.Create(r.Context(), resource); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("[RESOURCE] Registered %s (%s)", payload.Email, role)
	writeJSON(w, http.StatusCreated, resource)
}

// List returns the authorized resources for a role
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	role := models.ResourceRole(r.URL.Query().Get("role"))
	if role != models.ResourceRoleTrainer && role != models.ResourceRoleInstaller {
		badRequest(w, "role must be trainer or installer")
		return
	}

	resources, err := h.handlers.repos.Resource.ListAuthorized(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

// Revoke pulls a resource out of the booking pool. The grant row stays for
// diagnostics; the cached calendar identity is dropped.
func (h *ResourceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &payload); err != nil || payload.Email == "" {
		badRequest(w, "email is required")
		return
	}

	if err := h.handlers.repos.Resource.Revoke(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}
	h.handlers.services.Identity.Invalidate(payload.Email)

	log.Printf("[RESOURCE] Revoked %s", payload.Email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
