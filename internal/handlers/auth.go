package handlers

import (
	"log"
	"net/http"
)

// AuthHandler handles the calendar provider OAuth handshake
type AuthHandler struct {
	handlers *Handlers
}

// AuthorizeURL returns the provider consent URL for a resource. The resource
// email rides along as the OAuth state so the callback knows whose grant the
// code belongs to.
func (h *AuthHandler) AuthorizeURL(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("resource")
	if email == "" {
		badRequest(w, "resource is required")
		return
	}

	resource, err := h.handlers.repos.Resource.GetByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if resource == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.handlers.services.Provider.AuthURL(email),
	})
}

// Callback completes the handshake: exchanges the code, stores the grant and
// flips the resource to authorized.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		badRequest(w, "code and state are required")
		return
	}

	resource, err := h.handlers.repos.Resource.GetByEmail(r.Context(), state)
	if err != nil {
		writeError(w, err)
		return
	}
	if resource == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
		return
	}

	tokens, err := h.handlers.services.Provider.ExchangeCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.handlers.services.Token.StoreInitialGrant(r.Context(), state, tokens, h.handlers.cfg.OAuth.Scopes); err != nil {
		writeError(w, err)
		return
	}

	if !resource.Authorized {
		resource.Authorized = true
		if err := h.handlers.repos.Resource.Update(r.Context(), resource); err != nil {
			writeError(w, err)
			return
		}
	}

	log.Printf("[AUTH] Resource %s authorized calendar access", state)
	writeJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
}
