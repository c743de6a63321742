package handlers

import (
	"github.com/onboardly/onboardly/internal/config"
	"github.com/onboardly/onboardly/internal/repository"
	"github.com/onboardly/onboardly/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	cfg      *config.Config
	repos    *repository.Repositories
	services *services.Services

	Auth      *AuthHandler
	API       *APIHandler
	Resources *ResourceHandler
}

// New creates all handlers
func New(cfg *config.Config, svc *services.Services, repos *repository.Repositories) *Handlers {
	h := &Handlers{
		cfg:      cfg,
		repos:    repos,
		services: svc,
	}

	h.Auth = &AuthHandler{handlers: h}
	h.API = &APIHandler{handlers: h}
	h.Resources = &ResourceHandler{handlers: h}

	return h
}
