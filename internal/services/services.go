package services

import (
	"time"

	"github.com/onboardly/onboardly/internal/config"
	"github.com/onboardly/onboardly/internal/repository"
)

// Services holds all service instances
type Services struct {
	Provider     *ProviderClient
	Token        *TokenService
	Identity     *IdentityService
	Busy         *BusyService
	Availability *AvailabilityService
	Matcher      *MatcherService
	Crm          *CrmClient
	Vendor       *VendorClient
	Notify       *NotifyService
	Booking      *BookingService
	Poller       *PollerService
}

// New creates all services
func New(cfg *config.Config, repos *repository.Repositories, loc *time.Location) *Services {
	providerSvc := NewProviderClient(cfg)
	tokenSvc := NewTokenService(repos.Grant, providerSvc, cfg.App.TokenRefreshBuffer)
	identitySvc := NewIdentityService(providerSvc, tokenSvc)
	busySvc := NewBusyService(providerSvc, tokenSvc, identitySvc)
	availabilitySvc := NewAvailabilityService(busySvc, repos.Resource, loc, cfg.App.Slots, cfg.App.FetchWorkers)
	matcherSvc := NewMatcherService(repos.Assignment)
	crmSvc := NewCrmClient(cfg, loc)
	vendorSvc := NewVendorClient(cfg)
	notifySvc := NewNotifyService(cfg, loc)

	bookingSvc := NewBookingService(cfg, loc, availabilitySvc, matcherSvc, tokenSvc, identitySvc, providerSvc, crmSvc, vendorSvc, notifySvc)
	pollerSvc := NewPollerService(crmSvc, repos.Submission, notifySvc, cfg.Crm.PollInterval)

	return &Services{
		Provider:     providerSvc,
		Token:        tokenSvc,
		Identity:     identitySvc,
		Busy:         busySvc,
		Availability: availabilitySvc,
		Matcher:      matcherSvc,
		Crm:          crmSvc,
		Vendor:       vendorSvc,
		Notify:       notifySvc,
		Booking:      bookingSvc,
		Poller:       pollerSvc,
	}
}
