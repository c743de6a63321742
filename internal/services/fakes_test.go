package services

import (
	"context"
	"sync"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// fakeGrantStore is an in-memory GrantStore
type fakeGrantStore struct {
	mu     sync.Mutex
	grants map[string]*models.OAuthGrant
	saves  int
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{grants: make(map[string]*models.OAuthGrant)}
}

func (s *fakeGrantStore) Get(ctx context.Context, email string) (*models.OAuthGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[email]
	if !ok {
		return nil, nil
	}
	copied := *grant
	return &copied, nil
}

func (s *fakeGrantStore) Save(ctx context.Context, grant *models.OAuthGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *grant
	s.grants[grant.ResourceEmail] = &copied
	s.saves++
	return nil
}

func (s *fakeGrantStore) put(email, access, refresh string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[email] = &models.OAuthGrant{
		ResourceEmail: email,
		AccessToken:   access,
		RefreshToken:  refresh,
		Expiry:        models.NewSQLiteTime(expiry),
	}
}

// fakeOAuth is a scripted OAuthAPI
type fakeOAuth struct {
	mu         sync.Mutex
	refreshes  int
	refreshFn  func(refreshToken string) (*TokenResponse, error)
	exchangeFn func(code string) (*TokenResponse, error)
}

func (o *fakeOAuth) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if o.exchangeFn != nil {
		return o.exchangeFn(code)
	}
	return &TokenResponse{AccessToken: "exchanged", RefreshToken: "refresh", ExpiresIn: 3600}, nil
}

func (o *fakeOAuth) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	o.mu.Lock()
	o.refreshes++
	o.mu.Unlock()
	if o.refreshFn != nil {
		return o.refreshFn(refreshToken)
	}
	return &TokenResponse{AccessToken: "refreshed", RefreshToken: "refresh2", ExpiresIn: 3600}, nil
}

func (o *fakeOAuth) refreshCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refreshes
}

// fakeCalendar is a scripted CalendarAPI
type fakeCalendar struct {
	mu sync.Mutex

	calendars     []ProviderCalendar
	calendarCalls int
	freebusy      map[string][]FreeBusyWindow
	freebusyErr   map[string]error
	events        []ProviderEvent
	instances     map[string][]ProviderEvent

	createFn func(ev EventWrite) (string, error)
	updateFn func(eventID string, ev EventWrite) error
	deleteFn func(eventID string) error

	created []EventWrite
	updated []string
	deleted []string
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		calendars: []ProviderCalendar{{ID: "cal-primary", Role: "owner", Type: "primary"}},
		freebusy:  make(map[string][]FreeBusyWindow),
		instances: make(map[string][]ProviderEvent),
	}
}

func (c *fakeCalendar) ListCalendars(ctx context.Context, accessToken string) ([]ProviderCalendar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calendarCalls++
	return c.calendars, nil
}

func (c *fakeCalendar) FreeBusy(ctx context.Context, accessToken string, userIDs []string, from, to time.Time) (map[string][]FreeBusyWindow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]FreeBusyWindow)
	for _, id := range userIDs {
		if err, ok := c.freebusyErr[id]; ok {
			return nil, err
		}
		out[id] = c.freebusy[id]
	}
	return out, nil
}

func (c *fakeCalendar) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]ProviderEvent, error) {
	return c.events, nil
}

func (c *fakeCalendar) ExpandInstances(ctx context.Context, accessToken, calendarID, eventID string, from, to time.Time) ([]ProviderEvent, error) {
	return c.instances[eventID], nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, accessToken, calendarID string, ev EventWrite) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createFn != nil {
		return c.createFn(ev)
	}
	c.created = append(c.created, ev)
	return "event-1", nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev EventWrite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateFn != nil {
		return c.updateFn(eventID, ev)
	}
	c.updated = append(c.updated, eventID)
	return nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteFn != nil {
		return c.deleteFn(eventID)
	}
	c.deleted = append(c.deleted, eventID)
	return nil
}

func (c *fakeCalendar) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

// fakeResourceStore is an in-memory ResourceStore
type fakeResourceStore struct {
	resources []*models.Resource
}

func (s *fakeResourceStore) ListAuthorized(ctx context.Context, role models.ResourceRole) ([]*models.Resource, error) {
	var out []*models.Resource
	for _, r := range s.resources {
		if r.Authorized && r.Role == role {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResourceStore) GetByEmail(ctx context.Context, email string) (*models.Resource, error) {
	for _, r := range s.resources {
		if r.Email == email {
			return r, nil
		}
	}
	return nil, nil
}

// fakeAssignments is an in-memory AssignmentStore
type fakeAssignments struct {
	mu      sync.Mutex
	last    map[string]time.Time
	created []*models.Assignment
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{last: make(map[string]time.Time)}
}

func (s *fakeAssignments) Create(ctx context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, a)
	s.last[a.ResourceEmail] = a.AssignedAt.Time
	return nil
}

func (s *fakeAssignments) LastAssignedAt(ctx context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out, nil
}

// fakeCrm is a scripted CrmAPI
type fakeCrm struct {
	mu sync.Mutex

	merchant *CrmMerchant
	pending  []CrmSubmission

	setTrainingErr     error
	setInstallationErr error
	setVendorErr       error

	trainingSets      []string // dates written
	trainingClears    int
	installationSets  []string // event ids written
	installationClear int
	vendorTickets     []string
}

func (c *fakeCrm) Merchant(ctx context.Context, merchantID string) (*CrmMerchant, error) {
	return c.merchant, nil
}

func (c *fakeCrm) SetTrainingSchedule(ctx context.Context, recordID, date, trainerEmail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setTrainingErr != nil {
		return c.setTrainingErr
	}
	c.trainingSets = append(c.trainingSets, date)
	return nil
}

func (c *fakeCrm) ClearTrainingSchedule(ctx context.Context, recordID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trainingClears++
	return nil
}

func (c *fakeCrm) SetInstallationSchedule(ctx context.Context, recordID, eventID, installerEmail string, start time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setInstallationErr != nil {
		return c.setInstallationErr
	}
	c.installationSets = append(c.installationSets, eventID)
	return nil
}

func (c *fakeCrm) ClearInstallationSchedule(ctx context.Context, recordID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installationClear++
	return nil
}

func (c *fakeCrm) SetVendorTicket(ctx context.Context, recordID, ticketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setVendorErr != nil {
		return c.setVendorErr
	}
	c.vendorTickets = append(c.vendorTickets, ticketID)
	return nil
}

func (c *fakeCrm) PendingSubmissions(ctx context.Context) ([]CrmSubmission, error) {
	return c.pending, nil
}

// fakeVendor is a scripted VendorAPI
type fakeVendor struct {
	mu      sync.Mutex
	err     error
	tickets []VendorTicketRequest
}

func (v *fakeVendor) CreateTicket(ctx context.Context, req VendorTicketRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return "", v.err
	}
	v.tickets = append(v.tickets, req)
	return "ticket-1", nil
}

// fakeNotifier counts notification calls
type fakeNotifier struct {
	mu          sync.Mutex
	placed      int
	cancelled   int
	crmFailed   int
	submissions []string
}

func (n *fakeNotifier) BookingPlaced(booking *models.Booking, merchantName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed++
}

func (n *fakeNotifier) BookingCancelled(booking *models.Booking, merchantName, accountManagerEmail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}

func (n *fakeNotifier) CrmSyncFailed(booking *models.Booking, merchantName string, cause error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.crmFailed++
}

func (n *fakeNotifier) SubmissionReceived(resourceEmail, merchantName, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submissions = append(n.submissions, resourceEmail+"|"+link)
}

// fakeSubmissions is an in-memory SubmissionStore
type fakeSubmissions struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{seen: make(map[string]bool)}
}

func (s *fakeSubmissions) Seen(ctx context.Context, resourceEmail, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[resourceEmail+"|"+link], nil
}

func (s *fakeSubmissions) Record(ctx context.Context, resourceEmail, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[resourceEmail+"|"+link] = true
	return nil
}
