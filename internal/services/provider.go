package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onboardly/onboardly/internal/config"
)

// ProviderCalendar is one entry from the provider's calendar list
type ProviderCalendar struct {
	ID      string
	Summary string
	Role    string // owner | writer | reader
	Type    string // primary | shared | exchange | google
}

// Writable reports whether the role permits event writes.
func (c ProviderCalendar) Writable() bool {
	return c.Role == "owner" || c.Role == "writer"
}

// ExternallySynced reports whether the calendar is a read-through copy of an
// external calendar. These commonly reject writes even when the role claims
// ownership.
func (c ProviderCalendar) ExternallySynced() bool {
	return c.Type == "exchange" || c.Type == "google"
}

// ProviderEvent is one event from the provider's events listing
type ProviderEvent struct {
	ID             string
	Start          time.Time
	End            time.Time
	Status         string // confirmed | tentative | cancelled
	RecurrenceRule string
	FreeBusy       string // free | busy
}

// FreeBusyWindow is one busy range from the provider's free/busy query
type FreeBusyWindow struct {
	Start time.Time
	End   time.Time
}

// EventWrite is the payload for creating or updating a provider event
type EventWrite struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// TokenResponse is the provider's token endpoint response
type TokenResponse struct {
	AccessToken    string
	RefreshToken   string
	ExpiresIn      int
	Scope          string
	ProviderUserID string
}

// CalendarAPI is the provider's calendar surface. Implemented by
// ProviderClient; tests substitute fakes.
type CalendarAPI interface {
	ListCalendars(ctx context.Context, accessToken string) ([]ProviderCalendar, error)
	FreeBusy(ctx context.Context, accessToken string, userIDs []string, from, to time.Time) (map[string][]FreeBusyWindow, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]ProviderEvent, error)
	ExpandInstances(ctx context.Context, accessToken, calendarID, eventID string, from, to time.Time) ([]ProviderEvent, error)
	CreateEvent(ctx context.Context, accessToken, calendarID string, ev EventWrite) (string, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev EventWrite) error
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

// OAuthAPI is the provider's token surface
type OAuthAPI interface {
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// ProviderClient talks to the calendar provider's REST API. All event
// timestamps cross the wire as Unix seconds.
type ProviderClient struct {
	cfg    *config.Config
	client *http.Client
}

// NewProviderClient creates a provider client with the configured timeout
func NewProviderClient(cfg *config.Config) *ProviderClient {
	return &ProviderClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.App.ProviderTimeout},
	}
}

// AuthURL returns the OAuth authorization URL for the handshake
func (p *ProviderClient) AuthURL(state string) string {
	v := url.Values{}
	v.Set("client_id", p.cfg.OAuth.ClientID)
	v.Set("redirect_uri", p.cfg.OAuth.RedirectURL)
	v.Set("response_type", "code")
	v.Set("scope", strings.Join(p.cfg.OAuth.Scopes, " "))
	v.Set("access_type", "offline")
	v.Set("state", state)
	return p.cfg.OAuth.AuthURL + "?" + v.Encode()
}

type tokenWire struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       string `json:"user_id"`
}

// ExchangeCode swaps an authorization code for a token pair
func (p *ProviderClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.cfg.OAuth.ClientID)
	form.Set("client_secret", p.cfg.OAuth.ClientSecret)
	form.Set("redirect_uri", p.cfg.OAuth.RedirectURL)
	return p.postToken(ctx, form)
}

// RefreshToken swaps a refresh token for a new token pair
func (p *ProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.cfg.OAuth.ClientID)
	form.Set("client_secret", p.cfg.OAuth.ClientSecret)
	return p.postToken(ctx, form)
}

func (p *ProviderClient) postToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.OAuth.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		// Revoked or invalid grant
		return nil, ErrReauthorizationRequired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: token endpoint returned %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var wire tokenWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", ErrProviderUnavailable, err)
	}
	if wire.AccessToken == "" || wire.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: token response missing required fields", ErrProviderUnavailable)
	}

	return &TokenResponse{
		AccessToken:    wire.AccessToken,
		RefreshToken:   wire.RefreshToken,
		ExpiresIn:      wire.ExpiresIn,
		Scope:          wire.Scope,
		ProviderUserID: wire.UserID,
	}, nil
}

// ListCalendars returns all calendars visible to the token's owner
func (p *ProviderClient) ListCalendars(ctx context.Context, accessToken string) ([]ProviderCalendar, error) {
	var result struct {
		Calendars []struct {
			CalendarID string `json:"calendar_id"`
			Summary    string `json:"summary"`
			Role       string `json:"role"`
			Type       string `json:"type"`
		} `json:"calendars"`
	}
	if err := p.getJSON(ctx, accessToken, "/calendars", nil, &result); err != nil {
		return nil, err
	}

	calendars := make([]ProviderCalendar, 0, len(result.Calendars))
	for _, c := range result.Calendars {
		if c.CalendarID == "" {
			return nil, fmt.Errorf("%w: calendar entry missing id", ErrProviderUnavailable)
		}
		calendars = append(calendars, ProviderCalendar{
			ID:      c.CalendarID,
			Summary: c.Summary,
			Role:    c.Role,
			Type:    c.Type,
		})
	}
	return calendars, nil
}

// FreeBusy queries busy windows for a batch of user ids
func (p *ProviderClient) FreeBusy(ctx context.Context, accessToken string, userIDs []string, from, to time.Time) (map[string][]FreeBusyWindow, error) {
	payload := map[string]interface{}{
		"user_ids":   userIDs,
		"start_time": from.Unix(),
		"end_time":   to.Unix(),
	}

	var result struct {
		FreeBusy map[string][]struct {
			StartTime int64 `json:"start_time"`
			EndTime   int64 `json:"end_time"`
		} `json:"freebusy"`
	}
	if err := p.doJSON(ctx, accessToken, http.MethodPost, "/freebusy", payload, &result); err != nil {
		return nil, err
	}

	windows := make(map[string][]FreeBusyWindow, len(result.FreeBusy))
	for user, ranges := range result.FreeBusy {
		for _, r := range ranges {
			if r.EndTime <= r.StartTime {
				continue
			}
			windows[user] = append(windows[user], FreeBusyWindow{
				Start: time.Unix(r.StartTime, 0),
				End:   time.Unix(r.EndTime, 0),
			})
		}
	}
	return windows, nil
}

type eventWire struct {
	EventID        string `json:"event_id"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time"`
	Status         string `json:"status"`
	Recurrence     string `json:"recurrence"`
	FreeBusyStatus string `json:"free_busy_status"`
}

func (e eventWire) toEvent() (ProviderEvent, error) {
	if e.EventID == "" || e.EndTime <= e.StartTime {
		return ProviderEvent{}, fmt.Errorf("%w: event missing id or valid time range", ErrProviderUnavailable)
	}
	return ProviderEvent{
		ID:             e.EventID,
		Start:          time.Unix(e.StartTime, 0),
		End:            time.Unix(e.EndTime, 0),
		Status:         e.Status,
		RecurrenceRule: e.Recurrence,
		FreeBusy:       e.FreeBusyStatus,
	}, nil
}

// ListEvents returns events on the calendar overlapping [from, to)
func (p *ProviderClient) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]ProviderEvent, error) {
	query := url.Values{}
	query.Set("start_time", strconv.FormatInt(from.Unix(), 10))
	query.Set("end_time", strconv.FormatInt(to.Unix(), 10))

	var result struct {
		Events []eventWire `json:"events"`
	}
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := p.getJSON(ctx, accessToken, path, query, &result); err != nil {
		return nil, err
	}

	events := make([]ProviderEvent, 0, len(result.Events))
	for _, w := range result.Events {
		ev, err := w.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// ExpandInstances returns the concrete instances of a recurring event within
// [from, to)
func (p *ProviderClient) ExpandInstances(ctx context.Context, accessToken, calendarID, eventID string, from, to time.Time) ([]ProviderEvent, error) {
	query := url.Values{}
	query.Set("start_time", strconv.FormatInt(from.Unix(), 10))
	query.Set("end_time", strconv.FormatInt(to.Unix(), 10))

	var result struct {
		Instances []eventWire `json:"instances"`
	}
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID) + "/instances"
	if err := p.getJSON(ctx, accessToken, path, query, &result); err != nil {
		return nil, err
	}

	instances := make([]ProviderEvent, 0, len(result.Instances))
	for _, w := range result.Instances {
		ev, err := w.toEvent()
		if err != nil {
			return nil, err
		}
		instances = append(instances, ev)
	}
	return instances, nil
}

func eventPayload(ev EventWrite) map[string]interface{} {
	return map[string]interface{}{
		"summary":     ev.Summary,
		"description": ev.Description,
		"location":    ev.Location,
		"start_time":  ev.Start.Unix(),
		"end_time":    ev.End.Unix(),
		"attendees":   ev.Attendees,
	}
}

// CreateEvent creates an event and returns the provider's event id
func (p *ProviderClient) CreateEvent(ctx context.Context, accessToken, calendarID string, ev EventWrite) (string, error) {
	var result struct {
		Event struct {
			EventID string `json:"event_id"`
		} `json:"event"`
	}
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := p.doJSON(ctx, accessToken, http.MethodPost, path, eventPayload(ev), &result); err != nil {
		return "", err
	}
	if result.Event.EventID == "" {
		return "", fmt.Errorf("%w: create event response missing event id", ErrProviderUnavailable)
	}
	return result.Event.EventID, nil
}

// UpdateEvent updates an existing event in place
func (p *ProviderClient) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev EventWrite) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
	return p.doJSON(ctx, accessToken, http.MethodPatch, path, eventPayload(ev), nil)
}

// DeleteEvent removes an event from the calendar
func (p *ProviderClient) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
	return p.doJSON(ctx, accessToken, http.MethodDelete, path, nil, nil)
}

func (p *ProviderClient) getJSON(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	endpoint := p.cfg.OAuth.APIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return p.send(req, accessToken, out)
}

func (p *ProviderClient) doJSON(ctx context.Context, accessToken, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.OAuth.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.send(req, accessToken, out)
}

func (p *ProviderClient) send(req *http.Request, accessToken string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrReauthorizationRequired
	case resp.StatusCode == http.StatusForbidden:
		return ErrCalendarAccess
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEventNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrSlotTaken
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: provider returned %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed provider response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Printf("Error closing response body: %v", err)
	}
}
