package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/onboardly/onboardly/internal/config"
)

// VendorTicketRequest is the work order sent to the external installation vendor
type VendorTicketRequest struct {
	MerchantID   string `json:"merchant_id"`
	MerchantName string `json:"merchant_name"`
	Region       string `json:"region"`
	Address      string `json:"address"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	Notes        string `json:"notes,omitempty"`
}

// VendorAPI is the external installation vendor's ticketing surface
type VendorAPI interface {
	CreateTicket(ctx context.Context, req VendorTicketRequest) (string, error)
}

// VendorClient talks to the external vendor's ticketing API. The vendor runs
// its own scheduling, so no calendar event is ever created on our side.
type VendorClient struct {
	cfg    *config.Config
	client *http.Client
}

// NewVendorClient creates a new vendor client
func NewVendorClient(cfg *config.Config) *VendorClient {
	return &VendorClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.App.ProviderTimeout},
	}
}

// CreateTicket opens an installation work order and returns the vendor's
// ticket id
func (v *VendorClient) CreateTicket(ctx context.Context, ticket VendorTicketRequest) (string, error) {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.Vendor.BaseURL+"/tickets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", v.cfg.Vendor.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vendor ticket request failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vendor returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		TicketID string `json:"ticket_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("malformed vendor response: %w", err)
	}
	if result.TicketID == "" {
		return "", fmt.Errorf("vendor response missing ticket id")
	}
	return result.TicketID, nil
}
