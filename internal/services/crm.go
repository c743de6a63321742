package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/onboardly/onboardly/internal/config"
)

// CrmMerchant is the onboarding record the booking flow reads. TrainerEmail
// and InstallerEmail carry the current assignees so a cancel can find whose
// calendar holds the event when the caller does not say.
type CrmMerchant struct {
	RecordID            string
	Name                string
	Region              string
	Language            string
	AccountManagerEmail string
	TrainerEmail        string
	InstallerEmail      string
}

// CrmSubmission is a merchant data submission discovered by the poller
type CrmSubmission struct {
	RecordID       string
	MerchantName   string
	ResourceEmail  string
	SubmissionLink string
}

// CrmAPI is the system-of-record surface the engine writes bookings to.
// Field writes are idempotent per (record, field); a failed write is corrected
// by the next reconciling write, so no compensating action beyond logging.
type CrmAPI interface {
	Merchant(ctx context.Context, merchantID string) (*CrmMerchant, error)
	SetTrainingSchedule(ctx context.Context, recordID, date, trainerEmail string) error
	ClearTrainingSchedule(ctx context.Context, recordID string) error
	SetInstallationSchedule(ctx context.Context, recordID, eventID, installerEmail string, start time.Time) error
	ClearInstallationSchedule(ctx context.Context, recordID string) error
	SetVendorTicket(ctx context.Context, recordID, ticketID string) error
	PendingSubmissions(ctx context.Context) ([]CrmSubmission, error)
}

// CrmClient talks to the CRM's record API
type CrmClient struct {
	cfg    *config.Config
	loc    *time.Location
	client *http.Client
}

// NewCrmClient creates a new CRM client
func NewCrmClient(cfg *config.Config, loc *time.Location) *CrmClient {
	return &CrmClient{
		cfg:    cfg,
		loc:    loc,
		client: &http.Client{Timeout: cfg.App.ProviderTimeout},
	}
}

// Merchant loads the onboarding record for a merchant
func (c *CrmClient) Merchant(ctx context.Context, merchantID string) (*CrmMerchant, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Region__c, Preferred_Language__c, Account_Manager_Email__c, Trainer_Email__c, Portal_Installer_Email__c FROM Merchant_Onboarding__c WHERE Merchant_ID__c = '%s'",
		merchantID)

	var result struct {
		Records []struct {
			ID                  string `json:"Id"`
			Name                string `json:"Name"`
			Region              string `json:"Region__c"`
			Language            string `json:"Preferred_Language__c"`
			AccountManagerEmail string `json:"Account_Manager_Email__c"`
			TrainerEmail        string `json:"Trainer_Email__c"`
			InstallerEmail      string `json:"Portal_Installer_Email__c"`
		} `json:"records"`
	}
	if err := c.query(ctx, soql, &result); err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("no onboarding record for merchant %s", merchantID)
	}

	r := result.Records[0]
	return &CrmMerchant{
		RecordID:            r.ID,
		Name:                r.Name,
		Region:              r.Region,
		Language:            r.Language,
		AccountManagerEmail: r.AccountManagerEmail,
		TrainerEmail:        r.TrainerEmail,
		InstallerEmail:      r.InstallerEmail,
	}, nil
}

// SetTrainingSchedule writes the training date and trainer onto the record.
// The date field is date-only and always rendered as the civil date in the
// business timezone; a naive UTC serialization would shift the calendar date
// across the timezone boundary.
func (c *CrmClient) SetTrainingSchedule(ctx context.Context, recordID, date, trainerEmail string) error {
	return c.update(ctx, recordID, map[string]interface{}{
		"Training_Date__c":   date,
		"Trainer_Email__c":   trainerEmail,
		"Training_Status__c": "Scheduled",
	})
}

// ClearTrainingSchedule nulls the training fields
func (c *CrmClient) ClearTrainingSchedule(ctx context.Context, recordID string) error {
	return c.update(ctx, recordID, map[string]interface{}{
		"Training_Date__c":   nil,
		"Trainer_Email__c":   nil,
		"Training_Status__c": "Cancelled",
	})
}

// SetInstallationSchedule writes the portal sub-record fields for an internal
// installation: event id, installer reference and full datetime with explicit
// offset.
func (c *CrmClient) SetInstallationSchedule(ctx context.Context, recordID, eventID, installerEmail string, start time.Time) error {
	return c.update(ctx, recordID, map[string]interface{}{
		"Portal_Event_ID__c":          eventID,
		"Portal_Installer_Email__c":   installerEmail,
		"Portal_Installation_Time__c": start.In(c.loc).Format(time.RFC3339),
		"Installation_Date__c":        start.In(c.loc).Format("2006-01-02"),
	})
}

// ClearInstallationSchedule nulls the installation fields
func (c *CrmClient) ClearInstallationSchedule(ctx context.Context, recordID string) error {
	return c.update(ctx, recordID, map[string]interface{}{
		"Portal_Event_ID__c":          nil,
		"Portal_Installer_Email__c":   nil,
		"Portal_Installation_Time__c": nil,
		"Installation_Date__c":        nil,
	})
}

// SetVendorTicket records an external vendor assignment; no calendar fields
func (c *CrmClient) SetVendorTicket(ctx context.Context, recordID, ticketID string) error {
	return c.update(ctx, recordID, map[string]interface{}{
		"Vendor_Ticket_ID__c":  ticketID,
		"Installation_Type__c": "External Vendor",
	})
}

// PendingSubmissions returns merchant data submissions not yet acknowledged
func (c *CrmClient) PendingSubmissions(ctx context.Context) ([]CrmSubmission, error) {
	soql := "SELECT Id, Name, Assigned_Resource_Email__c, Submission_Link__c FROM Merchant_Onboarding__c WHERE Submission_Link__c != null"

	var result struct {
		Records []struct {
			ID            string `json:"Id"`
			Name          string `json:"Name"`
			ResourceEmail string `json:"Assigned_Resource_Email__c"`
			Link          string `json:"Submission_Link__c"`
		} `json:"records"`
	}
	if err := c.query(ctx, soql, &result); err != nil {
		return nil, err
	}

	submissions := make([]CrmSubmission, 0, len(result.Records))
	for _, r := range result.Records {
		if r.ResourceEmail == "" || r.Link == "" {
			continue
		}
		submissions = append(submissions, CrmSubmission{
			RecordID:       r.ID,
			MerchantName:   r.Name,
			ResourceEmail:  r.ResourceEmail,
			SubmissionLink: r.Link,
		})
	}
	return submissions, nil
}

func (c *CrmClient) query(ctx context.Context, soql string, out interface{}) error {
	endpoint := c.cfg.Crm.BaseURL + "/query?q=" + url.QueryEscape(soql)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Crm.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crm query failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("crm query returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *CrmClient) update(ctx context.Context, recordID string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	endpoint := c.cfg.Crm.BaseURL + "/sobjects/Merchant_Onboarding__c/" + url.PathEscape(recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Crm.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrmSyncFailed, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: crm returned %d: %s", ErrCrmSyncFailed, resp.StatusCode, string(body))
	}
	return nil
}
