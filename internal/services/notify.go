package services

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"time"

	"github.com/onboardly/onboardly/internal/config"
	"github.com/onboardly/onboardly/internal/models"
)

// Notifier is the notification surface the booking and poller flows use.
// Implementations must be best-effort: a failed notification never fails the
// operation that triggered it.
type Notifier interface {
	BookingPlaced(booking *models.Booking, merchantName string)
	BookingCancelled(booking *models.Booking, merchantName, accountManagerEmail string)
	CrmSyncFailed(booking *models.Booking, merchantName string, cause error)
	SubmissionReceived(resourceEmail, merchantName, link string)
}

// NotifyService sends booking notifications over SMTP. All sends are
// asynchronous; failures are logged and dropped.
type NotifyService struct {
	cfg *config.Config
	loc *time.Location
}

// NewNotifyService creates a new notification service
func NewNotifyService(cfg *config.Config, loc *time.Location) *NotifyService {
	return &NotifyService{cfg: cfg, loc: loc}
}

// BookingPlaced notifies the assigned resource and the manager inbox
func (s *NotifyService) BookingPlaced(booking *models.Booking, merchantName string) {
	subject := fmt.Sprintf("New %s booking: %s", booking.Kind, merchantName)
	body := fmt.Sprintf(`A new %s appointment has been scheduled.

Merchant: %s
When: %s
Slot: %s

Booking reference: %s
`,
		booking.Kind,
		merchantName,
		booking.Start.Time.In(s.loc).Format("Monday, January 2, 2006 at 3:04 PM"),
		booking.SlotLabel,
		booking.ID,
	)

	s.sendAsync(booking.ResourceEmail, subject, body)
	if s.cfg.Email.ManagerEmail != "" {
		s.sendAsync(s.cfg.Email.ManagerEmail, subject, body)
	}
}

// BookingCancelled notifies the resource and the merchant's account manager
// that the appointment is off
func (s *NotifyService) BookingCancelled(booking *models.Booking, merchantName, accountManagerEmail string) {
	subject := fmt.Sprintf("Cancelled: %s booking for %s", booking.Kind, merchantName)
	body := fmt.Sprintf(`The %s appointment below has been cancelled.

Merchant: %s
When: %s
Slot: %s

Booking reference: %s
`,
		booking.Kind,
		merchantName,
		booking.Start.Time.In(s.loc).Format("Monday, January 2, 2006 at 3:04 PM"),
		booking.SlotLabel,
		booking.ID,
	)
	if booking.ResourceEmail != "" {
		s.sendAsync(booking.ResourceEmail, subject, body)
	}
	if accountManagerEmail != "" {
		s.sendAsync(accountManagerEmail, subject, body)
	}
}

// CrmSyncFailed alerts the manager inbox that a placed booking did not land in
// the system of record and needs a manual fix.
func (s *NotifyService) CrmSyncFailed(booking *models.Booking, merchantName string, cause error) {
	if s.cfg.Email.ManagerEmail == "" {
		return
	}
	subject := fmt.Sprintf("CRM sync failed for booking %s", booking.ID)
	body := fmt.Sprintf(`A booking was placed on the calendar but could not be written to the CRM.

Merchant: %s
Kind: %s
When: %s
Resource: %s
Provider event: %s

Error: %v

The calendar event exists; the CRM record must be corrected manually.
`,
		merchantName,
		booking.Kind,
		booking.Start.Time.In(s.loc).Format("Monday, January 2, 2006 at 3:04 PM"),
		booking.ResourceEmail,
		booking.ProviderEventID,
		cause,
	)
	s.sendAsync(s.cfg.Email.ManagerEmail, subject, body)
}

// SubmissionReceived tells a resource their merchant submitted onboarding data
func (s *NotifyService) SubmissionReceived(resourceEmail, merchantName, link string) {
	subject := fmt.Sprintf("Merchant data submitted: %s", merchantName)
	body := fmt.Sprintf(`%s has submitted their onboarding data.

Review it here: %s
`, merchantName, link)
	s.sendAsync(resourceEmail, subject, body)
}

func (s *NotifyService) sendAsync(to, subject, body string) {
	go func() {
		if err := s.send(to, subject, body); err != nil {
			log.Printf("[NOTIFY] Error sending email to %s: %v", to, err)
		}
	}()
}

func (s *NotifyService) send(to, subject, body string) error {
	from := s.cfg.Email.FromAddress
	host := s.cfg.Email.SMTPHost
	port := s.cfg.Email.SMTPPort

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.cfg.Email.FromName, from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", host, port)
	var auth smtp.Auth
	if s.cfg.Email.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.Email.SMTPUser, s.cfg.Email.SMTPPassword, host)
	}
	return smtp.SendMail(addr, auth, from, []string{to}, msg.Bytes())
}
