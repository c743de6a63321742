package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// SubmissionStore persists which (resource, submission link) pairs have
// already been acted on
type SubmissionStore interface {
	Seen(ctx context.Context, resourceEmail, link string) (bool, error)
	Record(ctx context.Context, resourceEmail, link string) error
}

// PollerService watches the CRM for merchant data submissions and notifies
// the assigned resource. The CRM has no webhooks, so this polls.
type PollerService struct {
	crm         CrmAPI
	submissions SubmissionStore
	notify      Notifier
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewPollerService creates a new submission poller
func NewPollerService(crm CrmAPI, submissions SubmissionStore, notify Notifier, interval time.Duration) *PollerService {
	return &PollerService{
		crm:         crm,
		submissions: submissions,
		notify:      notify,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background poll loop
func (s *PollerService) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("[POLLER] Service started, polling every %v", s.interval)
}

// Stop stops the background poll loop
func (s *PollerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Printf("[POLLER] Service stopped")
}

func (s *PollerService) run() {
	defer s.wg.Done()

	// Run immediately on startup
	s.poll()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.poll()
		case <-s.stopCh:
			return
		}
	}
}

// poll fetches pending submissions and notifies once per (resource, link)
// pair. The pair is recorded before the notification goes out; losing a
// notification beats sending it on every poll forever.
func (s *PollerService) poll() {
	ctx := context.Background()

	pending, err := s.crm.PendingSubmissions(ctx)
	if err != nil {
		log.Printf("[POLLER] Error fetching pending submissions: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	notified := 0
	for _, sub := range pending {
		seen, err := s.submissions.Seen(ctx, sub.ResourceEmail, sub.SubmissionLink)
		if err != nil {
			log.Printf("[POLLER] Error checking submission %s/%s: %v", sub.ResourceEmail, sub.SubmissionLink, err)
			continue
		}
		if seen {
			continue
		}

		if err := s.submissions.Record(ctx, sub.ResourceEmail, sub.SubmissionLink); err != nil {
			log.Printf("[POLLER] Error recording submission %s/%s: %v", sub.ResourceEmail, sub.SubmissionLink, err)
			continue
		}

		s.notify.SubmissionReceived(sub.ResourceEmail, sub.MerchantName, sub.SubmissionLink)
		notified++
	}

	if notified > 0 {
		log.Printf("[POLLER] Notified %d new submission(s)", notified)
	}
}
