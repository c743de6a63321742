package services

import (
	"context"
	"testing"
	"time"
)

func TestPollerNotifiesOncePerSubmission(t *testing.T) {
	crm := &fakeCrm{
		pending: []CrmSubmission{
			{RecordID: "rec-1", MerchantName: "Kopi Corner", ResourceEmail: "a@example.com", SubmissionLink: "https://crm.example/rec-1"},
			{RecordID: "rec-2", MerchantName: "Laksa House", ResourceEmail: "b@example.com", SubmissionLink: "https://crm.example/rec-2"},
		},
	}
	submissions := newFakeSubmissions()
	notifier := &fakeNotifier{}
	poller := NewPollerService(crm, submissions, notifier, time.Minute)

	// The same pending set shows up on every poll until the CRM record moves
	// on; only the first poll may notify.
	poller.poll()
	poller.poll()

	if len(notifier.submissions) != 2 {
		t.Fatalf("expected 2 notifications across repeated polls, got %d", len(notifier.submissions))
	}
}

func TestPollerSkipsAlreadySeenSubmissions(t *testing.T) {
	crm := &fakeCrm{
		pending: []CrmSubmission{
			{RecordID: "rec-1", MerchantName: "Kopi Corner", ResourceEmail: "a@example.com", SubmissionLink: "https://crm.example/rec-1"},
		},
	}
	submissions := newFakeSubmissions()
	if err := submissions.Record(context.Background(), "a@example.com", "https://crm.example/rec-1"); err != nil {
		t.Fatal(err)
	}
	notifier := &fakeNotifier{}
	poller := NewPollerService(crm, submissions, notifier, time.Minute)

	poller.poll()

	if len(notifier.submissions) != 0 {
		t.Errorf("expected no notifications for seen submissions, got %d", len(notifier.submissions))
	}
}

func TestPollerIgnoresIncompleteRecords(t *testing.T) {
	// Filtering happens in the CRM client; the poller trusts its input but must
	// tolerate an empty batch.
	crm := &fakeCrm{}
	notifier := &fakeNotifier{}
	poller := NewPollerService(crm, newFakeSubmissions(), notifier, time.Minute)

	poller.poll()

	if len(notifier.submissions) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.submissions))
	}
}
