package services

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestCreateEventLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	svc, _, err := setupTestService(t, clock, false)
	if err != nil {
		t.Fatalf("Could not create service: %v", err)
	}
	if err = svc.Init(); err != nil {
		t.Fatalf("Could not initialize service: %v", err)
	}
	defer svc.Deinit()

	now := svc.clock.Now()
	created, err := svc.CreateEvent("organizer@example.com", "Launch Party",
		now, now.Add(2*time.Hour), "https://example.com/meta.json", "https://example.com/img.png")
	if err != nil {
		t.Fatalf("Could not create event: %v", err)
	}
	if created.EventID == "" || created.SignerPublicKey == "" {
		t.Fatalf("Created event is missing fields: %+v", created)
	}

	ev, err := svc.GetEvent(created.EventID)
	if err != nil {
		t.Fatalf("Could not read event back: %v", err)
	}
	if ev.Name != "Launch Party" {
		t.Fatalf("Unexpected event name: %s", ev.Name)
	}
	if ev.StartsAt.Unix() != now.Unix() || ev.EndsAt.Unix() != now.Add(2*time.Hour).Unix() {
		t.Fatalf("Event window was not persisted correctly: %v - %v", ev.StartsAt, ev.EndsAt)
	}
	if ev.CreatedBy != "organizer@example.com" {
		t.Fatalf("Unexpected creator: %s", ev.CreatedBy)
	}

	// The signer exists and matches what CreateEvent reported; no event
	// exists without one.
	kp, err := svc.getSigner(created.EventID)
	if err != nil {
		t.Fatalf("Could not load signer: %v", err)
	}
	if kp.PublicKeyHex() != created.SignerPublicKey {
		t.Fatalf("Signer mismatch (%s != %s)", kp.PublicKeyHex(), created.SignerPublicKey)
	}
}

func TestCreateEventValidation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	svc, _, err := setupTestService(t, clock, false)
	if err != nil {
		t.Fatalf("Could not create service: %v", err)
	}
	if err = svc.Init(); err != nil {
		t.Fatalf("Could not initialize service: %v", err)
	}
	defer svc.Deinit()

	now := svc.clock.Now()
	data := []struct {
		name     string
		event    string
		startsAt time.Time
		endsAt   time.Time
	}{
		{"empty_name", "", now, now.Add(time.Hour)},
		{"zero_window", "Event", time.Time{}, time.Time{}},
		{"inverted_window", "Event", now.Add(time.Hour), now},
	}

	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			_, err := svc.CreateEvent("organizer@example.com", d.event, d.startsAt, d.endsAt, "", "")
			if !errors.Is(err, &ValidationError{}) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDeleteEvent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	svc, _, err := setupTestService(t, clock, false)
	if err != nil {
		t.Fatalf("Could not create service: %v", err)
	}
	if err = svc.Init(); err != nil {
		t.Fatalf("Could not initialize service: %v", err)
	}
	defer svc.Deinit()

	created, err := createTestEvent(svc)
	if err != nil {
		t.Fatalf("Could not create event: %v", err)
	}

	// Only admins may delete events.
	err = svc.DeleteEvent("organizer@example.com", created.EventID)
	if !errors.Is(err, &AuthorizationError{}) {
		t.Fatalf("Expected AuthorizationError, got %v", err)
	}

	// Unknown events are reported as such, even to admins.
	err = svc.DeleteEvent("admin@example.com", "no-such-event")
	if !errors.Is(err, &NotFoundError{}) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}

	// The admin seeded in setupTestService can delete; the signer goes with
	// the event.
	if err := svc.DeleteEvent("admin@example.com", created.EventID); err != nil {
		t.Fatalf("Could not delete event: %v", err)
	}
	if _, err := svc.GetEvent(created.EventID); !errors.Is(err, &NotFoundError{}) {
		t.Fatalf("Deleted event should be gone, got %v", err)
	}
	if _, err := svc.getSigner(created.EventID); !errors.Is(err, &NotFoundError{}) {
		t.Fatalf("Deleted event's signer should be gone, got %v", err)
	}
	if _, err := svc.IssueToken(created.EventID); !errors.Is(err, &NotFoundError{}) {
		t.Fatalf("Issuing for a deleted event should fail, got %v", err)
	}
}
